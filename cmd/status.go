package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status <id> <pending|identified|resolved>",
	Short: "Advance a transaction's lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpdateTransactionStatus(ctx, statusUser, args[0], model.TransactionStatus(args[1])); err != nil {
			return err
		}

		zap.L().Info("status updated", zap.String("id", args[0]), zap.String("status", args[1]))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "owner of the transaction (required)")
	_ = statusCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(statusCmd)
}
