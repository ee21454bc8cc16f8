package main

import (
	"github.com/spf13/cobra"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/store"
)

var (
	pendingUser   string
	pendingOffset int
	pendingLimit  int
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending transactions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		txs, err := st.ListPending(ctx, pendingUser, store.Page{Offset: pendingOffset, Limit: pendingLimit})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), txs)
	},
}

func init() {
	pendingCmd.Flags().StringVar(&pendingUser, "user", "", "owner of the transactions (required)")
	pendingCmd.Flags().IntVar(&pendingOffset, "offset", 0, "rows to skip")
	pendingCmd.Flags().IntVar(&pendingLimit, "limit", store.DefaultPageLimit, "maximum rows to return")
	_ = pendingCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(pendingCmd)
}
