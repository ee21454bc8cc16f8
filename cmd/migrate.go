package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/strategy"
)

var migrateModels string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create database tables and optionally seed learned models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))

		if migrateModels == "" {
			return nil
		}
		fileStore, err := strategy.LoadFile(migrateModels)
		if err != nil {
			return err
		}
		n, err := st.SaveModels(ctx, fileStore.Models())
		if err != nil {
			return eris.Wrap(err, "seed models")
		}
		zap.L().Info("learned models seeded", zap.String("path", migrateModels), zap.Int("models", n))
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateModels, "models", "", "YAML file of learned models to upsert")
	rootCmd.AddCommand(migrateCmd)
}
