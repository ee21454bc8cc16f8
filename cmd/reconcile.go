package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/pipeline"
)

var (
	reconcileUser         string
	reconcileContributors string
	reconcileChurch       string
	reconcileApply        bool
	reconcileOut          string
)

// reconcileOutput is the printed form of a reconcile result.
type reconcileOutput struct {
	*pipeline.ReconcileResult
	Warnings []string `json:"warnings,omitempty"`
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match pending transactions against a contributor list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		var (
			contributors []model.Contributor
			pending      []model.Transaction
		)
		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			contributors, err = loadContributorsFile(cmd, reconcileContributors, reconcileChurch)
			return err
		})
		g.Go(func() error {
			var err error
			pending, err = env.Pipeline.PendingTransactions(gCtx, reconcileUser)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		if pending == nil {
			pending = []model.Transaction{}
		}

		res, err := env.Pipeline.Reconcile(ctx, metrics.NewCollector(), pipeline.ReconcileRequest{
			UserID:       reconcileUser,
			Contributors: contributors,
			Transactions: pending,
			Apply:        reconcileApply,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if reconcileOut != "" {
			f, err := os.Create(reconcileOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", reconcileOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		if err := printJSON(out, reconcileOutput{ReconcileResult: res, Warnings: res.WarningMessages()}); err != nil {
			return err
		}

		zap.L().Info("reconcile complete",
			zap.Int("transactions", len(pending)),
			zap.Int("contributors", len(contributors)),
			zap.Int("results", res.Summary.Total),
			zap.Int("updated", res.Updated),
		)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileUser, "user", "", "owner of the pending transactions (required)")
	reconcileCmd.Flags().StringVar(&reconcileContributors, "contributors", "", "contributor list file: csv, xlsx or json (required)")
	reconcileCmd.Flags().StringVar(&reconcileChurch, "church", "", "church id for contributors without one")
	reconcileCmd.Flags().BoolVar(&reconcileApply, "apply", false, "mark identified transactions as identified")
	reconcileCmd.Flags().StringVar(&reconcileOut, "out", "", "write the result JSON to this file instead of stdout")
	_ = reconcileCmd.MarkFlagRequired("user")
	_ = reconcileCmd.MarkFlagRequired("contributors")
	rootCmd.AddCommand(reconcileCmd)
}
