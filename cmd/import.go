package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fetcher"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/pipeline"
)

var (
	importUser         string
	importBank         string
	importContributors string
	importChurch       string
)

// importOutput is the printed form of an import result.
type importOutput struct {
	*pipeline.ImportResult
	Warnings []string `json:"warnings,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
}

func newImportOutput(res *pipeline.ImportResult) importOutput {
	out := importOutput{ImportResult: res, Warnings: res.WarningMessages()}
	for _, r := range res.Rejected {
		out.Rejected = append(out.Rejected, r.Error())
	}
	return out
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Extract a bank statement and store its transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		doc, err := env.Loader.LoadFile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load statement")
		}

		var contributors []model.Contributor
		if importContributors != "" {
			contributors, err = loadContributorsFile(cmd, importContributors, importChurch)
			if err != nil {
				return err
			}
		}

		res, runErr := env.Pipeline.Run(ctx, metrics.NewCollector(), pipeline.ImportRequest{
			UserID:       importUser,
			BankID:       importBank,
			Document:     *doc,
			Contributors: contributors,
		})
		if res != nil {
			if err := printJSON(cmd.OutOrStdout(), newImportOutput(res)); err != nil {
				return err
			}
		}
		if runErr != nil {
			return runErr
		}

		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.Int("inserted", res.Report.Inserted),
			zap.Int("duplicates", res.Report.Duplicates),
		)
		return nil
	},
}

func loadContributorsFile(cmd *cobra.Command, path, church string) ([]model.Contributor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read contributors %s", path)
	}
	return fetcher.LoadContributors(cmd.Context(), filepath.Base(path), data, church)
}

func init() {
	importCmd.Flags().StringVar(&importUser, "user", "", "owner of the imported transactions (required)")
	importCmd.Flags().StringVar(&importBank, "bank", "", "source bank identifier (required)")
	importCmd.Flags().StringVar(&importContributors, "contributors", "", "optional contributor list to match against")
	importCmd.Flags().StringVar(&importChurch, "church", "", "church id for contributors without one")
	_ = importCmd.MarkFlagRequired("user")
	_ = importCmd.MarkFlagRequired("bank")
	rootCmd.AddCommand(importCmd)
}
