package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <file>",
	Short: "Print a statement's structural fingerprint and model decision",
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
			return eris.Wrap(err, "load file")
		}

		decision, err := env.Pipeline.Fingerprint(ctx, *doc)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), decision)
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)
}
