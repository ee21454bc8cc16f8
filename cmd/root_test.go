package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/pipeline"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"fingerprint", "import", "reconcile", "pending", "status", "migrate", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "identificapix", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "bank", "contributors", "church"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "import should have --%s flag", name)
	}
	assert.Equal(t, []string{"true"}, importCmd.Flags().Lookup("user").Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestReconcileCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "contributors", "church", "apply", "out"} {
		assert.NotNil(t, reconcileCmd.Flags().Lookup(name), "reconcile should have --%s flag", name)
	}
	assert.Equal(t, "false", reconcileCmd.Flags().Lookup("apply").DefValue)
}

func TestPendingCommand_Flags(t *testing.T) {
	flag := pendingCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestMigrateCommand_Flags(t *testing.T) {
	assert.NotNil(t, migrateCmd.Flags().Lookup("models"))
}

func TestStatusCommand_Args(t *testing.T) {
	assert.Error(t, statusCmd.Args(statusCmd, []string{"only-id"}))
	assert.NoError(t, statusCmd.Args(statusCmd, []string{"id", "identified"}))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"inserted": 3}))
	assert.JSONEq(t, `{"inserted":3}`, buf.String())
}

func TestNewImportOutput_RendersWarnings(t *testing.T) {
	res := &pipeline.ImportResult{
		FileName: "julho.csv",
		Warnings: []error{assert.AnError},
		Metrics:  metrics.NewCollector().Snapshot(),
	}

	out := newImportOutput(res)

	assert.Equal(t, []string{assert.AnError.Error()}, out.Warnings)
	assert.Empty(t, out.Rejected)

	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, out))
	assert.Contains(t, buf.String(), `"file_name": "julho.csv"`)
}
