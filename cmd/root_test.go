package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"generate", "extract", "validate", "feedback", "learnings", "runs", "review", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "proposal-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestGenerateCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"proposal-id", "tenant-id", "client", "company", "industry", "transcript", "charset"} {
		flag := generateCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "generate should have --%s flag", flagName)
	}
}

func TestExtractCommand_Flags(t *testing.T) {
	for _, name := range []string{"transcript", "dir", "charset", "industry"} {
		flag := extractCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "extract command should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestFeedbackCommand_HasSubcommands(t *testing.T) {
	cmds := feedbackCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"validate", "import"}
	for _, name := range expected {
		assert.True(t, names[name], "feedback should have subcommand %q", name)
	}
}

func TestFeedbackValidateCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"user-id", "tenant-id", "proposal-id", "rating", "edited", "edit-magnitude", "outcome", "dry-run"} {
		flag := feedbackValidateCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "feedback validate should have --%s flag", flagName)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestReviewCommand_HasSubcommands(t *testing.T) {
	cmds := reviewCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	assert.True(t, names["push"], "review should have subcommand push")
}

func TestLearningsCommand_Flags(t *testing.T) {
	flag := learningsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "learnings command should have --limit flag")
	assert.Equal(t, "50", flag.DefValue)
}
