package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func childNames(cmds []*cobra.Command) []string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name())
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, n := range childNames(rootCmd.Commands()) {
		names[n] = true
	}

	expected := []string{"seed", "discover", "update", "sources", "runs", "usage", "courts", "export", "migrate", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "court-inventory", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestNestedSubcommands(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		expect []string
	}{
		{"sources", childNames(sourcesCmd.Commands()), []string{"list", "add", "discover", "deactivate"}},
		{"runs", childNames(runsCmd.Commands()), []string{"list", "status", "logs"}},
		{"courts", childNames(courtsCmd.Commands()), []string{"search", "geocode"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.expect, tt.names)
		})
	}
}

func TestUpdateCommand_Flags(t *testing.T) {
	flag := updateCmd.Flags().Lookup("type")
	require.NotNil(t, flag, "update command should have --type flag")
	assert.Equal(t, "", flag.DefValue)

	require.NotNil(t, updateCmd.Flags().Lookup("jurisdiction-type"))
	require.NotNil(t, updateCmd.Flags().Lookup("limit"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "courts.xlsx", flag.DefValue)
	require.NotNil(t, exportCmd.Flags().Lookup("status"))
}

func TestParseJurisdictionTypeFlag(t *testing.T) {
	jt, err := parseJurisdictionTypeFlag("")
	require.NoError(t, err)
	assert.Empty(t, jt)

	jt, err = parseJurisdictionTypeFlag("State")
	require.NoError(t, err)
	assert.Equal(t, "state", string(jt))

	_, err = parseJurisdictionTypeFlag("province")
	assert.Error(t, err)
}

func TestRootCommand_LogLevelFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}
