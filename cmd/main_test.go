// cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
	"github.com/brandontrabucco/insta-dev-sub000/internal/observability"
)

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()

	cfgFile = ""
	// Keep the logger configured by PersistentPreRunE quiet.
	t.Setenv("INSTA_LOGGER_LEVEL", "error")
	t.Setenv("INSTA_STORE_ENABLED", "false")

	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	t.Cleanup(observability.ResetForTest)
}

// executeCommand runs a pristine command tree and returns what it wrote to
// its output stream.
func executeCommand(t *testing.T, provider storeProvider, stdin string, args ...string) (string, error) {
	t.Helper()
	if provider == nil {
		provider = pgxStoreProvider{}
	}
	rootCmd := newRootCmd(provider)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}
