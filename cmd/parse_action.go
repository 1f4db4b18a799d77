// cmd/parse_action.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/actions"
)

func newParseActionCmd() *cobra.Command {
	var grammar string

	parseCmd := &cobra.Command{
		Use:   "parse-action [FILE|-]",
		Short: "Parse an agent response into the function calls sent to the browser",
		Long: `Extracts the last fenced block of an agent response and prints the function
calls it parses to as JSON. The response is read from FILE, or from stdin when
FILE is omitted or "-".

Action keys accepted by the json grammar:
  ` + strings.Join(actions.ActionKeys(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if grammar == "" {
				grammar = cfg.Action().Grammar
			}

			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			text, err := readSource(cmd, source)
			if err != nil {
				return err
			}
			return runParseAction(cmd.OutOrStdout(), grammar, text)
		},
	}

	parseCmd.Flags().StringVarP(&grammar, "grammar", "g", "", "Action grammar: json or call_chain (overrides config)")
	return parseCmd
}

// runParseAction parses text and writes the calls as indented JSON.
func runParseAction(w io.Writer, grammar, text string) error {
	parser, err := actions.NewParser(grammar)
	if err != nil {
		return err
	}
	action, err := parser.Parse(text)
	if err != nil {
		return err
	}
	calls := action.FunctionCalls
	if calls == nil {
		calls = []schemas.FunctionCall{}
	}
	out, err := json.MarshalIndent(calls, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode calls: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// readSource reads a file, or the command's stdin for "-".
func readSource(cmd *cobra.Command, source string) (string, error) {
	var (
		raw []byte
		err error
	)
	if source == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", source, err)
	}
	return string(raw), nil
}
