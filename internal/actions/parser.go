// internal/actions/parser.go

// Package actions turns the agent's text response into the function calls
// the automation server executes.
package actions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
)

var (
	ErrNoFencedBlock   = errors.New("response contains no fenced code block")
	ErrNoCalls         = errors.New("fenced block contains no function calls")
	ErrUnknownAction   = errors.New("unknown action_key")
	ErrMissingTarget   = errors.New("action requires target_element_id")
	ErrMissingArgument = errors.New("action is missing a required argument")
)

// Parser extracts a BrowserAction from an agent response. A failure is
// always a *schemas.EnvError of kind parse and never a partial action.
type Parser interface {
	Parse(text string) (*schemas.BrowserAction, error)
}

// NewParser returns the parser for a configured grammar. An empty grammar
// selects the JSON grammar.
func NewParser(grammar string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(grammar)) {
	case "", config.GrammarJSON:
		return JSONParser{}, nil
	case config.GrammarCallChain:
		return CallChainParser{}, nil
	default:
		return nil, fmt.Errorf("unknown action grammar %q", grammar)
	}
}

// fencePattern matches a triple-backtick block with an optional language tag
// on the opening line.
var fencePattern = regexp.MustCompile("(?s)```(?:[\\w-]*[ \\t]*\\r?\\n)?(.*?)```")

// lastFencedBlock returns the body of the last fenced block in text.
func lastFencedBlock(text string) (string, bool) {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

func parseError(err error) error {
	return schemas.NewEnvError(schemas.KindParse, "parse", err)
}

// ParseOrEmpty parses text and degrades any failure to an empty action,
// which the environment treats as a no-op step.
func ParseOrEmpty(p Parser, text string) (*schemas.BrowserAction, error) {
	action, err := p.Parse(text)
	if err != nil {
		return &schemas.BrowserAction{FunctionCalls: []schemas.FunctionCall{}, Response: text}, err
	}
	return action, nil
}
