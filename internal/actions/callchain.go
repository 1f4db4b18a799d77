// internal/actions/callchain.go
package actions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

// CallChainParser reads calls written as code, for example
//
//	page.locator("[id=\"5\"]").click()
//
// Each dotted name followed by a parenthesized argument list becomes one
// FunctionCall, in order of appearance.
type CallChainParser struct{}

var _ Parser = CallChainParser{}

var (
	callStart = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\s*\.\s*[A-Za-z_][A-Za-z0-9_]*)*\s*\(`)
	idArg     = regexp.MustCompile(`\bid\s*=\s*(\\?["'])(\d+)\\?["']`)
	spaces    = regexp.MustCompile(`\s+`)
)

// Parse implements Parser.
func (CallChainParser) Parse(text string) (*schemas.BrowserAction, error) {
	block, ok := lastFencedBlock(text)
	if !ok {
		return nil, parseError(ErrNoFencedBlock)
	}
	calls, err := scanCalls(block)
	if err != nil {
		return nil, parseError(err)
	}
	if len(calls) == 0 {
		return nil, parseError(ErrNoCalls)
	}
	return &schemas.BrowserAction{FunctionCalls: calls, Response: text, MatchedResponse: block}, nil
}

// scanCalls finds every call expression in src. Argument lists are captured
// with balanced parentheses, skipping over quoted strings.
func scanCalls(src string) ([]schemas.FunctionCall, error) {
	var calls []schemas.FunctionCall
	pos := 0
	for pos < len(src) {
		loc := callStart.FindStringIndex(src[pos:])
		if loc == nil {
			break
		}
		open := pos + loc[1] - 1
		end, err := matchParen(src, open)
		if err != nil {
			return nil, err
		}
		dotpath := spaces.ReplaceAllString(strings.TrimSpace(src[pos+loc[0]:open]), "")
		args := rewriteIDs(strings.TrimSpace(src[open+1 : end]))
		calls = append(calls, schemas.FunctionCall{Dotpath: dotpath, Args: args})
		pos = end + 1
	}
	return calls, nil
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(src string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(src); i++ {
		ch := src[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses in call starting at offset %d", open)
}

// rewriteIDs maps id="N" to backend_node_id="N", the attribute the server
// stamps on observed elements.
func rewriteIDs(args string) string {
	return idArg.ReplaceAllStringFunc(args, func(m string) string {
		sub := idArg.FindStringSubmatch(m)
		return schemas.BackendNodeIDAttr + "=" + sub[1] + sub[2] + sub[1]
	})
}
