// internal/actions/parser_test.go
package actions

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
)

const locator5 = `"[backend_node_id=\"5\"]"`

func fenced(lang, body string) string {
	return "I will act now.\n```" + lang + "\n" + body + "\n```\nDone."
}

func TestNewParser(t *testing.T) {
	p, err := NewParser("")
	require.NoError(t, err)
	assert.IsType(t, JSONParser{}, p)

	p, err = NewParser(config.GrammarCallChain)
	require.NoError(t, err)
	assert.IsType(t, CallChainParser{}, p)

	_, err = NewParser("yaml")
	assert.ErrorContains(t, err, "unknown action grammar")
}

func TestActionKeys(t *testing.T) {
	keys := ActionKeys()
	assert.Len(t, keys, len(dispatch))
	assert.IsIncreasing(t, keys)
	assert.Equal(t, "clear", keys[0])
	assert.Contains(t, keys, "stop")
	assert.Equal(t, keys, ActionKeys(), "order is stable across calls")
}

func TestLastFencedBlock(t *testing.T) {
	block, ok := lastFencedBlock("```json\n{\"a\":1}\n```\nthen\n```\nsecond\n```")
	require.True(t, ok)
	assert.Equal(t, "second\n", block)

	block, ok = lastFencedBlock("```page.goto(\"x\")```")
	require.True(t, ok)
	assert.Equal(t, `page.goto("x")`, block)

	_, ok = lastFencedBlock("no code here")
	assert.False(t, ok)
}

func TestJSONParser_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []schemas.FunctionCall
	}{
		{
			name: "click",
			body: `{"action_key": "click", "action_kwargs": {}, "target_element_id": 5}`,
			want: []schemas.FunctionCall{{Dotpath: "page.locator", Args: locator5}, {Dotpath: "click"}},
		},
		{
			name: "string target",
			body: `{"action_key": "hover", "target_element_id": "5"}`,
			want: []schemas.FunctionCall{{Dotpath: "page.locator", Args: locator5}, {Dotpath: "hover"}},
		},
		{
			name: "fill",
			body: `{"action_key": "fill", "action_kwargs": {"value": "say \"hi\""}, "target_element_id": 5}`,
			want: []schemas.FunctionCall{{Dotpath: "page.locator", Args: locator5}, {Dotpath: "fill", Args: `"say \"hi\""`}},
		},
		{
			name: "select option",
			body: `{"action_key": "select_option", "action_kwargs": {"value": "Blue"}, "target_element_id": 5}`,
			want: []schemas.FunctionCall{{Dotpath: "page.locator", Args: locator5}, {Dotpath: "select_option", Args: `"Blue"`}},
		},
		{
			name: "set checked",
			body: `{"action_key": "set_checked", "action_kwargs": {"checked": false}, "target_element_id": 5}`,
			want: []schemas.FunctionCall{{Dotpath: "page.locator", Args: locator5}, {Dotpath: "set_checked", Args: "False"}},
		},
		{
			name: "press on element",
			body: `{"action_key": "press", "action_kwargs": {"key": "Enter"}, "target_element_id": 5}`,
			want: []schemas.FunctionCall{{Dotpath: "page.locator", Args: locator5}, {Dotpath: "press", Args: `"Enter"`}},
		},
		{
			name: "press on page",
			body: `{"action_key": "press", "action_kwargs": {"key": "Escape"}}`,
			want: []schemas.FunctionCall{{Dotpath: "page.keyboard.press", Args: `"Escape"`}},
		},
		{
			name: "type",
			body: `{"action_key": "type", "action_kwargs": {"text": "hello"}}`,
			want: []schemas.FunctionCall{{Dotpath: "page.keyboard.type", Args: `"hello"`}},
		},
		{
			name: "scroll",
			body: `{"action_key": "scroll", "action_kwargs": {"delta_x": 0, "delta_y": 300}}`,
			want: []schemas.FunctionCall{{Dotpath: "page.mouse.wheel", Args: "0,300"}},
		},
		{
			name: "goto",
			body: `{"action_key": "goto", "action_kwargs": {"url": "https://example.com"}}`,
			want: []schemas.FunctionCall{{Dotpath: "page.goto", Args: `"https://example.com"`}},
		},
		{
			name: "go back",
			body: `{"action_key": "go_back", "action_kwargs": {}}`,
			want: []schemas.FunctionCall{{Dotpath: "page.go_back"}},
		},
		{
			name: "wait default",
			body: `{"action_key": "wait"}`,
			want: []schemas.FunctionCall{{Dotpath: "page.wait_for_timeout", Args: "1000"}},
		},
		{
			name: "stop",
			body: `{"action_key": "stop", "action_kwargs": {"answer": "42 results"}}`,
			want: []schemas.FunctionCall{{Dotpath: schemas.StopDotpath, Args: `"42 results"`}},
		},
		{
			name: "key is case insensitive",
			body: `{"action_key": "RELOAD"}`,
			want: []schemas.FunctionCall{{Dotpath: "page.reload"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := fenced("json", tt.body)
			action, err := JSONParser{}.Parse(text)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, action.FunctionCalls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, text, action.Response)
			assert.Equal(t, tt.body+"\n", action.MatchedResponse)
		})
	}
}

func TestJSONParser_Failures(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"no fence", `{"action_key": "click", "target_element_id": 5}`, ErrNoFencedBlock},
		{"unknown key", fenced("json", `{"action_key": "teleport"}`), ErrUnknownAction},
		{"missing target", fenced("json", `{"action_key": "click", "action_kwargs": {}}`), ErrMissingTarget},
		{"null target", fenced("json", `{"action_key": "fill", "action_kwargs": {"value": "x"}, "target_element_id": null}`), ErrMissingTarget},
		{"missing value", fenced("json", `{"action_key": "fill", "target_element_id": 5}`), ErrMissingArgument},
		{"non boolean checked", fenced("json", `{"action_key": "set_checked", "action_kwargs": {"checked": "yes"}, "target_element_id": 5}`), ErrMissingArgument},
		{"missing url", fenced("json", `{"action_key": "goto", "action_kwargs": {}}`), ErrMissingArgument},
		{"malformed json", fenced("json", `{"action_key": "click",`), nil},
		{"bad target", fenced("json", `{"action_key": "click", "target_element_id": 1.5}`), nil},
		{"bad scroll", fenced("json", `{"action_key": "scroll", "action_kwargs": {"delta_y": "down"}}`), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := JSONParser{}.Parse(tt.text)
			require.Error(t, err)
			assert.Nil(t, action, "a failed parse never yields a partial action")
			assert.True(t, schemas.IsKind(err, schemas.KindParse))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCallChainParser(t *testing.T) {
	text := fenced("python", `page.locator("[id=\"5\"]").click()
page.keyboard.type("a (b) \"c\"")
page.mouse.wheel(0, 300)`)

	action, err := CallChainParser{}.Parse(text)
	require.NoError(t, err)

	want := []schemas.FunctionCall{
		{Dotpath: "page.locator", Args: locator5},
		{Dotpath: "click"},
		{Dotpath: "page.keyboard.type", Args: `"a (b) \"c\""`},
		{Dotpath: "page.mouse.wheel", Args: "0, 300"},
	}
	if diff := cmp.Diff(want, action.FunctionCalls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCallChainParser_RewritesIDs(t *testing.T) {
	tests := map[string]string{
		`page.click(id="12")`:                 `backend_node_id="12"`,
		`page.click(id='12')`:                 `backend_node_id='12'`,
		`page.locator("[id=\"7\"]")`:          `"[backend_node_id=\"7\"]"`,
		`page.click(backend_node_id="3")`:     `backend_node_id="3"`,
		`page.fill(id = "4", value="id=\"x")`: `backend_node_id="4", value="id=\"x"`,
	}
	for src, wantArgs := range tests {
		t.Run(src, func(t *testing.T) {
			action, err := CallChainParser{}.Parse(fenced("", src))
			require.NoError(t, err)
			require.Len(t, action.FunctionCalls, 1)
			assert.Equal(t, wantArgs, action.FunctionCalls[0].Args)
		})
	}
}

func TestCallChainParser_Failures(t *testing.T) {
	_, err := CallChainParser{}.Parse("page.click()")
	assert.ErrorIs(t, err, ErrNoFencedBlock)

	_, err = CallChainParser{}.Parse(fenced("", "nothing to call here"))
	assert.ErrorIs(t, err, ErrNoCalls)

	_, err = CallChainParser{}.Parse(fenced("", `page.goto("x"`))
	assert.ErrorContains(t, err, "unbalanced parentheses")
	assert.True(t, schemas.IsKind(err, schemas.KindParse))
}

func TestParseOrEmpty(t *testing.T) {
	action, err := ParseOrEmpty(JSONParser{}, "no block")
	require.Error(t, err)
	require.NotNil(t, action)
	assert.True(t, action.IsEmpty())
	assert.Equal(t, "no block", action.Response)

	action, err = ParseOrEmpty(JSONParser{}, fenced("json", `{"action_key": "reload"}`))
	require.NoError(t, err)
	assert.False(t, action.IsEmpty())
}

func TestStopAnswer(t *testing.T) {
	action, err := JSONParser{}.Parse(fenced("json", `{"action_key": "stop", "action_kwargs": {"answer": "done"}}`))
	require.NoError(t, err)
	call, ok := action.StopCall()
	require.True(t, ok)
	assert.Equal(t, "done", StopAnswer(call))

	assert.Equal(t, "'raw'", StopAnswer(schemas.FunctionCall{Dotpath: "stop", Args: "'raw'"}))
}

// An id rendered in an observation must address the same node when the agent
// targets it, in either grammar.
func TestProperty_IDRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		id := rapid.Uint32().Draw(rt, "id")
		want := Locator(formatNumber(float64(id)))

		action, err := JSONParser{}.Parse(fenced("json", `{"action_key":"click","target_element_id":`+formatNumber(float64(id))+`}`))
		require.NoError(rt, err)
		require.Len(rt, action.FunctionCalls, 2)
		assert.Equal(rt, want, action.FunctionCalls[0])

		action, err = CallChainParser{}.Parse(fenced("", `page.locator("[id=\"`+formatNumber(float64(id))+`\"]").click()`))
		require.NoError(rt, err)
		assert.Equal(rt, want, action.FunctionCalls[0])
	})
}

func FuzzParsers(f *testing.F) {
	f.Add([]byte(fenced("json", `{"action_key": "click", "target_element_id": 5}`)))
	f.Add([]byte(fenced("", `page.locator("[id=\"5\"]").click()`)))
	f.Add([]byte("```\n((((\n```"))

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		text, err := consumer.GetString()
		if err != nil {
			return
		}
		for _, p := range []Parser{JSONParser{}, CallChainParser{}} {
			action, err := p.Parse(text)
			if err != nil {
				var envErr *schemas.EnvError
				if !errors.As(err, &envErr) || envErr.Kind != schemas.KindParse {
					t.Fatalf("%T returned an untyped error: %v", p, err)
				}
				if action != nil {
					t.Fatalf("%T returned a partial action with an error", p)
				}
				continue
			}
			if action.IsEmpty() {
				t.Fatalf("%T returned an action without calls", p)
			}
		}
	})
}
