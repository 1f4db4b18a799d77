// internal/actions/structured.go
package actions

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONParser reads one structured action object:
//
//	{"action_key": "click", "action_kwargs": {}, "target_element_id": 5}
type JSONParser struct{}

var _ Parser = JSONParser{}

// StructuredAction is the JSON object the agent emits.
type StructuredAction struct {
	ActionKey       string                 `json:"action_key"`
	ActionKwargs    map[string]interface{} `json:"action_kwargs"`
	TargetElementID jsoniter.RawMessage    `json:"target_element_id,omitempty"`
}

// DefaultWaitMillis is used by wait when no timeout is given.
const DefaultWaitMillis = 1000

type handler struct {
	needsTarget bool
	build       func(target string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error)
}

// dispatch maps action keys to the calls they produce.
var dispatch = map[string]handler{
	"click":         {needsTarget: true, build: locatorMethod("click")},
	"hover":         {needsTarget: true, build: locatorMethod("hover")},
	"clear":         {needsTarget: true, build: locatorMethod("clear")},
	"focus":         {needsTarget: true, build: locatorMethod("focus")},
	"fill":          {needsTarget: true, build: locatorArg("fill", "value")},
	"select_option": {needsTarget: true, build: locatorArg("select_option", "value")},
	"set_checked":   {needsTarget: true, build: setChecked},
	"press":         {build: press},
	"type":          {build: pageArg("page.keyboard.type", "text")},
	"goto":          {build: pageArg("page.goto", "url")},
	"scroll":        {build: scroll},
	"go_back":       {build: pageMethod("page.go_back")},
	"go_forward":    {build: pageMethod("page.go_forward")},
	"reload":        {build: pageMethod("page.reload")},
	"wait":          {build: wait},
	"stop":          {build: stop},
}

// ActionKeys lists the supported action keys in sorted order.
func ActionKeys() []string {
	keys := make([]string, 0, len(dispatch))
	for k := range dispatch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse implements Parser.
func (JSONParser) Parse(text string) (*schemas.BrowserAction, error) {
	block, ok := lastFencedBlock(text)
	if !ok {
		return nil, parseError(ErrNoFencedBlock)
	}
	var action StructuredAction
	if err := json.UnmarshalFromString(strings.TrimSpace(block), &action); err != nil {
		return nil, parseError(fmt.Errorf("malformed action JSON: %w", err))
	}
	calls, err := action.Calls()
	if err != nil {
		return nil, parseError(err)
	}
	if len(calls) == 0 {
		return nil, parseError(ErrNoCalls)
	}
	return &schemas.BrowserAction{FunctionCalls: calls, Response: text, MatchedResponse: block}, nil
}

// Calls maps the action through the dispatch table.
func (a StructuredAction) Calls() ([]schemas.FunctionCall, error) {
	key := strings.ToLower(strings.TrimSpace(a.ActionKey))
	h, ok := dispatch[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.ActionKey)
	}
	target, err := a.target()
	if err != nil {
		return nil, err
	}
	if h.needsTarget && target == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingTarget, key)
	}
	kwargs := a.ActionKwargs
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	return h.build(target, kwargs)
}

// target normalizes target_element_id, given as a number or a string, to the
// decimal id shown in observations. Absent or null yields "".
func (a StructuredAction) target() (string, error) {
	raw := strings.TrimSpace(string(a.TargetElementID))
	if raw == "" || raw == "null" {
		return "", nil
	}
	var id interface{}
	if err := json.UnmarshalFromString(raw, &id); err != nil {
		return "", fmt.Errorf("malformed target_element_id: %w", err)
	}
	var s string
	switch v := id.(type) {
	case float64:
		if v != float64(int64(v)) || v < 0 {
			return "", fmt.Errorf("target_element_id %v is not a node id", v)
		}
		s = strconv.FormatInt(int64(v), 10)
	case string:
		s = strings.TrimSpace(v)
	default:
		return "", fmt.Errorf("target_element_id has unsupported type %T", id)
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil && s != "" {
		return "", fmt.Errorf("target_element_id %q is not a node id", s)
	}
	return s, nil
}

// Locator returns the call selecting the element with a backend node id.
func Locator(id string) schemas.FunctionCall {
	selector := "[" + schemas.BackendNodeIDAttr + "=\"" + id + "\"]"
	return schemas.FunctionCall{Dotpath: "page.locator", Args: quote(selector)}
}

func quote(v interface{}) string {
	out, err := json.MarshalToString(v)
	if err != nil {
		return strconv.Quote(fmt.Sprint(v))
	}
	return out
}

func locatorMethod(method string) func(string, map[string]interface{}) ([]schemas.FunctionCall, error) {
	return func(target string, _ map[string]interface{}) ([]schemas.FunctionCall, error) {
		return []schemas.FunctionCall{Locator(target), {Dotpath: method}}, nil
	}
}

func locatorArg(method, kwarg string) func(string, map[string]interface{}) ([]schemas.FunctionCall, error) {
	return func(target string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error) {
		v, ok := kwargs[kwarg]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s needs %q", ErrMissingArgument, method, kwarg)
		}
		return []schemas.FunctionCall{Locator(target), {Dotpath: method, Args: quote(v)}}, nil
	}
}

func pageArg(dotpath, kwarg string) func(string, map[string]interface{}) ([]schemas.FunctionCall, error) {
	return func(_ string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error) {
		v, ok := kwargs[kwarg]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s needs %q", ErrMissingArgument, dotpath, kwarg)
		}
		return []schemas.FunctionCall{{Dotpath: dotpath, Args: quote(v)}}, nil
	}
}

func pageMethod(dotpath string) func(string, map[string]interface{}) ([]schemas.FunctionCall, error) {
	return func(string, map[string]interface{}) ([]schemas.FunctionCall, error) {
		return []schemas.FunctionCall{{Dotpath: dotpath}}, nil
	}
}

func setChecked(target string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error) {
	checked, ok := kwargs["checked"].(bool)
	if !ok {
		return nil, fmt.Errorf("%w: set_checked needs a boolean \"checked\"", ErrMissingArgument)
	}
	arg := "False"
	if checked {
		arg = "True"
	}
	return []schemas.FunctionCall{Locator(target), {Dotpath: "set_checked", Args: arg}}, nil
}

func press(target string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error) {
	key, ok := kwargs["key"]
	if !ok || key == nil {
		return nil, fmt.Errorf("%w: press needs \"key\"", ErrMissingArgument)
	}
	if target == "" {
		return []schemas.FunctionCall{{Dotpath: "page.keyboard.press", Args: quote(key)}}, nil
	}
	return []schemas.FunctionCall{Locator(target), {Dotpath: "press", Args: quote(key)}}, nil
}

func scroll(_ string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error) {
	dx, err := number(kwargs, "delta_x", 0)
	if err != nil {
		return nil, err
	}
	dy, err := number(kwargs, "delta_y", 0)
	if err != nil {
		return nil, err
	}
	return []schemas.FunctionCall{{Dotpath: "page.mouse.wheel", Args: formatNumber(dx) + "," + formatNumber(dy)}}, nil
}

func wait(_ string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error) {
	ms, err := number(kwargs, "timeout", DefaultWaitMillis)
	if err != nil {
		return nil, err
	}
	if ms < 0 {
		ms = 0
	}
	return []schemas.FunctionCall{{Dotpath: "page.wait_for_timeout", Args: formatNumber(ms)}}, nil
}

func stop(_ string, kwargs map[string]interface{}) ([]schemas.FunctionCall, error) {
	answer, ok := kwargs["answer"]
	if !ok || answer == nil {
		answer = ""
	}
	if _, isString := answer.(string); !isString {
		answer = quote(answer)
	}
	return []schemas.FunctionCall{{Dotpath: schemas.StopDotpath, Args: quote(answer)}}, nil
}

func number(kwargs map[string]interface{}, key string, fallback float64) (float64, error) {
	v, ok := kwargs[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number, got %q", key, n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%s must be a number, got %T", key, v)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// StopAnswer returns the answer carried by a stop call.
func StopAnswer(call schemas.FunctionCall) string {
	var answer string
	if err := json.UnmarshalFromString(call.Args, &answer); err != nil {
		return call.Args
	}
	return answer
}
