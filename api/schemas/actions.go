// api/schemas/actions.go
package schemas

// -- Browser Action Schemas --

// FunctionCall is one step of an action as executed by the automation server.
// Dotpath names the method (e.g. "page.locator", "click") and Args holds the
// already serialized argument list exactly as it goes inside the parentheses.
type FunctionCall struct {
	Dotpath string `json:"dotpath"`
	Args    string `json:"args"`
}

// StopDotpath marks the terminal call. It is interpreted locally and never
// sent to the automation server.
const StopDotpath = "stop"

// BrowserAction is a parsed agent response.
type BrowserAction struct {
	FunctionCalls []FunctionCall `json:"function_calls"`
	// Response is the full agent text the action was parsed from.
	Response string `json:"response"`
	// MatchedResponse is the fenced substring the calls were extracted from.
	MatchedResponse string `json:"matched_response"`
}

// IsEmpty reports whether the action carries no calls, the sentinel used when
// parsing failed.
func (a *BrowserAction) IsEmpty() bool {
	return a == nil || len(a.FunctionCalls) == 0
}

// StopCall returns the terminal call if the action contains one.
func (a *BrowserAction) StopCall() (FunctionCall, bool) {
	if a == nil {
		return FunctionCall{}, false
	}
	for _, call := range a.FunctionCalls {
		if call.Dotpath == StopDotpath {
			return call, true
		}
	}
	return FunctionCall{}, false
}
