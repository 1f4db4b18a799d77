// internal/browser/parser/declarations_test.go
package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func d(prop, val string, important bool) Declaration {
	return Declaration{Property: Property(prop), Value: Value(val), Important: important}
}

func TestParseDeclarations(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Declaration
	}{
		{"Single", "display:none", []Declaration{d("display", "none", false)}},
		{"Spacing and case", "  Display : None ; ", []Declaration{d("display", "None", false)}},
		{"Multiple", "color: red; visibility: hidden;", []Declaration{d("color", "red", false), d("visibility", "hidden", false)}},
		{"Important", "display: block !important", []Declaration{d("display", "block", true)}},
		{"Quoted semicolon", `font-family: "a;b", serif; display: none`, []Declaration{d("font-family", `"a;b", serif`, false), d("display", "none", false)}},
		{"Function with semicolon", `background: url("x;y.png") no-repeat`, []Declaration{d("background", `url("x;y.png") no-repeat`, false)}},
		{"Comments", "/* hide */ display: /* really */ none", []Declaration{d("display", "none", false)}},
		{"Missing colon skipped", "garbage; display: none", []Declaration{d("display", "none", false)}},
		{"Empty value skipped", "display: ; color: blue", []Declaration{d("color", "blue", false)}},
		{"Leading junk", "!!!; opacity: 0", []Declaration{d("opacity", "0", false)}},
		{"Empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewParser(tt.input).ParseDeclarations())
		})
	}
}

func TestParseInline_Precedence(t *testing.T) {
	style := ParseInline("display: none; display: block")
	assert.Equal(t, "block", style.Get("display"), "later declarations win")

	style = ParseInline("display: none !important; display: block")
	assert.Equal(t, "none", style.Get("display"), "important beats a later normal declaration")

	style = ParseInline("visibility: HIDDEN")
	assert.Equal(t, "hidden", style.Get("visibility"))
	assert.Equal(t, "", style.Get("opacity"))
}

// The parser must terminate on any input and never panic.
func TestParseDeclarations_Total(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		input := rapid.StringOf(rapid.SampledFrom([]rune("ab-:;!/*\"'() \\important"))).Draw(rt, "style")
		for _, decl := range NewParser(input).ParseDeclarations() {
			if decl.Property == "" || decl.Value == "" {
				rt.Fatalf("empty declaration parsed from %q: %+v", input, decl)
			}
		}
	})
}
