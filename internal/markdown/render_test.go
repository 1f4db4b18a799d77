// internal/markdown/render_test.go
package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

func convert(t *testing.T, src string, metadata map[string]*schemas.NodeMetadata, opts BuildOptions) string {
	t.Helper()
	c := NewConverter(nil, opts, RenderOptions{}, zaptest.NewLogger(t))
	out, err := c.Convert(src, metadata)
	require.NoError(t, err)
	return out
}

func candidate(id string) *schemas.NodeMetadata {
	return &schemas.NodeMetadata{CandidateID: id, IsVisible: true, IsFrontmost: true}
}

func TestRender_Blocks(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "heading and paragraph",
			html: `<h1>Title</h1><p>Hello <b>world</b></p>`,
			want: "# Title\nHello **world**",
		},
		{
			name: "aria heading defaults",
			html: `<div role="heading" aria-level="3">Sub</div><div role="heading">Plain</div>`,
			want: "### Sub\n## Plain",
		},
		{
			name: "nested lists",
			html: `<ul><li>one</li><li>two<ol start="3"><li>a</li><li>b</li></ol></li></ul>`,
			want: "* one\n* two\n    3. a\n    4. b",
		},
		{
			name: "multi-line item in nested list",
			html: `<ul><li>a<ul><li><p>x</p><p>y</p></li></ul></li></ul>`,
			want: "* a\n    * x\n      y",
		},
		{
			name: "line break inside nested item",
			html: `<ul><li>a<ul><li>x<br>y</li></ul></li></ul>`,
			want: "* a\n    * x\n      y",
		},
		{
			name: "ordered item continuation aligns with text",
			html: `<ol><li>x<br>y</li></ol>`,
			want: "1. x\n   y",
		},
		{
			name: "empty list items are skipped",
			html: `<ol><li>x</li><li> </li><li>y</li></ol>`,
			want: "1. x\n2. y",
		},
		{
			name: "table padding and colspan",
			html: `<table><tr><th>A</th><th>B</th></tr><tr><td colspan="2">x</td><td>y</td><td>z</td></tr><tr><td>1</td></tr></table>`,
			want: "| A | B |  |  |\n| --- | --- | --- | --- |\n| x |  | y | z |\n| 1 |  |  |  |",
		},
		{
			name: "inline styles",
			html: `<p><i>it</i> <u>under</u> <s>gone</s> <code>x := 1</code> <strong></strong></p>`,
			want: "*it* <u>under</u> ~~gone~~ `x := 1`",
		},
		{
			name: "icon",
			html: `<p><i class="fa fa-bars"></i> Menu</p>`,
			want: IconText + " Menu",
		},
		{
			name: "preformatted keeps whitespace",
			html: "<pre>line1\n  line2</pre>",
			want: "```\nline1\n  line2\n```",
		},
		{
			name: "blockquote",
			html: `<blockquote><p>a</p><p>b</p></blockquote>`,
			want: "> a\n>\n> b",
		},
		{
			name: "rule and break",
			html: `<p>a<br>b</p><hr><p>c</p>`,
			want: "a\nb\n---\nc",
		},
		{
			name: "wrapper flattening",
			html: `<div><span><span>deep</span></span> text</div>`,
			want: "deep text",
		},
		{
			name: "plain links and images without ids",
			html: `<p><a href="/home">Home</a> <img src="/logo.png" alt="Logo"></p>`,
			want: "[Home](/home) ![Logo](/logo.png)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convert(t, tt.html, nil, BuildOptions{}))
		})
	}
}

func TestRender_Interactive(t *testing.T) {
	typed := "hello"
	metadata := map[string]*schemas.NodeMetadata{
		"5": candidate("5"),
		"6": candidate("6"),
		"7": candidate("7"),
		"8": candidate("8"),
	}
	metadata["8"].EditableValue = &typed

	out := convert(t,
		`<a href="/x" backend_node_id="5">Go home</a><button backend_node_id="6">Submit</button>`+
			`<input type="text" name="q" backend_node_id="7"><input type="text" backend_node_id="8">`,
		metadata, BuildOptions{})
	assert.Equal(t,
		`[id: 5] "Go home" (link) [id: 6] "Submit" (button) [id: 7] "q" (text input) [id: 8] "hello" (text input)`,
		out)
}

func TestRender_InteractiveKinds(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"checkbox", `<input type="checkbox" aria-label="Remember" checked backend_node_id="1">`, `[id: 1] "Remember" (checkbox, checked)`},
		{"submit", `<input type="submit" value="Send" backend_node_id="1">`, `[id: 1] "Send" (button)`},
		{"placeholder", `<input placeholder="Search" backend_node_id="1">`, `[id: 1] "Search" (text input)`},
		{"textarea", `<textarea backend_node_id="1">draft</textarea>`, `[id: 1] "draft" (textarea)`},
		{"select", `<select backend_node_id="1"><option>Red</option><option selected>Blue</option></select>`, `[id: 1] "Blue" (select from: "Red", "Blue")`},
		{"role tab", `<div role="tab" aria-selected="true" backend_node_id="1">Overview</div>`, `[id: 1] "Overview" (tab, selected=true)`},
		{"contenteditable", `<div contenteditable="true" backend_node_id="1">notes</div>`, `[id: 1] "notes" (editable text)`},
		{"image", `<img src="/a.png" alt="Avatar" backend_node_id="1">`, `[id: 1] "Avatar" (image)`},
		{"label keeps quotes and backslashes", `<button backend_node_id="1">Say "hi" \ now</button>`, `[id: 1] "Say "hi" \ now" (button)`},
		{"title wins over text", `<a href="/x" title="Docs" backend_node_id="1">click here</a>`, `[id: 1] "Docs" (link)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := map[string]*schemas.NodeMetadata{"1": candidate("1")}
			assert.Equal(t, tt.want, convert(t, tt.html, metadata, BuildOptions{}))
		})
	}
}

func TestRender_CheckboxState(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		editable string
		want     string
	}{
		{"default value on is not checked", `<input type="checkbox" aria-label="Remember" backend_node_id="1">`, "on", `[id: 1] "Remember" (checkbox, unchecked)`},
		{"default value on keeps checked attribute", `<input type="checkbox" aria-label="Remember" checked backend_node_id="1">`, "on", `[id: 1] "Remember" (checkbox, checked)`},
		{"live false overrides attribute", `<input type="checkbox" aria-label="Remember" checked backend_node_id="1">`, "false", `[id: 1] "Remember" (checkbox, unchecked)`},
		{"live true", `<input type="radio" aria-label="Yes" backend_node_id="1">`, "True", `[id: 1] "Yes" (radio, checked)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			editable := tt.editable
			metadata := map[string]*schemas.NodeMetadata{"1": candidate("1")}
			metadata["1"].EditableValue = &editable
			assert.Equal(t, tt.want, convert(t, tt.html, metadata, BuildOptions{}))
		})
	}
}

func TestRender_LabelTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "word "
	}
	metadata := map[string]*schemas.NodeMetadata{"1": candidate("1")}
	c := NewConverter(nil, BuildOptions{}, RenderOptions{MaxLabelLength: 9}, nil)
	out, err := c.Convert(`<button backend_node_id="1">`+long+`</button>`, metadata)
	require.NoError(t, err)
	assert.Equal(t, `[id: 1] "word word..." (button)`, out)
}

func TestRender_UnknownTypeFallsBackToContent(t *testing.T) {
	nodes := []Node{&Element{Type: "mystery", Children: []Node{&Text{Value: "a"}, &Text{Value: "b"}}}}
	assert.Equal(t, "a b", Render(nodes, NewDefaultRegistry(), RenderOptions{}))
}

func TestRender_StrayCellSeparator(t *testing.T) {
	nodes := []Node{&Text{Value: "a" + cellSeparator + "b"}}
	assert.Equal(t, "a | b", Render(nodes, NewDefaultRegistry(), RenderOptions{}))
}

func TestJoinFragments(t *testing.T) {
	assert.Equal(t, "a b", joinFragments([]string{"a", "", "b"}))
	assert.Equal(t, "a\nb", joinFragments([]string{"a", "\nb"}))
	assert.Equal(t, "a\nb", joinFragments([]string{"a\n", "b"}))
	assert.Equal(t, "", joinFragments(nil))
}

func TestLabel(t *testing.T) {
	el := &Element{Children: []Node{&Text{Value: "inner"}}}
	assert.Equal(t, "inner", Label(el, 100))

	el.Attrs = append(el.Attrs, htmlAttr("href", "/x"))
	assert.Equal(t, "inner", Label(el, 100))

	el.Attrs = append(el.Attrs, htmlAttr("aria-label", "  Aria \n label "))
	assert.Equal(t, "Aria label", Label(el, 100))

	el.Attrs = append(el.Attrs, htmlAttr("name", "field"))
	assert.Equal(t, "field", Label(el, 100))

	assert.Equal(t, "/x", Label(&Element{Attrs: el.Attrs[:1]}, 100))
	assert.Equal(t, "", Label(&Element{}, 100))
	assert.Equal(t, "héll...", truncate("héllo", 4))
	assert.Equal(t, "ab", truncate("ab", 0))
}
