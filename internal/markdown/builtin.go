// internal/markdown/builtin.go
package markdown

import (
	"fmt"
	"strconv"
	"strings"
)

// Builtin node types.
const (
	TypeSection        = "section"
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeList           = "list"
	TypeListItem       = "list_item"
	TypeTable          = "table"
	TypeTableRow       = "table_row"
	TypeTableCell      = "table_cell"
	TypePreformatted   = "preformatted"
	TypeBlockquote     = "blockquote"
	TypeHorizontalRule = "horizontal_rule"
	TypeLineBreak      = "line_break"
	TypeBold           = "bold"
	TypeItalic         = "italic"
	TypeUnderline      = "underline"
	TypeStrikethrough  = "strikethrough"
	TypeCode           = "code"
	TypeLink           = "link"
	TypeImage          = "image"
	TypeButton         = "button"
	TypeInput          = "input"
	TypeTextarea       = "textarea"
	TypeSelect         = "select"
	TypeOption         = "option"
	TypeTextbox        = "textbox"
)

// IconText replaces an italic run with no content, which on real pages is
// almost always an icon font glyph.
const IconText = "(icon)"

// cellSeparator delimits table cells between the row and table formatters.
// It is stripped from page text so it cannot be forged.
const cellSeparator = "\x1f"

var (
	inlineTypes = []string{
		TypeBold, TypeItalic, TypeUnderline, TypeStrikethrough, TypeCode, TypeLink,
		TypeImage, TypeButton, TypeInput, TypeTextarea, TypeSelect, TypeLineBreak,
	}
	blockTypes = []string{
		TypeSection, TypeParagraph, TypeHeading, TypeList, TypeTable, TypePreformatted,
		TypeBlockquote, TypeHorizontalRule,
	}
	flowTypes = append(append([]string{}, blockTypes...), inlineTypes...)
)

// builtin pairs a schema with its priority.
type builtin struct {
	schema   Schema
	priority int
}

func builtinSchemas() []builtin {
	return []builtin{
		{&Rule{TypeName: TypeInput, Tags: []string{"input"}, IsInteractive: true, FormatFunc: formatInput}, 100},
		{&Rule{TypeName: TypeTextarea, Tags: []string{"textarea"}, IsInteractive: true, FormatFunc: formatTextarea}, 100},
		{&Rule{TypeName: TypeSelect, Tags: []string{"select"}, Next: []string{TypeOption}, IsInteractive: true, FormatFunc: formatSelect}, 100},
		{&Rule{TypeName: TypeOption, Tags: []string{"option"}, FormatFunc: formatOneLine}, 95},
		{&Rule{
			TypeName:      TypeButton,
			Tags:          []string{"button"},
			AttrValues:    map[string][]string{"role": {"button", "tab", "menuitem", "switch", "checkbox", "radio", "option"}},
			IsInteractive: true,
			FormatFunc:    formatButton,
		}, 90},
		{&Rule{TypeName: TypeLink, Tags: []string{"a"}, AttrValues: map[string][]string{"role": {"link"}}, FormatFunc: formatMarkdownLink}, 80},
		{&Rule{TypeName: TypeImage, Tags: []string{"img"}, AttrValues: map[string][]string{"role": {"img"}}, FormatFunc: formatMarkdownImage}, 75},
		{&Rule{
			TypeName:   TypeHeading,
			Tags:       []string{"h1", "h2", "h3", "h4", "h5", "h6"},
			AttrValues: map[string][]string{"role": {"heading"}},
			Next:       inlineTypes,
			FormatFunc: formatHeading,
		}, 70},
		{&Rule{TypeName: TypeList, Tags: []string{"ul", "ol"}, Next: []string{TypeListItem}, Indent: true, FormatFunc: formatList}, 60},
		{&Rule{TypeName: TypeListItem, Tags: []string{"li"}, Next: flowTypes, FormatFunc: formatTrimmed}, 60},
		{&Rule{TypeName: TypeTable, Tags: []string{"table"}, Next: []string{TypeTableRow}, FormatFunc: formatTable}, 60},
		{&Rule{TypeName: TypeTableRow, Tags: []string{"tr"}, Next: []string{TypeTableCell}, FormatFunc: formatTableRow}, 60},
		{&Rule{TypeName: TypeTableCell, Tags: []string{"td", "th"}, Next: flowTypes, FormatFunc: formatOneLine}, 60},
		{&Rule{TypeName: TypePreformatted, Tags: []string{"pre"}, FormatFunc: formatPreformatted}, 55},
		{&Rule{TypeName: TypeBlockquote, Tags: []string{"blockquote"}, Next: flowTypes, FormatFunc: formatBlockquote}, 55},
		{&Rule{TypeName: TypeCode, Tags: []string{"code", "kbd", "samp"}, FormatFunc: wrapWith("`", "`")}, 50},
		{&Rule{TypeName: TypeBold, Tags: []string{"b", "strong"}, Next: inlineTypes, FormatFunc: wrapWith("**", "**")}, 40},
		{&Rule{TypeName: TypeItalic, Tags: []string{"i", "em"}, Next: inlineTypes, FormatFunc: formatItalic}, 40},
		{&Rule{TypeName: TypeUnderline, Tags: []string{"u", "ins"}, Next: inlineTypes, FormatFunc: wrapWith("<u>", "</u>")}, 40},
		{&Rule{TypeName: TypeStrikethrough, Tags: []string{"s", "del", "strike"}, Next: inlineTypes, FormatFunc: wrapWith("~~", "~~")}, 40},
		{&Rule{TypeName: TypeLineBreak, Tags: []string{"br"}, FormatFunc: constant("\n")}, 30},
		{&Rule{TypeName: TypeHorizontalRule, Tags: []string{"hr"}, FormatFunc: constant("\n---\n")}, 30},
		{&Rule{TypeName: TypeParagraph, Tags: []string{"p"}, Next: inlineTypes, FormatFunc: formatBlock}, 20},
		{&Rule{
			TypeName: TypeSection,
			Tags: []string{
				"div", "section", "article", "main", "header", "footer", "nav", "aside",
				"form", "fieldset", "figure", "details", "dialog", "dl",
			},
			Next:       flowTypes,
			FormatFunc: formatBlock,
		}, 10},
	}
}

// textboxSchema covers contenteditable regions and ARIA text fields. It is
// registered after the builtins and allowed wherever inline content is.
var textboxSchema = &Rule{
	TypeName: TypeTextbox,
	AttrValues: map[string][]string{
		"contenteditable": {"", "true", "plaintext-only"},
		"role":            {"textbox", "searchbox", "combobox"},
	},
	IsInteractive: true,
	FormatFunc:    formatTextbox,
}

// Element-aware replacements for the plain markdown link and image schemas.
var (
	elementLinkSchema = &Rule{
		TypeName:      TypeLink,
		Tags:          []string{"a"},
		AttrValues:    map[string][]string{"role": {"link"}},
		IsInteractive: true,
		FormatFunc:    formatElementLink,
	}
	elementImageSchema = &Rule{
		TypeName:   TypeImage,
		Tags:       []string{"img"},
		AttrValues: map[string][]string{"role": {"img"}},
		FormatFunc: formatElementImage,
	}
)

// NewBaseRegistry returns an unfrozen registry with the builtin schemas and
// plain markdown links and images, ready for further registration.
func NewBaseRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, b := range builtinSchemas() {
		if err := r.Register(b.schema, b.priority); err != nil {
			return nil, err
		}
	}
	inlineContainers := []string{
		TypeSection, TypeParagraph, TypeHeading, TypeListItem, TypeTableCell, TypeBlockquote,
		TypeBold, TypeItalic, TypeUnderline, TypeStrikethrough,
	}
	if err := r.Register(textboxSchema, 85, inlineContainers...); err != nil {
		return nil, err
	}
	return r, nil
}

// NewDefaultRegistry returns the frozen registry used to build observations:
// the base registry with links and images replaced by versions that expose
// candidate ids.
func NewDefaultRegistry() *Registry {
	r, err := NewBaseRegistry()
	if err != nil {
		panic(fmt.Sprintf("builtin schema registration failed: %v", err))
	}
	if err := r.Override(TypeLink, elementLinkSchema); err != nil {
		panic(err)
	}
	if err := r.Override(TypeImage, elementImageSchema); err != nil {
		panic(err)
	}
	r.Freeze()
	return r
}

// -- Formatters --

func constant(s string) func(FormatContext) string {
	return func(FormatContext) string { return s }
}

func wrapWith(open, close string) func(FormatContext) string {
	return func(ctx FormatContext) string {
		content := strings.TrimSpace(ctx.Content())
		if content == "" {
			return ""
		}
		return open + content + close
	}
}

func formatItalic(ctx FormatContext) string {
	out := "*" + strings.TrimSpace(ctx.Content()) + "*"
	if len(out) == 2 {
		return IconText
	}
	return out
}

func formatTrimmed(ctx FormatContext) string {
	return strings.TrimSpace(ctx.Content())
}

func formatOneLine(ctx FormatContext) string {
	return oneLine(ctx.Content())
}

func formatBlock(ctx FormatContext) string {
	content := strings.TrimSpace(ctx.Content())
	if content == "" {
		return ""
	}
	return "\n" + content + "\n"
}

func headingLevel(el *Element) int {
	if len(el.Tag) == 2 && el.Tag[0] == 'h' && el.Tag[1] >= '1' && el.Tag[1] <= '6' {
		return int(el.Tag[1] - '0')
	}
	if level, err := strconv.Atoi(strings.TrimSpace(el.Attr("aria-level"))); err == nil && level >= 1 && level <= 6 {
		return level
	}
	return 2
}

func formatHeading(ctx FormatContext) string {
	content := oneLine(ctx.Content())
	if content == "" {
		return ""
	}
	return "\n" + strings.Repeat("#", headingLevel(ctx.Element)) + " " + content + "\n"
}

func formatList(ctx FormatContext) string {
	ordered := ctx.Element.Tag == "ol"
	number := 1
	if start, err := strconv.Atoi(strings.TrimSpace(ctx.Element.Attr("start"))); err == nil {
		number = start
	}
	prefix := strings.Repeat(IndentUnit, ctx.Indent)

	var lines []string
	for i, child := range ctx.Element.Children {
		content := strings.TrimSpace(ctx.Children[i])
		if content == "" {
			continue
		}
		if el, ok := child.(*Element); !ok || el.Type != TypeListItem {
			lines = append(lines, prefix+content)
			continue
		}
		marker := "*"
		if ordered {
			marker = strconv.Itoa(number) + "."
			number++
		}
		lines = append(lines, prefix+marker+" "+indentContinuation(content, prefix, len(marker)+1))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}

// indentContinuation aligns lines 2..n of an item with the text after its
// marker. Lines of a nested list already carry a deeper prefix and are kept.
func indentContinuation(content, prefix string, width int) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 1 {
		return content
	}
	nested := prefix + IndentUnit
	pad := prefix + strings.Repeat(" ", width)
	for i := 1; i < len(lines); i++ {
		if lines[i] == "" || strings.HasPrefix(lines[i], nested) {
			continue
		}
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}

func formatTableRow(ctx FormatContext) string {
	var cells []string
	for i, child := range ctx.Element.Children {
		content := oneLine(ctx.Children[i])
		el, isCell := child.(*Element)
		if !isCell || el.Type != TypeTableCell {
			if content != "" {
				cells = append(cells, content)
			}
			continue
		}
		cells = append(cells, content)
		span, err := strconv.Atoi(strings.TrimSpace(el.Attr("colspan")))
		if err != nil || span < 1 {
			span = 1
		}
		if span > maxColspan {
			span = maxColspan
		}
		for j := 1; j < span; j++ {
			cells = append(cells, "")
		}
	}
	if len(cells) == 0 {
		return ""
	}
	return cellSeparator + strings.Join(cells, cellSeparator)
}

// maxColspan bounds the cells a single colspan can add.
const maxColspan = 64

func formatTable(ctx FormatContext) string {
	var rows [][]string
	var other []string
	width := 0
	for _, s := range ctx.Children {
		if strings.HasPrefix(s, cellSeparator) {
			cells := strings.Split(s[len(cellSeparator):], cellSeparator)
			rows = append(rows, cells)
			if len(cells) > width {
				width = len(cells)
			}
		} else if s = strings.TrimSpace(s); s != "" {
			other = append(other, s)
		}
	}

	var lines []string
	lines = append(lines, other...)
	for i, cells := range rows {
		for len(cells) < width {
			cells = append(cells, "")
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 {
			lines = append(lines, "|"+strings.Repeat(" --- |", width))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}

func formatPreformatted(ctx FormatContext) string {
	raw := strings.Trim(strings.Join(ctx.Children, ""), "\n")
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return "\n```\n" + raw + "\n```\n"
}

func formatBlockquote(ctx FormatContext) string {
	content := strings.TrimSpace(ctx.Content())
	if content == "" {
		return ""
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight("> "+line, " ")
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}

func formatMarkdownLink(ctx FormatContext) string {
	text := oneLine(ctx.Content())
	href := strings.TrimSpace(ctx.Element.Attr("href"))
	if href == "" {
		return text
	}
	return "[" + text + "](" + href + ")"
}

func formatMarkdownImage(ctx FormatContext) string {
	alt := oneLine(ctx.Element.Attr("alt"))
	src := strings.TrimSpace(ctx.Element.Attr("src"))
	if src == "" {
		return alt
	}
	return "![" + alt + "](" + src + ")"
}

// interactiveText renders `[id: <id>] "<text>" (<role>)`. Elements without a
// candidate id are rendered as their text only.
func interactiveText(ctx FormatContext, text, role string) string {
	text = truncate(oneLine(text), ctx.Options.maxLabel())
	id := ctx.Element.CandidateID()
	if id == "" {
		return text
	}
	return fmt.Sprintf("[id: %s] \"%s\" (%s)", id, text, role)
}

func formatElementLink(ctx FormatContext) string {
	if ctx.Element.CandidateID() == "" {
		return formatMarkdownLink(ctx)
	}
	return interactiveText(ctx, Label(ctx.Element, ctx.Options.maxLabel()), "link")
}

func formatElementImage(ctx FormatContext) string {
	if ctx.Element.CandidateID() == "" {
		return formatMarkdownImage(ctx)
	}
	text := oneLine(ctx.Element.Attr("alt"))
	if text == "" {
		text = Label(ctx.Element, ctx.Options.maxLabel())
	}
	return interactiveText(ctx, text, "image")
}

func formatButton(ctx FormatContext) string {
	role := strings.ToLower(strings.TrimSpace(ctx.Element.Attr("role")))
	if role == "" {
		role = "button"
	}
	if state := ariaState(ctx.Element); state != "" {
		role += ", " + state
	}
	return interactiveText(ctx, Label(ctx.Element, ctx.Options.maxLabel()), role)
}

func ariaState(el *Element) string {
	for _, attr := range []string{"aria-checked", "aria-selected", "aria-pressed", "aria-expanded"} {
		if v := strings.ToLower(strings.TrimSpace(el.Attr(attr))); v != "" {
			return strings.TrimPrefix(attr, "aria-") + "=" + v
		}
	}
	return ""
}

// editableValue prefers the live value reported by the server over markup.
func editableValue(el *Element, fallback string) string {
	if el.Metadata != nil && el.Metadata.EditableValue != nil {
		return *el.Metadata.EditableValue
	}
	return fallback
}

// displayText picks the value, then the label, then the placeholder.
func displayText(ctx FormatContext, value string) string {
	if v := oneLine(value); v != "" {
		return v
	}
	if l := Label(ctx.Element, ctx.Options.maxLabel()); l != "" {
		return l
	}
	return oneLine(ctx.Element.Attr("placeholder"))
}

func formatInput(ctx FormatContext) string {
	el := ctx.Element
	inputType := strings.ToLower(strings.TrimSpace(el.Attr("type")))
	if inputType == "" {
		inputType = "text"
	}
	switch inputType {
	case "button", "submit", "reset", "image":
		text := el.Attr("value")
		if oneLine(text) == "" {
			text = Label(el, ctx.Options.maxLabel())
		}
		if oneLine(text) == "" {
			text = inputType
		}
		return interactiveText(ctx, text, "button")
	case "checkbox", "radio":
		state := "unchecked"
		if isChecked(el) {
			state = "checked"
		}
		return interactiveText(ctx, Label(el, ctx.Options.maxLabel()), inputType+", "+state)
	}
	return interactiveText(ctx, displayText(ctx, editableValue(el, el.Attr("value"))), inputType+" input")
}

// isChecked reads the live checked state. The automation server reports it in
// editable_value as "true" or "false" for checkboxes and radios; any other
// value, such as the DOM default value "on", falls back to the checked
// attribute.
func isChecked(el *Element) bool {
	if el.Metadata != nil && el.Metadata.EditableValue != nil {
		switch strings.ToLower(strings.TrimSpace(*el.Metadata.EditableValue)) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return el.HasAttr("checked")
}

func formatTextarea(ctx FormatContext) string {
	return interactiveText(ctx, displayText(ctx, editableValue(ctx.Element, ctx.Element.InnerText())), "textarea")
}

func formatTextbox(ctx FormatContext) string {
	return interactiveText(ctx, displayText(ctx, editableValue(ctx.Element, ctx.Element.InnerText())), "editable text")
}

func formatSelect(ctx FormatContext) string {
	el := ctx.Element
	var options []string
	selected := ""
	for i, child := range el.Children {
		opt, ok := child.(*Element)
		if !ok || opt.Type != TypeOption {
			continue
		}
		text := truncate(oneLine(ctx.Children[i]), ctx.Options.maxLabel())
		if text == "" {
			continue
		}
		options = append(options, strconv.Quote(text))
		if selected == "" && opt.HasAttr("selected") {
			selected = text
		}
	}

	text := editableValue(el, "")
	if oneLine(text) == "" {
		text = selected
	}
	if oneLine(text) == "" {
		text = Label(el, ctx.Options.maxLabel())
	}
	role := "select"
	if len(options) > 0 {
		role += " from: " + strings.Join(options, ", ")
	}
	if el.CandidateID() == "" {
		return oneLine(text)
	}
	return interactiveText(ctx, text, role)
}
