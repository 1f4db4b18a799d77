// internal/browser/parser/declarations.go

// Package parser reads CSS declaration lists such as the value of an inline
// style attribute. Selectors, at-rules and the cascade are out of its reach.
package parser

import (
	"strings"
)

// Property is a lower-cased CSS property name, e.g. "display".
type Property string

// Value is the raw value text with surrounding whitespace trimmed.
type Value string

// Declaration is one property: value pair.
type Declaration struct {
	Property  Property
	Value     Value
	Important bool
}

// InlineStyle is the effective value per property of a declaration list.
type InlineStyle map[Property]Declaration

// Get returns the lower-cased effective value of prop, or "".
func (s InlineStyle) Get(prop Property) string {
	d, ok := s[prop]
	if !ok {
		return ""
	}
	return strings.ToLower(string(d.Value))
}

// ParseInline parses a style attribute. Later declarations win unless an
// earlier one for the same property is !important and the later one is not.
func ParseInline(style string) InlineStyle {
	out := InlineStyle{}
	for _, d := range NewParser(style).ParseDeclarations() {
		if prev, ok := out[d.Property]; ok && prev.Important && !d.Important {
			continue
		}
		out[d.Property] = d
	}
	return out
}

// Parser is a cursor over a declaration list.
type Parser struct {
	input string
	pos   int
}

func NewParser(input string) *Parser {
	return &Parser{input: input}
}

// ParseDeclarations returns the well-formed declarations in source order.
// Malformed entries are skipped up to the next semicolon.
func (p *Parser) ParseDeclarations() []Declaration {
	var decls []Declaration
	for {
		p.skipWhitespaceAndComments()
		if p.eof() {
			return decls
		}
		if p.current() == ';' {
			p.pos++
			continue
		}
		if d, ok := p.parseDeclaration(); ok {
			decls = append(decls, d)
		}
	}
}

func (p *Parser) parseDeclaration() (Declaration, bool) {
	name := p.parseIdentifier()
	p.skipWhitespaceAndComments()
	if name == "" || p.eof() || p.current() != ':' {
		p.skipPast(';')
		return Declaration{}, false
	}
	p.pos++ // ':'
	p.skipWhitespaceAndComments()

	value := p.parseValue()
	important := false
	if lower := strings.ToLower(value); strings.HasSuffix(lower, "!important") {
		important = true
		value = strings.TrimSpace(value[:len(value)-len("!important")])
	}
	if !p.eof() && p.current() == ';' {
		p.pos++
	}
	if value == "" {
		return Declaration{}, false
	}
	return Declaration{
		Property:  Property(strings.ToLower(name)),
		Value:     Value(value),
		Important: important,
	}, true
}

// parseValue reads up to the terminating semicolon, skipping over quoted
// strings, parenthesized groups and comments.
func (p *Parser) parseValue() string {
	var b strings.Builder
	for !p.eof() {
		switch ch := p.current(); {
		case ch == ';':
			return strings.TrimSpace(b.String())
		case ch == '"' || ch == '\'':
			start := p.pos
			p.skipQuoted(ch)
			b.WriteString(p.input[start:p.pos])
		case ch == '(':
			start := p.pos
			p.skipParens()
			b.WriteString(p.input[start:p.pos])
		case strings.HasPrefix(p.input[p.pos:], "/*"):
			p.skipComment()
			b.WriteByte(' ')
		default:
			b.WriteByte(ch)
			p.pos++
		}
	}
	return strings.TrimSpace(b.String())
}

func (p *Parser) eof() bool { return p.pos >= len(p.input) }

func (p *Parser) current() byte { return p.input[p.pos] }

func (p *Parser) skipWhitespaceAndComments() {
	for !p.eof() {
		switch {
		case isWhitespace(p.current()):
			p.pos++
		case strings.HasPrefix(p.input[p.pos:], "/*"):
			p.skipComment()
		default:
			return
		}
	}
}

func (p *Parser) skipComment() {
	end := strings.Index(p.input[p.pos+2:], "*/")
	if end < 0 {
		p.pos = len(p.input)
		return
	}
	p.pos += 2 + end + 2
}

func (p *Parser) skipPast(target byte) {
	for !p.eof() {
		ch := p.current()
		p.pos++
		if ch == target {
			return
		}
	}
}

func (p *Parser) skipQuoted(quote byte) {
	p.pos++
	for !p.eof() {
		ch := p.current()
		p.pos++
		if ch == '\\' && !p.eof() {
			p.pos++
		} else if ch == quote {
			return
		}
	}
}

func (p *Parser) skipParens() {
	depth := 0
	for !p.eof() {
		ch := p.current()
		switch ch {
		case '"', '\'':
			p.skipQuoted(ch)
			continue
		case '(':
			depth++
		case ')':
			depth--
		}
		p.pos++
		if depth == 0 {
			return
		}
	}
}

func (p *Parser) parseIdentifier() string {
	start := p.pos
	for !p.eof() && isIdentifierChar(p.current()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isIdentifierChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-'
}
