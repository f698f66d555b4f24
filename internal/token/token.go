// Package token holds the source position type shared by the AST and the
// compiler's diagnostics. Tokenization itself lives outside this module;
// the core only ever reads a Position that was already attached to an AST
// node by the parser.
package token

import (
	"strconv"
	"strings"
)

// Position marks a single point in a source file, plus enough of the
// surrounding line to render a caret under the offending column.
type Position struct {
	File string
	Line int
	Col  int
	// SourceLine is the full text of the line the token came from, used
	// only for rendering a caret span in diagnostics.
	SourceLine string
}

// String renders "file:line:col".
func (p *Position) String() string {
	if p == nil {
		return "<unknown position>"
	}
	return p.File + ":" + strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Col)
}

// Show renders the source line followed by a caret pointing at Col.
func (p *Position) Show() string {
	if p == nil || p.SourceLine == "" {
		return ""
	}
	col := p.Col - 1
	if col < 0 {
		col = 0
	}
	if col > len(p.SourceLine) {
		col = len(p.SourceLine)
	}
	return p.SourceLine + "\n" + strings.Repeat(" ", col) + "^"
}

// Token pairs a lexeme with the position it came from. The AST uses Token
// wherever the original source spelling is needed for a later diagnostic
// (function names, field names, identifiers) rather than a bare string.
type Token struct {
	Text string
	Pos  Position
}

// Content returns the token's source text, mirroring the tokenizer's
// Token::content() from the reference implementation.
func (t Token) Content() string { return t.Text }

// Position returns the token's source position.
func (t Token) Position() *Position { return &t.Pos }
