package token

import (
	"strings"

	"github.com/qiulin/qwery/internal/qerr"
)

// Stream is a forward-only cursor over a Token slice supporting
// peek/next/mark/reset (spec §4.1). mark/reset form a LIFO stack so nested
// template optionals can each save and restore their own entry point.
type Stream struct {
	toks  []Token
	pos   int
	marks []int
	src   string
}

// New builds a Stream by lexing src.
func New(src string) (*Stream, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return &Stream{toks: toks, src: src}, nil
}

// Peek returns the current token without consuming it.
func (s *Stream) Peek() Token {
	if s.pos >= len(s.toks) {
		return Token{Kind: EOF}
	}
	return s.toks[s.pos]
}

// PeekAt returns the token n positions ahead of the current one (0 == Peek).
func (s *Stream) PeekAt(n int) Token {
	idx := s.pos + n
	if idx < 0 || idx >= len(s.toks) {
		return Token{Kind: EOF}
	}
	return s.toks[idx]
}

// Next consumes and returns the current token.
func (s *Stream) Next() Token {
	tok := s.Peek()
	if s.pos < len(s.toks) {
		s.pos++
	}
	return tok
}

// Is reports whether the current token's text matches s, case-insensitively
// for keywords/idents and exactly for quoted literals.
func (s *Stream) Is(text string) bool {
	tok := s.Peek()
	if tok.Kind == Quoted {
		return tok.Text == text
	}
	return strings.EqualFold(tok.Text, text)
}

// NextIf consumes and returns (token, true) iff the current token's text
// equals text (per the Is matching rule); otherwise leaves the stream
// untouched and returns (zero, false).
func (s *Stream) NextIf(text string) (Token, bool) {
	if s.Is(text) {
		return s.Next(), true
	}
	return Token{}, false
}

// NextIfKind consumes and returns (token, true) iff the current token's Kind
// matches; otherwise leaves the stream untouched.
func (s *Stream) NextIfKind(k Kind) (Token, bool) {
	if s.Peek().Kind == k {
		return s.Next(), true
	}
	return Token{}, false
}

// Expect consumes the current token if it matches text, else raises a
// SyntaxError carrying the offending token's position.
func (s *Stream) Expect(text string) (Token, error) {
	if tok, ok := s.NextIf(text); ok {
		return tok, nil
	}
	tok := s.Peek()
	return Token{}, qerr.NewSyntax(s.posOf(tok), tok.Text, "expected "+text)
}

// ExpectKind consumes the current token if its Kind matches, else raises a
// SyntaxError.
func (s *Stream) ExpectKind(k Kind) (Token, error) {
	if tok, ok := s.NextIfKind(k); ok {
		return tok, nil
	}
	tok := s.Peek()
	return Token{}, qerr.NewSyntax(s.posOf(tok), tok.Text, "expected "+k.String())
}

func (s *Stream) posOf(tok Token) qerr.Pos {
	return qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}
}

// AtEOF reports whether the stream is exhausted.
func (s *Stream) AtEOF() bool {
	return s.Peek().Kind == EOF
}

// Mark pushes the current position onto the mark stack.
func (s *Stream) Mark() {
	s.marks = append(s.marks, s.pos)
}

// Reset pops the most recent mark and restores the stream to that position.
// Reset without a matching Mark is a programmer error and panics, the same
// way an unbalanced LIFO pop would.
func (s *Stream) Reset() {
	n := len(s.marks)
	if n == 0 {
		panic("token: Reset called without a matching Mark")
	}
	s.pos = s.marks[n-1]
	s.marks = s.marks[:n-1]
}

// Commit pops the most recent mark without restoring the position, keeping
// whatever progress was made since Mark.
func (s *Stream) Commit() {
	n := len(s.marks)
	if n == 0 {
		panic("token: Commit called without a matching Mark")
	}
	s.marks = s.marks[:n-1]
}

// Pos returns the current cursor position (for diagnostics/tests).
func (s *Stream) Pos() int { return s.pos }

// RawRemainder returns the unconsumed source text from the current token's
// byte offset onward, for template.Pattern's %r regex tag (spec §4.2), which
// matches against raw source rather than a tokenized view. At EOF it
// returns "".
func (s *Stream) RawRemainder() string {
	if s.pos >= len(s.toks) {
		return ""
	}
	return s.src[s.toks[s.pos].Pos:]
}

// SkipPast advances the cursor to the first token whose byte offset is at or
// beyond endOffset (used after a %r match consumes raw text spanning zero or
// more whole tokens).
func (s *Stream) SkipPast(endOffset int) {
	for s.pos < len(s.toks) && s.toks[s.pos].Pos < endOffset {
		s.pos++
	}
}
