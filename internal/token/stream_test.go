package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamPeekNextAndEOF(t *testing.T) {
	s, err := New("SELECT 1")
	require.NoError(t, err)

	require.Equal(t, "SELECT", s.Peek().Text)
	require.False(t, s.AtEOF())
	require.Equal(t, "SELECT", s.Next().Text)
	require.Equal(t, "1", s.Next().Text)
	require.True(t, s.AtEOF())
}

func TestStreamIsAndNextIf(t *testing.T) {
	s, err := New("SELECT * FROM t")
	require.NoError(t, err)

	require.True(t, s.Is("select"))
	_, ok := s.NextIf("from")
	require.False(t, ok)
	_, ok = s.NextIf("select")
	require.True(t, ok)
	require.Equal(t, "*", s.Peek().Text)
}

func TestStreamExpectSucceedsAndFails(t *testing.T) {
	s, err := New("SELECT 1")
	require.NoError(t, err)

	tok, err := s.Expect("select")
	require.NoError(t, err)
	require.Equal(t, "SELECT", tok.Text)

	_, err = s.Expect("from")
	require.Error(t, err)
}

func TestStreamExpectKind(t *testing.T) {
	s, err := New("42")
	require.NoError(t, err)

	tok, err := s.ExpectKind(Number)
	require.NoError(t, err)
	require.Equal(t, "42", tok.Text)

	s2, err := New("abc")
	require.NoError(t, err)
	_, err = s2.ExpectKind(Number)
	require.Error(t, err)
}

func TestStreamMarkResetIsLIFO(t *testing.T) {
	s, err := New("A B C")
	require.NoError(t, err)

	s.Mark()
	s.Next() // A
	s.Mark()
	s.Next() // B
	require.Equal(t, "C", s.Peek().Text)
	s.Reset() // back to before B
	require.Equal(t, "B", s.Peek().Text)
	s.Reset() // back to before A
	require.Equal(t, "A", s.Peek().Text)
}

func TestStreamResetWithoutMarkPanics(t *testing.T) {
	s, err := New("A")
	require.NoError(t, err)
	require.Panics(t, func() { s.Reset() })
}

func TestStreamCommitKeepsProgress(t *testing.T) {
	s, err := New("A B")
	require.NoError(t, err)
	s.Mark()
	s.Next()
	s.Commit()
	require.Equal(t, "B", s.Peek().Text)
}

func TestStreamRawRemainderAndSkipPast(t *testing.T) {
	s, err := New("abc 123 xyz")
	require.NoError(t, err)

	require.Equal(t, "abc 123 xyz", s.RawRemainder())
	s.SkipPast(4) // past "abc "
	require.Equal(t, "123", s.Peek().Text)

	s.SkipPast(100)
	require.True(t, s.AtEOF())
}
