package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiulin/qwery/internal/hints"
)

func TestIsGzipPath(t *testing.T) {
	require.True(t, IsGzipPath("data.csv.gz", hints.Hints{}))
	require.True(t, IsGzipPath("data.csv", hints.Hints{}.SetGzip(true)))
	require.False(t, IsGzipPath("data.csv", hints.Hints{}))
}

func TestOpenWriterThenReaderRoundTripsPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := OpenWriter(path, hints.Hints{})
	require.NoError(t, err)
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path, hints.Hints{})
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}

func TestOpenWriterThenReaderRoundTripsGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv.gz")
	w, err := OpenWriter(path, hints.Hints{})
	require.NoError(t, err)
	_, err = w.Write([]byte("compressed content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path, hints.Hints{})
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "compressed content", string(data))
}

func TestOpenWriterAppendDoesNotTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := OpenWriter(path, hints.Hints{})
	require.NoError(t, err)
	w.Write([]byte("first\n"))
	require.NoError(t, w.Close())

	w2, err := OpenWriter(path, hints.Hints{}.SetAppend(true))
	require.NoError(t, err)
	w2.Write([]byte("second\n"))
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(data))
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.False(t, Exists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	require.True(t, Exists(path))

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	require.False(t, Exists(empty))
}
