package queue

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_EndsAtEOF(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader("abc")))

	assert.False(t, s.Ended())
	data, err := io.ReadAll(s)

	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.True(t, s.Ended())
}

func TestStream_CloseTwice(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader("abc")))

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.True(t, s.Ended())

	n, err := s.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chime.ogg")
	require.NoError(t, os.WriteFile(path, []byte("ogg"), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)
	defer s.Close()

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "ogg", string(data))

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.ogg"))
	assert.Error(t, err)
}
