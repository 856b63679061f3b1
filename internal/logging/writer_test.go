package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_AppendsWithoutRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagewise.log")
	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))

	// No rotation happened.
	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_RotatesAndPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagewise.log")

	// A zero size limit forces rotation on every write.
	w, err := NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	defer w.Close()

	for _, line := range []string{"A", "B", "C"} {
		_, err = w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Newest content in the live file, older shifted down the chain.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "C", string(data))

	data, err = os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))

	data, err = os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))

	// The retention cap keeps the chain at maxFiles rotated files.
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}
