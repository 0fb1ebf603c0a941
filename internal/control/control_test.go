package control

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockSize(t *testing.T) {
	assert.Equal(t, uintptr(ControlSize), unsafe.Sizeof(Block{}))
}

func TestPublishAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "pvf.ctl")

	c, err := OpenOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Generation())
	assert.Equal(t, "", c.MetadataPath())

	require.NoError(t, c.Publish(3, 50, 120, "/data/sub-001/pvf_metadata.json"))
	require.NoError(t, c.Publish(4, 48, 90, "/data/sub-2/x_metadata.json"))
	assert.Equal(t, uint64(4), c.Generation())
	assert.Equal(t, 48, c.Dimension())
	assert.Equal(t, 90, c.TimePoints())
	assert.Equal(t, "/data/sub-2/x_metadata.json", c.MetadataPath())
	require.NoError(t, c.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(ControlSize), info.Size())

	c, err = OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Equal(t, uint64(4), c.Generation())
	assert.Equal(t, "/data/sub-2/x_metadata.json", c.MetadataPath())
	assert.Equal(t, path, c.Path())
}

func TestPublishRejectsLongPath(t *testing.T) {
	c, err := OpenOrCreate(filepath.Join(t.TempDir(), "pvf.ctl"))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	err = c.Publish(1, 1, 1, strings.Repeat("x", 256))
	require.Error(t, err)
	assert.Equal(t, uint64(0), c.Generation())
}

func TestInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.ctl")
	buf := make([]byte, ControlSize)
	binary.LittleEndian.PutUint32(buf, 0x4C455943)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := OpenOrCreate(path)
	require.Error(t, err)
}
