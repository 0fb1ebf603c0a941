package ingest

import (
	"strconv"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bigDocument returns a JSON object holding n integers under "data".
func bigDocument(n int) []byte {
	var b strings.Builder
	b.WriteString(`{"data":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(1000000 + i))
	}
	b.WriteString(`]}`)
	return []byte(b.String())
}

func checkBigDocument(t *testing.T, fs billy.Filesystem, n int) {
	t.Helper()
	raw := bigDocument(n)
	require.GreaterOrEqual(t, len(raw), mmapThreshold)
	require.NoError(t, util.WriteFile(fs, "big.json", raw, 0o644))

	doc, size, err := readJSON(fs, "big.json")
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), size)

	data := doc.(map[string]any)["data"].([]any)
	require.Len(t, data, n)
	assert.EqualValues(t, 1000000, data[0])
	assert.EqualValues(t, 1000000+n-1, data[n-1])
}

func TestReadJSONLargeFileMapped(t *testing.T) {
	checkBigDocument(t, osfs.New(t.TempDir(), osfs.WithBoundOS()), 200000)
}

func TestReadJSONLargeFileInMemory(t *testing.T) {
	checkBigDocument(t, memfs.New(), 200000)
}

func TestReadJSONRejectsDirectory(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("sub-001", 0o755))
	_, _, err := readJSON(fs, "sub-001")
	assert.ErrorContains(t, err, "is a directory")
}

func TestReadJSONParseError(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "bad.json", []byte("{nope"), 0o644))
	_, _, err := readJSON(fs, "bad.json")
	assert.ErrorContains(t, err, "parse bad.json")
}
