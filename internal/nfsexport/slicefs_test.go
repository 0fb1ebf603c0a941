package nfsexport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/pvftest"
	"github.com/agentic-research/pvf/internal/service"
)

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	fs := pvftest.NewFS(t,
		pvftest.Subject{ID: "sub-001", Prefix: "pvf", Dim: 2, T: 3, DimShift: []int{0, 0, 0}},
		pvftest.Subject{ID: "sub-002", Prefix: "pvf", Dim: 2, T: 2, DimShift: []int{0, 0, 0}},
	)
	svc, err := service.New(service.Config{FS: fs})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func load(t *testing.T, svc *service.Service, subject string) {
	t.Helper()
	_, err := svc.LoadDataset(context.Background(), subject, "pvf_metadata.json")
	require.NoError(t, err)
}

func newTestFS(t *testing.T, svc *service.Service) *SliceFS {
	t.Helper()
	sfs, err := NewSliceFS(svc, 4)
	require.NoError(t, err)
	return sfs
}

func readAll(t *testing.T, sfs *SliceFS, name string) []byte {
	t.Helper()
	f, err := sfs.Open(name)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func TestStatRoot(t *testing.T) {
	sfs := newTestFS(t, newTestService(t))

	info, err := sfs.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "/", info.Name())

	info, err = sfs.Stat("slices")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEmptyBeforeLoad(t *testing.T) {
	sfs := newTestFS(t, newTestService(t))

	infos, err := sfs.ReadDir("/slices")
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = sfs.Stat("/slices/0.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	var st api.Status
	require.NoError(t, json.Unmarshal(readAll(t, sfs, "/status.json"), &st))
	assert.False(t, st.Loaded)
}

func TestReadDir(t *testing.T) {
	svc := newTestService(t)
	load(t, svc, "sub-001")
	sfs := newTestFS(t, svc)

	infos, err := sfs.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "status.json", infos[0].Name())
	assert.Equal(t, "slices", infos[1].Name())
	assert.True(t, infos[1].IsDir())

	infos, err = sfs.ReadDir("/slices")
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	assert.Equal(t, []string{"0.json", "1.json", "2.json"}, names)

	_, err = sfs.ReadDir("/nope")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadSlice(t *testing.T) {
	svc := newTestService(t)
	load(t, svc, "sub-001")
	sfs := newTestFS(t, svc)

	info, err := sfs.Stat("/slices/1.json")
	require.NoError(t, err)
	data := readAll(t, sfs, "/slices/1.json")
	assert.Equal(t, info.Size(), int64(len(data)))

	var p api.SlicePayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "sub-001", p.SubjectID)
	assert.Equal(t, 1, p.TimeIndex)
	assert.Equal(t, [1]float64{pvftest.Value(1, 0, 1, 0, 1)}, p.Vy[0][1][0])

	infos, err := sfs.ReadDir("/slices")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), infos[1].Size())
	assert.Zero(t, infos[2].Size())
}

func TestSliceNames(t *testing.T) {
	svc := newTestService(t)
	load(t, svc, "sub-001")
	sfs := newTestFS(t, svc)

	for _, name := range []string{"/slices/3.json", "/slices/-1.json", "/slices/01.json", "/slices/a.json", "/slices/1", "/other/1.json"} {
		_, err := sfs.Stat(name)
		assert.ErrorIs(t, err, os.ErrNotExist, name)
	}
}

func TestFollowsActiveDataset(t *testing.T) {
	svc := newTestService(t)
	load(t, svc, "sub-001")
	sfs := newTestFS(t, svc)

	var p api.SlicePayload
	require.NoError(t, json.Unmarshal(readAll(t, sfs, "/slices/0.json"), &p))
	assert.Equal(t, "sub-001", p.SubjectID)

	load(t, svc, "sub-002")
	require.NoError(t, json.Unmarshal(readAll(t, sfs, "/slices/0.json"), &p))
	assert.Equal(t, "sub-002", p.SubjectID)

	_, err := sfs.Stat("/slices/2.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	var st api.Status
	require.NoError(t, json.Unmarshal(readAll(t, sfs, "/status.json"), &st))
	assert.Equal(t, "sub-002", st.SubjectID)
}

func TestReadAtAndSeek(t *testing.T) {
	f := &bytesFile{name: "x", data: []byte("hello world")}

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	n, err = f.ReadAt(buf, 8)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "rld", string(buf[:n]))

	pos, err := f.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	pos, err = f.Seek(-100, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestReadOnly(t *testing.T) {
	svc := newTestService(t)
	load(t, svc, "sub-001")
	sfs := newTestFS(t, svc)

	_, err := sfs.Create("/slices/9.json")
	assert.ErrorIs(t, err, errReadOnly)
	_, err = sfs.OpenFile("/slices/0.json", os.O_RDWR, 0)
	assert.ErrorIs(t, err, errReadOnly)
	assert.ErrorIs(t, sfs.Remove("/status.json"), errReadOnly)
	assert.ErrorIs(t, sfs.MkdirAll("/x", 0o755), errReadOnly)

	f, err := sfs.Open("/status.json")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, errReadOnly)

	_, err = sfs.Open("/slices")
	assert.Error(t, err)

	assert.Equal(t, "/", sfs.Root())
	assert.False(t, billy.CapabilityCheck(sfs, billy.WriteCapability))
	assert.True(t, billy.CapabilityCheck(sfs, billy.ReadCapability))
}

func TestNFSServerStarts(t *testing.T) {
	sfs := newTestFS(t, newTestService(t))
	srv, err := NewServer(sfs, "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	assert.NotZero(t, srv.Port())
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	require.NoError(t, err)
	_ = conn.Close()
}
