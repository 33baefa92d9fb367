package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"sshpilot/internal/apperr"
)

// memFS is an in-memory FS for engine tests. It can be told to fail
// specific operations to simulate a dying transport.
type memFS struct {
	files map[string][]byte
	dirs  map[string]bool

	failOpen   map[string]error
	failCreate map[string]error
	readErr    map[string]error // error injected mid-read
}

func newMemFS() *memFS {
	return &memFS{
		files:      map[string][]byte{},
		dirs:       map[string]bool{"/": true},
		failOpen:   map[string]error{},
		failCreate: map[string]error{},
		readErr:    map[string]error{},
	}
}

func (m *memFS) addFile(p string, data []byte) {
	m.files[p] = data
	for d := path.Dir(p); d != "/" && d != "."; d = path.Dir(d) {
		m.dirs[d] = true
	}
}

type memInfo struct {
	name string
	size int64
	dir  bool
}

func (i memInfo) Name() string { return i.name }
func (i memInfo) Size() int64  { return i.size }
func (i memInfo) Mode() os.FileMode {
	if i.dir {
		return os.ModeDir | 0755
	}
	return 0644
}
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() any           { return nil }

func (m *memFS) ReadDir(dir string) ([]os.FileInfo, error) {
	if !m.dirs[dir] {
		return nil, apperr.Newf(apperr.Io, "no dir %s", dir)
	}
	var out []os.FileInfo
	for p, data := range m.files {
		if path.Dir(p) == dir {
			out = append(out, memInfo{name: path.Base(p), size: int64(len(data))})
		}
	}
	for d := range m.dirs {
		if path.Dir(d) == dir && d != dir {
			out = append(out, memInfo{name: path.Base(d), dir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (m *memFS) Stat(p string) (os.FileInfo, error) {
	if m.dirs[p] {
		return memInfo{name: path.Base(p), dir: true}, nil
	}
	if data, ok := m.files[p]; ok {
		return memInfo{name: path.Base(p), size: int64(len(data))}, nil
	}
	return nil, apperr.Newf(apperr.Io, "no file %s", p)
}

type errAfterReader struct {
	r   io.Reader
	err error
}

func (e *errAfterReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		return n, e.err
	}
	return n, err
}

func (m *memFS) Open(p string) (io.ReadCloser, error) {
	if err := m.failOpen[p]; err != nil {
		return nil, err
	}
	data, ok := m.files[p]
	if !ok {
		return nil, apperr.Newf(apperr.Io, "no file %s", p)
	}
	if err := m.readErr[p]; err != nil {
		return io.NopCloser(&errAfterReader{r: bytes.NewReader(data), err: err}), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type memWriter struct {
	fs   *memFS
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error                { w.fs.files[w.path] = w.buf.Bytes(); return nil }

func (m *memFS) Create(p string) (io.WriteCloser, error) {
	if err := m.failCreate[p]; err != nil {
		return nil, err
	}
	return &memWriter{fs: m, path: p}, nil
}

func (m *memFS) Mkdir(p string) error {
	m.dirs[p] = true
	return nil
}

func (m *memFS) Remove(p string) error {
	delete(m.files, p)
	delete(m.dirs, p)
	return nil
}

func (m *memFS) Join(elem ...string) string { return path.Join(elem...) }

func TestWalkBreadthFirst(t *testing.T) {
	fs := newMemFS()
	fs.addFile("/src/a.txt", []byte("a"))
	fs.addFile("/src/sub/b.txt", []byte("bb"))
	fs.addFile("/src/sub/deep/c.txt", []byte("ccc"))
	fs.addFile("/src/zz/d.txt", []byte("d"))

	m, err := Walk(fs, "/src", fs, "/dst")
	if err != nil {
		t.Fatal(err)
	}

	// Parents must come strictly before children.
	pos := map[string]int{}
	for i, d := range m.Directories {
		pos[d] = i
	}
	for _, d := range m.Directories {
		parent := path.Dir(d)
		if pi, ok := pos[parent]; ok && pi > pos[d] {
			t.Errorf("parent %s after child %s", parent, d)
		}
	}
	if m.Directories[0] != "/dst" {
		t.Errorf("root dir first, got %v", m.Directories)
	}
	if len(m.Directories) != 4 {
		t.Errorf("directories = %v", m.Directories)
	}

	if len(m.Files) != 4 {
		t.Fatalf("files = %v", m.Files)
	}
	bySrc := map[string]FilePair{}
	for _, f := range m.Files {
		bySrc[f.Src] = f
	}
	c := bySrc["/src/sub/deep/c.txt"]
	if c.Dst != "/dst/sub/deep/c.txt" || c.Size != 3 {
		t.Errorf("pair = %+v", c)
	}
}

func TestWalkFileRejectsDirectory(t *testing.T) {
	fs := newMemFS()
	fs.addFile("/src/a.txt", []byte("a"))
	if _, err := WalkFile(fs, "/src", "/dst"); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("err = %v, want Validation", err)
	}
	m, err := WalkFile(fs, "/src/a.txt", "/dst/a.txt")
	if err != nil || len(m.Files) != 1 {
		t.Errorf("manifest = %+v, err = %v", m, err)
	}
}

func runBatch(t *testing.T, ctx context.Context, b Batch) (Summary, []Progress, []Completion) {
	t.Helper()
	progress := make(chan Progress, 256)
	complete := make(chan Completion, 256)
	sum := Run(ctx, b, progress, complete)
	close(progress)
	close(complete)
	var ps []Progress
	for p := range progress {
		ps = append(ps, p)
	}
	var cs []Completion
	for c := range complete {
		cs = append(cs, c)
	}
	return sum, ps, cs
}

func TestRunCopiesTree(t *testing.T) {
	src := newMemFS()
	dst := newMemFS()
	big := bytes.Repeat([]byte("x"), 100_000) // several chunks
	src.addFile("/src/big.bin", big)
	src.addFile("/src/sub/small.txt", []byte("hello"))

	m, err := Walk(src, "/src", dst, "/dst")
	if err != nil {
		t.Fatal(err)
	}
	tasks := make([]Task, len(m.Files))
	for i, f := range m.Files {
		tasks[i] = Task{Mode: Send, Src: src, Dst: dst, From: f.Src, To: f.Dst, Size: f.Size}
	}

	sum, ps, cs := runBatch(t, context.Background(), Batch{Dst: dst, Dirs: m.Directories, Tasks: tasks})
	if sum.Done != 2 || sum.Failed != 0 {
		t.Fatalf("summary = %+v errs=%v", sum, sum.Errs)
	}
	if !bytes.Equal(dst.files["/dst/big.bin"], big) {
		t.Error("big file corrupted")
	}
	if string(dst.files["/dst/sub/small.txt"]) != "hello" {
		t.Error("small file corrupted")
	}
	if !dst.dirs["/dst/sub"] {
		t.Error("subdirectory not created")
	}
	if len(cs) != 2 {
		t.Errorf("completions = %v", cs)
	}

	// The last progress update for each task reports the full byte count.
	final := map[int]Progress{}
	for _, p := range ps {
		final[p.Index] = p
	}
	for i, task := range tasks {
		if final[i].Transferred != task.Size {
			t.Errorf("task %d final progress = %+v, want %d bytes", i, final[i], task.Size)
		}
	}
}

func TestRunFinalProgressSurvivesBackpressure(t *testing.T) {
	src := newMemFS()
	dst := newMemFS()
	src.addFile("/a", bytes.Repeat([]byte("y"), 300_000))

	// Capacity 1: almost every intermediate update is dropped, yet the
	// final update must land.
	progress := make(chan Progress, 1)
	done := make(chan Summary, 1)
	go func() {
		done <- Run(context.Background(), Batch{
			Dst:   dst,
			Tasks: []Task{{Src: src, Dst: dst, From: "/a", To: "/b", Size: 300_000}},
		}, progress, nil)
	}()

	var (
		last Progress
		sum  Summary
	)
loop:
	for {
		select {
		case p := <-progress:
			last = p
		case sum = <-done:
			break loop
		}
	}
	// Drain anything still buffered.
	for {
		select {
		case p := <-progress:
			last = p
		default:
			if sum.Done != 1 {
				t.Fatalf("summary = %+v", sum)
			}
			if last.Transferred != 300_000 {
				t.Fatalf("final progress = %+v", last)
			}
			return
		}
	}
}

func TestRunTransportDeathFailsRemainder(t *testing.T) {
	src := newMemFS()
	dst := newMemFS()
	src.addFile("/a", []byte("aa"))
	src.addFile("/b", []byte("bb"))
	src.addFile("/c", []byte("cc"))
	dead := apperr.New(apperr.TransportClosed, "session closed", errors.New("eof"))
	src.failOpen["/b"] = dead

	tasks := []Task{
		{Src: src, Dst: dst, From: "/a", To: "/da", Size: 2},
		{Src: src, Dst: dst, From: "/b", To: "/db", Size: 2},
		{Src: src, Dst: dst, From: "/c", To: "/dc", Size: 2},
	}
	sum, _, cs := runBatch(t, context.Background(), Batch{Dst: dst, Tasks: tasks})
	if sum.Done != 1 || sum.Failed != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if _, copied := dst.files["/dc"]; copied {
		t.Error("task after transport death was attempted")
	}
	if len(cs) != 3 {
		t.Fatalf("completions = %v", cs)
	}
	if cs[2].Err == nil || !apperr.IsKind(cs[2].Err, apperr.TransportClosed) {
		t.Errorf("remainder completion = %+v", cs[2])
	}
}

func TestRunOrdinaryErrorContinues(t *testing.T) {
	src := newMemFS()
	dst := newMemFS()
	src.addFile("/a", []byte("aa"))
	src.addFile("/b", []byte("bb"))
	src.failOpen["/a"] = apperr.Newf(apperr.Sftp, "permission denied")

	tasks := []Task{
		{Src: src, Dst: dst, From: "/a", To: "/da", Size: 2},
		{Src: src, Dst: dst, From: "/b", To: "/db", Size: 2},
	}
	sum, _, _ := runBatch(t, context.Background(), Batch{Dst: dst, Tasks: tasks})
	if sum.Done != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v errs=%v", sum, sum.Errs)
	}
	if string(dst.files["/db"]) != "bb" {
		t.Error("second task skipped after recoverable failure")
	}
}

func TestRunCancellation(t *testing.T) {
	src := newMemFS()
	dst := newMemFS()
	src.addFile("/a", []byte("aa"))
	src.addFile("/b", []byte("bb"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []Task{
		{Src: src, Dst: dst, From: "/a", To: "/da", Size: 2},
		{Src: src, Dst: dst, From: "/b", To: "/db", Size: 2},
	}
	sum, _, cs := runBatch(t, ctx, Batch{Dst: dst, Tasks: tasks})
	if sum.Done != 0 || sum.Failed != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	for _, c := range cs {
		if c.Err == nil || !strings.Contains(c.Err.Error(), "cancelled") {
			t.Errorf("completion = %+v", c)
		}
	}
}

func TestLocalFSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var fs LocalFS

	if err := fs.Mkdir(fs.Join(dir, "sub")); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := fs.Mkdir(fs.Join(dir, "sub")); err != nil {
		t.Fatalf("second mkdir: %v", err)
	}

	p := fs.Join(dir, "sub", "f.txt")
	w, err := fs.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("data")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := fs.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(r)
	r.Close()
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}

	infos, err := fs.ReadDir(fs.Join(dir, "sub"))
	if err != nil || len(infos) != 1 || infos[0].Name() != "f.txt" {
		t.Errorf("readdir = %v, %v", infos, err)
	}

	if err := fs.Remove(p); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Stat(p); err == nil {
		t.Error("stat after remove should fail")
	}
}
