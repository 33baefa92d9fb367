package app

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/apperr"
	"sshpilot/internal/config"
	"sshpilot/internal/crypto"
	"sshpilot/internal/sshc"
	"sshpilot/internal/transfer"
	"sshpilot/internal/vterm"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	t.Setenv("HOSTNAME", "testhost")
	t.Setenv("USER", "testuser")
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := config.Open(path, crypto.NewCipher())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	m := New(store)
	m.width, m.height = 80, 24
	return m
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func addConnection(t *testing.T, m *Model, name string) config.Connection {
	t.Helper()
	conn := config.NewConnection("example.com", 22, "root", config.AuthPassword)
	conn.DisplayName = name
	conn.Password = "secret"
	if err := m.store.AddConnection(conn); err != nil {
		t.Fatal(err)
	}
	m.refreshConnItems()
	return conn
}

func TestListOpensNewConnectionForm(t *testing.T) {
	m := testModel(t)
	m.Update(keyRunes("n"))
	if _, ok := m.mode.(modeFormNew); !ok {
		t.Fatalf("mode = %T, want modeFormNew", m.mode)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList after esc", m.mode)
	}
}

func TestFormSavesConnection(t *testing.T) {
	m := testModel(t)
	m.Update(keyRunes("n"))
	md := m.mode.(modeFormNew)
	f := md.form
	f.inputs[fieldName].SetValue("prod")
	f.inputs[fieldHost].SetValue("prod.example.com")
	f.inputs[fieldUser].SetValue("deploy")
	f.inputs[fieldPassword].SetValue("hunter2")
	f.focus = len(f.rows()) - 1

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList after save", m.mode)
	}
	conns := m.store.Connections()
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1", len(conns))
	}
	if conns[0].Port != 22 {
		t.Errorf("Port = %d, want default 22", conns[0].Port)
	}
	if conns[0].Host != "prod.example.com" {
		t.Errorf("Host = %q", conns[0].Host)
	}
}

func TestFormRejectsBadPort(t *testing.T) {
	m := testModel(t)
	f := newConnectionForm(config.Connection{}, m.store.Settings())
	f.inputs[fieldHost].SetValue("h")
	f.inputs[fieldUser].SetValue("u")
	f.inputs[fieldPort].SetValue("99999")
	if _, err := f.build(); err == nil {
		t.Error("expected port validation error")
	}
}

func TestDeleteConfirmationRoundTrip(t *testing.T) {
	m := testModel(t)
	conn := addConnection(t, m, "doomed")

	m.Update(keyRunes("d"))
	if _, ok := m.mode.(modeDeleteConfirmation); !ok {
		t.Fatalf("mode = %T, want modeDeleteConfirmation", m.mode)
	}

	// Declining keeps the connection.
	m.Update(keyRunes("n"))
	if len(m.store.Connections()) != 1 {
		t.Fatal("connection removed on decline")
	}

	m.Update(keyRunes("d"))
	m.Update(keyRunes("y"))
	if len(m.store.Connections()) != 0 {
		t.Fatal("connection survived confirm")
	}
	if _, ok := m.store.FindConnection(conn.ID); ok {
		t.Error("removed connection still findable")
	}
}

func TestBannerConsumesDismissal(t *testing.T) {
	m := testModel(t)
	addConnection(t, m, "prod")
	m.setError("something broke")

	// The first enter only clears the banner; it must not connect.
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.errBanner != "" {
		t.Error("banner not cleared")
	}
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList", m.mode)
	}
}

func TestConnectingEscReturnsToOrigin(t *testing.T) {
	m := testModel(t)
	conn := addConnection(t, m, "prod")

	cmd := m.startConnect(conn, modeConnectionList{})
	if cmd == nil {
		t.Fatal("startConnect returned nil cmd")
	}
	if _, ok := m.mode.(modeConnecting); !ok {
		t.Fatalf("mode = %T, want modeConnecting", m.mode)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want origin after esc", m.mode)
	}
}

func TestConnectErrorRestoresOriginWithBanner(t *testing.T) {
	m := testModel(t)
	conn := addConnection(t, m, "prod")
	m.startConnect(conn, modeConnectionList{})

	m.Update(connectResultMsg{err: errors.New("dial tcp: refused")})
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want origin after failure", m.mode)
	}
	if m.errBanner == "" {
		t.Error("expected error banner")
	}
}

func TestLateConnectResultIgnoredAfterBackout(t *testing.T) {
	m := testModel(t)
	// Not in Connecting mode; a stray result must not install a session.
	m.Update(connectResultMsg{err: errors.New("late failure")})
	if m.session != nil {
		t.Error("session installed outside Connecting")
	}
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList", m.mode)
	}
}

func TestForwardListEntryAndBack(t *testing.T) {
	m := testModel(t)
	m.Update(keyRunes("f"))
	if _, ok := m.mode.(modePortForwardingList); !ok {
		t.Fatalf("mode = %T, want modePortForwardingList", m.mode)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList", m.mode)
	}
}

func TestForwardFormBuild(t *testing.T) {
	m := testModel(t)
	conn := addConnection(t, m, "prod")

	f := newForwardForm(config.PortForward{}, m.store.Connections())
	f.inputs[fwdFieldLocalPort].SetValue("8080")
	f.inputs[fwdFieldServiceHost].SetValue("db.internal")
	f.inputs[fwdFieldServicePort].SetValue("5432")

	pf, err := f.build()
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if pf.ConnectionID != conn.ID {
		t.Errorf("ConnectionID = %q, want %q", pf.ConnectionID, conn.ID)
	}
	if pf.Kind != config.ForwardLocal || pf.LocalPort != 8080 || pf.ServicePort != 5432 {
		t.Errorf("built forward = %+v", pf)
	}
	if pf.LocalAddr != "127.0.0.1" {
		t.Errorf("LocalAddr = %q, want loopback default", pf.LocalAddr)
	}
}

func TestForwardFormDynamicSkipsService(t *testing.T) {
	m := testModel(t)
	addConnection(t, m, "prod")

	f := newForwardForm(config.PortForward{}, m.store.Connections())
	f.cycleKind(1)
	f.cycleKind(1) // local -> remote -> dynamic
	f.inputs[fwdFieldLocalPort].SetValue("1080")

	pf, err := f.build()
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if pf.Kind != config.ForwardDynamic {
		t.Errorf("Kind = %q", pf.Kind)
	}
	if pf.ServiceHost != "" || pf.ServicePort != 0 {
		t.Errorf("dynamic forward kept service target: %+v", pf)
	}
}

type fakeShell struct {
	wrote  []byte
	closed bool
}

func (f *fakeShell) Write(p []byte) error        { f.wrote = append(f.wrote, p...); return nil }
func (f *fakeShell) Resize(rows, cols int) error { return nil }
func (f *fakeShell) Close() error                { f.closed = true; return nil }

func connectedModel(t *testing.T) (*Model, *fakeShell) {
	t.Helper()
	m := testModel(t)
	sh := &fakeShell{}
	m.shell = sh
	m.term = vterm.NewTerminal(23, 80, 500)
	m.mode = modeConnected{}
	return m, sh
}

func TestEscGatedByAltScreen(t *testing.T) {
	m, sh := connectedModel(t)

	// Inside a full-screen app Esc belongs to the remote.
	m.term.Process([]byte("\x1b[?1049h"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if string(sh.wrote) != "\x1b" {
		t.Fatalf("wrote %q, want bare escape", sh.wrote)
	}
	if _, ok := m.mode.(modeConnected); !ok {
		t.Fatalf("mode = %T, want modeConnected", m.mode)
	}

	// On the main screen Esc ends the session.
	m.term.Process([]byte("\x1b[?1049l"))
	sh.wrote = nil
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !sh.closed {
		t.Error("shell not closed")
	}
	if len(sh.wrote) != 0 {
		t.Errorf("escape leaked to remote: %q", sh.wrote)
	}
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList", m.mode)
	}
}

func TestCtrlCScrollsToBottomThenForwards(t *testing.T) {
	m, sh := connectedModel(t)
	for i := 0; i < 60; i++ {
		m.term.Process([]byte("line\r\n"))
	}
	m.term.ScrollBy(10)
	if m.term.ScrollbackOffset() == 0 {
		t.Fatal("setup: expected a scrolled viewport")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if m.term.ScrollbackOffset() != 0 {
		t.Error("viewport not snapped to bottom")
	}
	if string(sh.wrote) != "\x03" {
		t.Errorf("wrote %q, want ETX", sh.wrote)
	}
}

func TestPagingStaysLocal(t *testing.T) {
	m, sh := connectedModel(t)
	for i := 0; i < 60; i++ {
		m.term.Process([]byte("line\r\n"))
	}

	m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	if m.term.ScrollbackOffset() == 0 {
		t.Error("page up did not scroll")
	}
	if len(sh.wrote) != 0 {
		t.Errorf("paging leaked to remote: %q", sh.wrote)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnd})
	if m.term.ScrollbackOffset() != 0 {
		t.Error("end did not snap to bottom")
	}
}

func TestEncodeArrowModes(t *testing.T) {
	tests := []struct {
		key       tea.KeyType
		appCursor bool
		want      string
	}{
		{tea.KeyUp, false, "\x1b[A"},
		{tea.KeyDown, false, "\x1b[B"},
		{tea.KeyRight, false, "\x1b[C"},
		{tea.KeyLeft, false, "\x1b[D"},
		{tea.KeyUp, true, "\x1bOA"},
		{tea.KeyLeft, true, "\x1bOD"},
	}
	for _, tt := range tests {
		if got := string(encodeArrow(tt.key, tt.appCursor)); got != tt.want {
			t.Errorf("encodeArrow(%v, %v) = %q, want %q", tt.key, tt.appCursor, got, tt.want)
		}
	}
}

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want string
	}{
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, "\r"},
		{"backspace", tea.KeyMsg{Type: tea.KeyBackspace}, "\x7f"},
		{"tab", tea.KeyMsg{Type: tea.KeyTab}, "\t"},
		{"shift tab", tea.KeyMsg{Type: tea.KeyShiftTab}, "\x1b[Z"},
		{"delete", tea.KeyMsg{Type: tea.KeyDelete}, "\x1b[3~"},
		{"runes", keyRunes("ls"), "ls"},
		{"alt rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f"), Alt: true}, "\x1bf"},
	}
	for _, tt := range tests {
		if got := string(encodeKey(tt.msg)); got != tt.want {
			t.Errorf("%s: encodeKey = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestInSelection(t *testing.T) {
	top := vterm.Endpoint{RevRow: 5, Col: 3}
	bottom := vterm.Endpoint{RevRow: 2, Col: 4}

	tests := []struct {
		rev, col int
		want     bool
	}{
		{6, 0, false}, // above
		{5, 2, false}, // first row before start
		{5, 3, true},
		{5, 70, true},
		{4, 0, true}, // middle row fully selected
		{3, 79, true},
		{2, 4, true}, // last row inclusive end
		{2, 5, false},
		{1, 0, false}, // below
	}
	for _, tt := range tests {
		if got := inSelection(top, bottom, tt.rev, tt.col); got != tt.want {
			t.Errorf("inSelection(rev=%d,col=%d) = %v, want %v", tt.rev, tt.col, got, tt.want)
		}
	}

	single := vterm.Endpoint{RevRow: 3, Col: 2}
	end := vterm.Endpoint{RevRow: 3, Col: 6}
	if !inSelection(single, end, 3, 4) || inSelection(single, end, 3, 7) {
		t.Error("single-row selection bounds wrong")
	}
}

func TestRelativeLabel(t *testing.T) {
	tests := []struct {
		root, full, want string
	}{
		{"/home/u/dir", "/home/u/dir/a.txt", "a.txt"},
		{"/home/u/dir", "/home/u/dir/sub/b.txt", "sub/b.txt"},
		{"/home/u/file.txt", "/home/u/file.txt", "file.txt"},
		{"/a", "/elsewhere/c", "/elsewhere/c"},
	}
	for _, tt := range tests {
		if got := relativeLabel(tt.root, tt.full); got != tt.want {
			t.Errorf("relativeLabel(%q, %q) = %q, want %q", tt.root, tt.full, got, tt.want)
		}
	}
}

func TestSortEntries(t *testing.T) {
	entries := []fileEntry{
		{name: "zebra.txt"},
		{name: "alpha", isDir: true},
		{name: ".."},
		{name: "beta.txt"},
		{name: "nested", isDir: true},
	}
	// ".." lacks isDir here on purpose; it must still sort first.
	sortEntries(entries)

	want := []string{"..", "alpha", "nested", "beta.txt", "zebra.txt"}
	for i, name := range want {
		if entries[i].name != name {
			t.Fatalf("entries[%d] = %q, want %q (full: %+v)", i, entries[i].name, name, entries)
		}
	}
}

func TestTransferJobAbsorb(t *testing.T) {
	job := newTransferJob("dir")
	job.absorb(transferPlannedMsg{files: []jobFile{
		{label: "a.txt", size: 100},
		{label: "b.txt", size: 200},
	}})
	if !job.planned || len(job.files) != 2 {
		t.Fatalf("planned = %v, files = %d", job.planned, len(job.files))
	}

	job.absorb(transferProgressMsg{Index: 0, Transferred: 40, Total: 100})
	if job.files[0].transferred != 40 || job.files[0].state != fileActive {
		t.Errorf("file 0 = %+v", job.files[0])
	}

	// A stale lower count must not regress the bar.
	job.absorb(transferProgressMsg{Index: 0, Transferred: 10, Total: 100})
	if job.files[0].transferred != 40 {
		t.Errorf("transferred regressed to %d", job.files[0].transferred)
	}

	job.absorb(transferFileDoneMsg{Index: 0})
	if job.files[0].state != fileDone || job.files[0].transferred != 100 {
		t.Errorf("file 0 after done = %+v", job.files[0])
	}

	job.absorb(transferFileDoneMsg{Index: 1, Err: errors.New("broken pipe")})
	if job.files[1].state != fileFailed {
		t.Errorf("file 1 state = %v, want failed", job.files[1].state)
	}

	job.absorb(transferDoneMsg{summary: transfer.Summary{Done: 1, Failed: 1}})
	if !job.done || job.summary.Done != 1 {
		t.Errorf("job = %+v", job)
	}
}

func TestScpProgressRestoresReturnMode(t *testing.T) {
	m := testModel(t)
	job := newTransferJob("x")
	m.mode = modeScpProgress{job: job, returnMode: modePortForwardingList{cursor: 2}}

	// Mid-flight esc only requests cancellation.
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.mode.(modeScpProgress); !ok {
		t.Fatalf("mode = %T, want modeScpProgress while running", m.mode)
	}

	job.absorb(transferDoneMsg{summary: transfer.Summary{Done: 1}})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got, ok := m.mode.(modePortForwardingList)
	if !ok || got.cursor != 2 {
		t.Fatalf("mode = %T %+v, want restored modePortForwardingList", m.mode, m.mode)
	}
}

func TestTickKeepsPulse(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(TickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick must re-arm itself")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{1048576, "1.0 MB"},
		{1572864, "1.5 MB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.in); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// cmdContains reports whether cmd is target, or a batch that carries it,
// comparing by function identity so no inner command gets executed.
func cmdContains(cmd tea.Cmd, target func() tea.Msg) bool {
	if cmd == nil {
		return false
	}
	want := reflect.ValueOf(target).Pointer()
	if reflect.ValueOf(cmd).Pointer() == want {
		return true
	}
	if batch, ok := cmd().(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil && reflect.ValueOf(c).Pointer() == want {
				return true
			}
		}
	}
	return false
}

func TestExplorerTogglesMouseCapture(t *testing.T) {
	m, _ := connectedModel(t)
	m.session = &sshc.Session{}
	m.sftp = &sshc.SFTPClient{}

	cmd := m.openExplorer()
	if _, ok := m.mode.(modeFileExplorer); !ok {
		t.Fatalf("mode = %T, want modeFileExplorer", m.mode)
	}
	if !cmdContains(cmd, tea.DisableMouse) {
		t.Error("entering the explorer must release the mouse")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.mode.(modeConnected); !ok {
		t.Fatalf("mode = %T, want modeConnected", m.mode)
	}
	if !cmdContains(cmd, tea.EnableMouseCellMotion) {
		t.Error("leaving the explorer must recapture the mouse")
	}
}

func TestCleanDisconnectLandsSilently(t *testing.T) {
	m, _ := connectedModel(t)
	m.session = &sshc.Session{}

	m.Update(DisconnectMsg{Err: apperr.New(apperr.TransportClosed, "shell ended", nil)})
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList", m.mode)
	}
	if m.errBanner != "" || m.infoBanner != "" {
		t.Errorf("banners = %q / %q, want none", m.errBanner, m.infoBanner)
	}

	// With no banner pending the next keypress acts immediately.
	m.Update(keyRunes("n"))
	if _, ok := m.mode.(modeFormNew); !ok {
		t.Fatalf("mode = %T, want modeFormNew", m.mode)
	}
}

func TestErroredDisconnectShowsBanner(t *testing.T) {
	m, _ := connectedModel(t)
	m.session = &sshc.Session{}

	m.Update(DisconnectMsg{Err: errors.New("broken pipe")})
	if _, ok := m.mode.(modeConnectionList); !ok {
		t.Fatalf("mode = %T, want modeConnectionList", m.mode)
	}
	if m.errBanner == "" {
		t.Error("an abnormal disconnect must surface a banner")
	}
}

func TestCompleteLocalPath(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "nothing.txt", "other.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "keys"), 0o700); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", "./"},
		{filepath.Join(dir, "ot"), filepath.Join(dir, "other.md")},
		{filepath.Join(dir, "no"), filepath.Join(dir, "not")},
		{filepath.Join(dir, "keys"), filepath.Join(dir, "keys") + "/"},
		{filepath.Join(dir, "zzz"), filepath.Join(dir, "zzz")},
	}
	for _, tt := range tests {
		if got := completeLocalPath(tt.in); got != tt.want {
			t.Errorf("completeLocalPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompleteLocalPathExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.Mkdir(filepath.Join(home, ".ssh"), 0o700); err != nil {
		t.Fatal(err)
	}
	if got, want := completeLocalPath("~/.ssh"), filepath.Join(home, ".ssh")+"/"; got != want {
		t.Errorf("completeLocalPath(~/.ssh) = %q, want %q", got, want)
	}
}

func TestFormImportsSSHConfig(t *testing.T) {
	m := testModel(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, ".ssh"), 0o700); err != nil {
		t.Fatal(err)
	}
	body := "Host orb\n    HostName 10.0.0.5\n    Port 2222\n    User default\n    IdentityFile ~/.ssh/id_ed25519\n"
	if err := os.WriteFile(filepath.Join(home, ".ssh", "config"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	m.Update(keyRunes("n"))
	md, ok := m.mode.(modeFormNew)
	if !ok {
		t.Fatalf("mode = %T, want modeFormNew", m.mode)
	}
	f := md.form
	f.inputs[fieldHost].SetValue("orb")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if got := f.inputs[fieldHost].Value(); got != "10.0.0.5" {
		t.Errorf("host = %q", got)
	}
	if got := f.inputs[fieldPort].Value(); got != "2222" {
		t.Errorf("port = %q", got)
	}
	if got := f.inputs[fieldUser].Value(); got != "default" {
		t.Errorf("user = %q", got)
	}
	if f.auth != config.AuthPrivateKey {
		t.Errorf("auth = %q, want private key", f.auth)
	}
	if got := f.inputs[fieldKeyPath].Value(); got != "~/.ssh/id_ed25519" {
		t.Errorf("key path = %q", got)
	}
}

func TestFormImportUnknownAlias(t *testing.T) {
	m := testModel(t)
	t.Setenv("HOME", t.TempDir())

	m.Update(keyRunes("n"))
	f := m.mode.(modeFormNew).form
	f.inputs[fieldHost].SetValue("ghost")
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if f.errText == "" {
		t.Error("missing ssh config must surface on the form")
	}
}

func TestForwardToggleReconcilesStoredStatus(t *testing.T) {
	m := testModel(t)
	conn := addConnection(t, m, "prod")
	m.registry.put(conn.ID, &sshc.Session{})

	// Occupy the port so the start fails at bind time.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	pf := config.NewPortForward(conn.ID, config.ForwardLocal)
	pf.LocalPort = uint16(ln.Addr().(*net.TCPAddr).Port)
	pf.ServiceHost = "127.0.0.1"
	pf.ServicePort = 80
	if err := m.store.AddPortForward(pf); err != nil {
		t.Fatal(err)
	}

	m.toggleForward(pf)
	got := m.store.PortForwards()[0].Status
	if got.State != config.ForwardFailed || got.Reason == "" {
		t.Errorf("stored status = %+v, want failed with reason", got)
	}
}

func TestExplorerLoadErrorSurfaces(t *testing.T) {
	m, _ := connectedModel(t)
	m.session = &sshc.Session{}
	m.sftp = &sshc.SFTPClient{}
	m.openExplorer()

	m.Update(explorerLoadedMsg{pane: paneRemote, err: errors.New("permission denied")})
	md, ok := m.mode.(modeFileExplorer)
	if !ok {
		t.Fatalf("mode = %T, want modeFileExplorer", m.mode)
	}
	if md.ex.panes[paneRemote].loading {
		t.Error("spinner must clear on a failed load")
	}
	if m.errBanner == "" {
		t.Error("a failed listing must surface a banner")
	}
}
