package app

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sshpilot/internal/sshc"
	"sshpilot/internal/transfer"
)

const (
	paneLocal = iota
	paneRemote
)

const previewHeadSize = 512

// fileEntry is one row of a pane listing.
type fileEntry struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
	mode    os.FileMode
}

type explorerPane struct {
	fs      transfer.FS
	path    string
	entries []fileEntry
	cursor  int
	loading bool
}

type explorerAction int

const (
	exActionNone explorerAction = iota
	exActionMkdir
	exActionRename
	exActionDelete
)

type previewState struct {
	name   string
	lines  []string
	binary bool
}

// explorer is the dual-pane browser: local filesystem on the left, the
// active session's SFTP on the right.
type explorer struct {
	sftp       *sshc.SFTPClient
	host       string
	panes      [2]explorerPane
	active     int
	showHidden bool
	action     explorerAction
	input      textinput.Model
	preview    *previewState
}

func newExplorer(sftp *sshc.SFTPClient, host string) *explorer {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/"
	}
	input := textinput.New()
	input.CharLimit = 255
	ex := &explorer{
		sftp:  sftp,
		host:  host,
		input: input,
	}
	ex.panes[paneLocal] = explorerPane{fs: transfer.LocalFS{}, path: home}
	// Remote starts empty; the first load resolves the server's home.
	ex.panes[paneRemote] = explorerPane{fs: transfer.SFTPFS{Client: sftp}}
	return ex
}

// openExplorer switches into the file browser, opening the SFTP channel
// lazily on first use.
func (m *Model) openExplorer() tea.Cmd {
	if m.session == nil {
		return nil
	}
	if m.sftp == nil {
		c, err := m.session.OpenSFTP()
		if err != nil {
			m.setError(err.Error())
			return nil
		}
		m.sftp = c
	}
	ex := newExplorer(m.sftp, m.activeConn.Host)
	m.mode = modeFileExplorer{ex: ex}
	return tea.Batch(
		tea.DisableMouse,
		ex.loadCmd(paneLocal, ex.panes[paneLocal].path),
		ex.loadCmd(paneRemote, ex.panes[paneRemote].path),
	)
}

// loadCmd fetches a directory listing off the event loop. An empty dir on
// the remote pane means "resolve the login directory first".
func (ex *explorer) loadCmd(pane int, dir string) tea.Cmd {
	ex.panes[pane].loading = true
	fsys := ex.panes[pane].fs
	sftp := ex.sftp
	return func() tea.Msg {
		if pane == paneRemote && dir == "" {
			resolved, err := sftp.RealPath(".")
			if err != nil {
				return explorerLoadedMsg{pane: pane, err: err}
			}
			dir = resolved
		}
		infos, err := fsys.ReadDir(dir)
		if err != nil {
			return explorerLoadedMsg{pane: pane, path: dir, err: err}
		}
		entries := make([]fileEntry, 0, len(infos)+1)
		if dir != "/" {
			entries = append(entries, fileEntry{name: "..", isDir: true})
		}
		for _, info := range infos {
			entries = append(entries, fileEntry{
				name:    info.Name(),
				size:    info.Size(),
				modTime: info.ModTime(),
				isDir:   info.IsDir(),
				mode:    info.Mode(),
			})
		}
		sortEntries(entries)
		return explorerLoadedMsg{pane: pane, path: dir, entries: entries}
	}
}

// sortEntries orders a listing the way both panes display it: the parent
// link first, then directories, then files, each alphabetically.
func sortEntries(entries []fileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.name == "..") != (b.name == "..") {
			return a.name == ".."
		}
		if a.isDir != b.isDir {
			return a.isDir
		}
		return a.name < b.name
	})
}

func (ex *explorer) absorbListing(msg explorerLoadedMsg) {
	p := &ex.panes[msg.pane]
	p.loading = false
	if msg.err != nil {
		return
	}
	p.path = msg.path
	p.entries = msg.entries
	if p.cursor >= len(ex.visible(msg.pane)) {
		p.cursor = 0
	}
}

// visible filters the pane's entries by the hidden-files toggle. The
// parent link is always shown.
func (ex *explorer) visible(pane int) []fileEntry {
	p := &ex.panes[pane]
	if ex.showHidden {
		return p.entries
	}
	out := make([]fileEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.name != ".." && strings.HasPrefix(e.name, ".") {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (ex *explorer) selected() (fileEntry, bool) {
	vis := ex.visible(ex.active)
	p := &ex.panes[ex.active]
	if p.cursor < 0 || p.cursor >= len(vis) {
		return fileEntry{}, false
	}
	return vis[p.cursor], true
}

func (m *Model) updateExplorer(md modeFileExplorer, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ex := md.ex

	if ex.preview != nil {
		ex.preview = nil
		return m, nil
	}
	if ex.action != exActionNone {
		return m.updateExplorerAction(ex, msg)
	}

	p := &ex.panes[ex.active]
	vis := ex.visible(ex.active)

	switch msg.String() {
	case "esc", "q":
		m.mode = modeConnected{}
		m.invalidateShell()
		return m, tea.EnableMouseCellMotion

	case "tab":
		ex.active = 1 - ex.active
		return m, nil

	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
		return m, nil
	case "down", "j":
		if p.cursor < len(vis)-1 {
			p.cursor++
		}
		return m, nil
	case "pgup":
		p.cursor -= m.explorerPageSize()
		if p.cursor < 0 {
			p.cursor = 0
		}
		return m, nil
	case "pgdown":
		p.cursor += m.explorerPageSize()
		if p.cursor > len(vis)-1 {
			p.cursor = len(vis) - 1
		}
		if p.cursor < 0 {
			p.cursor = 0
		}
		return m, nil

	case "enter", "right":
		entry, ok := ex.selected()
		if !ok || !entry.isDir {
			return m, nil
		}
		return m, ex.enterDirectory(entry)
	case "backspace", "left":
		return m, ex.loadCmd(ex.active, parentDir(p.fs, p.path))

	case "h":
		ex.showHidden = !ex.showHidden
		if p.cursor >= len(ex.visible(ex.active)) {
			p.cursor = 0
		}
		return m, nil

	case "n":
		ex.action = exActionMkdir
		ex.input.Placeholder = "directory name"
		ex.input.SetValue("")
		ex.input.Focus()
		return m, nil
	case "r":
		entry, ok := ex.selected()
		if !ok || entry.name == ".." {
			return m, nil
		}
		ex.action = exActionRename
		ex.input.Placeholder = "new name"
		ex.input.SetValue(entry.name)
		ex.input.Focus()
		return m, nil
	case "d":
		entry, ok := ex.selected()
		if !ok || entry.name == ".." {
			return m, nil
		}
		ex.action = exActionDelete
		return m, nil

	case "v":
		entry, ok := ex.selected()
		if !ok || entry.isDir {
			return m, nil
		}
		m.previewEntry(ex, entry)
		return m, nil

	case "c", "f5":
		entry, ok := ex.selected()
		if !ok || entry.name == ".." {
			return m, nil
		}
		return m, m.startTransfer(ex, entry)
	}
	return m, nil
}

func (m *Model) explorerPageSize() int {
	n := m.height - 8
	if n < 1 {
		n = 1
	}
	return n
}

func (ex *explorer) enterDirectory(entry fileEntry) tea.Cmd {
	p := &ex.panes[ex.active]
	if entry.name == ".." {
		return ex.loadCmd(ex.active, parentDir(p.fs, p.path))
	}
	return ex.loadCmd(ex.active, p.fs.Join(p.path, entry.name))
}

func parentDir(fsys transfer.FS, p string) string {
	parent := fsys.Join(p, "..")
	if parent == "" {
		return "/"
	}
	return parent
}

// updateExplorerAction handles the one-line input overlays (mkdir, rename)
// and the delete confirmation.
func (m *Model) updateExplorerAction(ex *explorer, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if ex.action == exActionDelete {
		switch msg.String() {
		case "y", "enter":
			ex.action = exActionNone
			return m, m.deleteSelected(ex)
		case "n", "esc":
			ex.action = exActionNone
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		ex.action = exActionNone
		ex.input.Blur()
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(ex.input.Value())
		action := ex.action
		ex.action = exActionNone
		ex.input.Blur()
		if name == "" {
			return m, nil
		}
		switch action {
		case exActionMkdir:
			return m, m.makeDirectory(ex, name)
		case exActionRename:
			return m, m.renameSelected(ex, name)
		}
		return m, nil
	}
	var cmd tea.Cmd
	ex.input, cmd = ex.input.Update(msg)
	return m, cmd
}

func (m *Model) makeDirectory(ex *explorer, name string) tea.Cmd {
	p := &ex.panes[ex.active]
	if err := p.fs.Mkdir(p.fs.Join(p.path, name)); err != nil {
		m.setError("mkdir: " + err.Error())
		return nil
	}
	return ex.loadCmd(ex.active, p.path)
}

func (m *Model) deleteSelected(ex *explorer) tea.Cmd {
	entry, ok := ex.selected()
	if !ok {
		return nil
	}
	p := &ex.panes[ex.active]
	full := p.fs.Join(p.path, entry.name)
	var err error
	if entry.isDir {
		err = m.removeDirectory(ex, full)
	} else {
		err = p.fs.Remove(full)
	}
	if err != nil {
		m.setError("delete: " + err.Error())
		return nil
	}
	m.setInfo("deleted " + entry.name)
	return ex.loadCmd(ex.active, p.path)
}

// removeDirectory deletes a directory tree depth-first.
func (m *Model) removeDirectory(ex *explorer, dir string) error {
	if ex.active == paneLocal {
		return os.RemoveAll(dir)
	}
	infos, err := m.sftp.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		full := ex.panes[paneRemote].fs.Join(dir, info.Name())
		if info.IsDir() {
			if err := m.removeDirectory(ex, full); err != nil {
				return err
			}
		} else if err := m.sftp.Remove(full); err != nil {
			return err
		}
	}
	return m.sftp.RemoveDirectory(dir)
}

func (m *Model) renameSelected(ex *explorer, newName string) tea.Cmd {
	entry, ok := ex.selected()
	if !ok || newName == entry.name {
		return nil
	}
	p := &ex.panes[ex.active]
	from := p.fs.Join(p.path, entry.name)
	to := p.fs.Join(p.path, newName)
	var err error
	if ex.active == paneLocal {
		err = os.Rename(from, to)
	} else {
		err = m.sftp.Rename(from, to)
	}
	if err != nil {
		m.setError("rename: " + err.Error())
		return nil
	}
	return ex.loadCmd(ex.active, p.path)
}

// previewEntry reads the head of the selected file and shows it, or refuses
// when the content looks binary.
func (m *Model) previewEntry(ex *explorer, entry fileEntry) {
	p := &ex.panes[ex.active]
	full := p.fs.Join(p.path, entry.name)
	var head []byte
	var err error
	if ex.active == paneLocal {
		head, err = localHead(full, previewHeadSize)
	} else {
		head, err = m.sftp.ReadHead(full, previewHeadSize)
	}
	if err != nil {
		m.setError("preview: " + err.Error())
		return
	}
	pv := &previewState{name: entry.name}
	if bytes.IndexByte(head, 0) >= 0 || !utf8.Valid(head) {
		pv.binary = true
	} else {
		pv.lines = strings.Split(string(head), "\n")
	}
	ex.preview = pv
}

func localHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if read == 0 && err != nil {
		return nil, err
	}
	return buf[:read], nil
}

// startTransfer plans and runs a copy of the selected entry to the other
// pane, switching to the progress screen.
func (m *Model) startTransfer(ex *explorer, entry fileEntry) tea.Cmd {
	src := &ex.panes[ex.active]
	dst := &ex.panes[1-ex.active]

	tmode := transfer.Send
	if ex.active == paneRemote {
		tmode = transfer.Receive
	}
	srcPath := src.fs.Join(src.path, entry.name)
	dstPath := dst.fs.Join(dst.path, entry.name)

	job := newTransferJob(entry.name)
	m.mode = modeScpProgress{job: job, returnMode: modeFileExplorer{ex: ex}}
	return job.runCmd(m.send, tmode, src.fs, srcPath, dst.fs, dstPath, entry.isDir)
}

func (ex *explorer) view(width, height int) string {
	if ex.preview != nil {
		return ex.viewPreview(width, height)
	}

	paneWidth := width/2 - 2
	if paneWidth < 20 {
		paneWidth = 20
	}
	rows := height - 8
	if rows < 3 {
		rows = 3
	}

	local := ex.renderPane(paneLocal, paneWidth, rows)
	remote := ex.renderPane(paneRemote, paneWidth, rows)
	body := lipgloss.JoinHorizontal(lipgloss.Top, local, " ", remote)

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Files · local ⇄ %s", ex.host)))
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	switch ex.action {
	case exActionMkdir:
		b.WriteString(labelStyle.Render("Mkdir:") + " " + ex.input.View())
	case exActionRename:
		b.WriteString(labelStyle.Render("Rename:") + " " + ex.input.View())
	case exActionDelete:
		entry, _ := ex.selected()
		b.WriteString(errorStyle.Render(fmt.Sprintf("Delete %q? (y/n)", entry.name)))
	default:
		b.WriteString(helpStyle.Render("tab switch · enter open · c copy · v view · n mkdir · r rename · d delete · h hidden · esc back"))
	}
	return b.String()
}

func (ex *explorer) renderPane(pane, width, rows int) string {
	p := &ex.panes[pane]
	vis := ex.visible(pane)

	var b strings.Builder
	b.WriteString(truncatePath(p.path, width-2))
	b.WriteString("\n")

	start := 0
	if p.cursor >= rows {
		start = p.cursor - rows + 1
	}
	for i := start; i < len(vis) && i < start+rows; i++ {
		e := vis[i]
		label := e.name
		if e.isDir {
			label += "/"
		}
		size := ""
		if !e.isDir {
			size = formatSize(e.size)
		}
		line := fmt.Sprintf("%-*s %8s", width-12, truncateName(label, width-12), size)
		if i == p.cursor && pane == ex.active {
			line = selectedItemStyle.Render(line)
		} else {
			line = itemStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if p.loading {
		b.WriteString(descriptionStyle.Render("loading..."))
	}

	style := panelStyle
	if pane == ex.active {
		style = activePanelStyle
	}
	return style.Width(width).Height(rows + 2).Render(b.String())
}

func (ex *explorer) viewPreview(width, height int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Preview · " + ex.preview.name))
	b.WriteString("\n")
	if ex.preview.binary {
		b.WriteString(descriptionStyle.Render("binary file, preview suppressed"))
	} else {
		limit := height - 4
		for i, line := range ex.preview.lines {
			if i >= limit {
				break
			}
			if len(line) > width-2 {
				line = line[:width-2]
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("any key to close"))
	return b.String()
}

func truncatePath(p string, maxWidth int) string {
	if len(p) <= maxWidth {
		return p
	}
	return "…" + p[len(p)-maxWidth+1:]
}

func truncateName(s string, maxWidth int) string {
	if maxWidth <= 1 || len(s) <= maxWidth {
		return s
	}
	return s[:maxWidth-1] + "…"
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
