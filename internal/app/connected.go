package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/logging"
	"sshpilot/internal/vterm"
)

// handleConnectedKey translates host keys for the remote shell, except for
// the local-only ones (scrollback paging, selection copy, explorer).
func (m *Model) handleConnectedKey(msg tea.KeyMsg) tea.Cmd {
	if m.shell == nil || m.term == nil {
		return nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		// Inside a full-screen app (or with application cursor keys on)
		// ESC belongs to the remote; otherwise it ends the session.
		if m.term.AltScreen() || m.term.AppCursorKeys() {
			return m.writeShell([]byte{0x1b})
		}
		m.teardownSession("closed by user")
		m.mode = modeConnectionList{}
		m.setInfo("session closed")
		return tea.DisableMouse

	case tea.KeyPgUp:
		rows, _ := m.term.ScreenSize()
		m.scrollShell(rows - 1)
		return nil
	case tea.KeyPgDown:
		rows, _ := m.term.ScreenSize()
		m.scrollShell(-(rows - 1))
		return nil
	case tea.KeyHome:
		m.scrollShell(1 << 30)
		return nil
	case tea.KeyEnd:
		m.term.ScrollToBottom()
		m.invalidateShell()
		return nil

	case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyCtrlU:
		// Control bytes act on the live end of the stream.
		m.term.ScrollToBottom()
		m.invalidateShell()
		var b byte
		switch msg.Type {
		case tea.KeyCtrlC:
			b = 0x03
		case tea.KeyCtrlD:
			b = 0x04
		default:
			b = 0x15
		}
		return m.writeShell([]byte{b})

	case tea.KeyCtrlF:
		return m.openExplorer()

	case tea.KeyUp, tea.KeyDown, tea.KeyRight, tea.KeyLeft:
		return m.writeShell(encodeArrow(msg.Type, m.term.AppCursorKeys()))
	}

	if msg.Paste {
		return m.writeShell([]byte(string(msg.Runes)))
	}

	// Copy only intercepts a plain c while a selection exists; otherwise
	// the letter goes to the remote like any other.
	if msg.String() == "c" && m.sel.active && !m.sel.dragging {
		m.copySelection()
		return nil
	}

	if data := encodeKey(msg); len(data) > 0 {
		return m.writeShell(data)
	}
	return nil
}

func (m *Model) writeShell(data []byte) tea.Cmd {
	if err := m.shell.Write(data); err != nil {
		logging.Debugf("app", "shell write: %v", err)
	}
	return nil
}

func (m *Model) scrollShell(delta int) {
	m.term.ScrollBy(delta)
	m.invalidateShell()
}

func (m *Model) invalidateShell() { m.shellFrame = "" }

func encodeArrow(t tea.KeyType, appCursor bool) []byte {
	var letter byte
	switch t {
	case tea.KeyUp:
		letter = 'A'
	case tea.KeyDown:
		letter = 'B'
	case tea.KeyRight:
		letter = 'C'
	case tea.KeyLeft:
		letter = 'D'
	}
	if appCursor {
		return []byte{0x1b, 'O', letter}
	}
	return []byte{0x1b, '[', letter}
}

// encodeKey maps the remaining host keys to the byte sequence a terminal
// would send.
func encodeKey(msg tea.KeyMsg) []byte {
	switch msg.Type {
	case tea.KeyEnter:
		return []byte{'\r'}
	case tea.KeyBackspace:
		return []byte{0x7f}
	case tea.KeyTab:
		return []byte{'\t'}
	case tea.KeyShiftTab:
		return []byte{0x1b, '[', 'Z'}
	case tea.KeySpace:
		return []byte{' '}
	case tea.KeyDelete:
		return []byte("\x1b[3~")
	case tea.KeyRunes:
		if msg.Alt {
			return append([]byte{0x1b}, []byte(string(msg.Runes))...)
		}
		return []byte(string(msg.Runes))
	}
	// Remaining control keys map straight to their byte value.
	if msg.Type >= tea.KeyCtrlA && msg.Type <= tea.KeyCtrlZ {
		return []byte{byte(msg.Type - tea.KeyCtrlA + 1)}
	}
	return nil
}

// handleConnectedMouse runs the selection state machine: wheel scrolls,
// click starts, drag extends, multi-click widens to word or line.
func (m *Model) handleConnectedMouse(msg tea.MouseMsg) tea.Cmd {
	if m.term == nil {
		return nil
	}
	rows, cols := m.term.ScreenSize()
	if msg.Y >= rows {
		return nil // status line
	}

	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.scrollShell(3)
		return nil
	case msg.Button == tea.MouseButtonWheelDown:
		m.scrollShell(-3)
		return nil
	}

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return nil
		}
		class := m.sel.clicks.Click(msg.Y, msg.X, time.Now())
		switch class {
		case vterm.SingleClick:
			m.sel.active = false
			m.sel.dragging = true
			m.term.WithScreen(func(s *vterm.Screen) {
				ep := s.EndpointAt(msg.Y, msg.X)
				m.sel.start, m.sel.end = ep, ep
			})
		case vterm.DoubleClick:
			m.selectWordAt(msg.Y, msg.X)
		case vterm.TripleClick:
			m.selectLineAt(msg.Y, cols)
		}
		m.invalidateShell()

	case tea.MouseActionMotion:
		if !m.sel.dragging {
			return nil
		}
		m.term.WithScreen(func(s *vterm.Screen) {
			m.sel.end = s.EndpointAt(msg.Y, msg.X)
		})
		m.sel.active = true
		switch {
		case msg.Y <= 0:
			m.sel.auto = vterm.AutoScroll{Direction: vterm.ScrollUp, ViewRow: 0, ViewCol: msg.X}
		case msg.Y >= rows-1:
			m.sel.auto = vterm.AutoScroll{Direction: vterm.ScrollDown, ViewRow: rows - 1, ViewCol: msg.X}
		default:
			m.sel.auto = vterm.AutoScroll{}
		}
		m.invalidateShell()

	case tea.MouseActionRelease:
		m.sel.dragging = false
		m.sel.auto = vterm.AutoScroll{}
		m.invalidateShell()
	}
	return nil
}

func (m *Model) selectWordAt(viewRow, viewCol int) {
	m.term.WithScreen(func(s *vterm.Screen) {
		rows, _ := s.Size()
		rev := vterm.RevFromView(rows, s.ScrollbackOffset(), viewRow)
		start, end := s.WordBoundsAt(rev, viewCol)
		if start == end {
			if c := s.CellAt(rev, start); !c.HasContents() {
				return
			}
		}
		m.sel.start = vterm.Endpoint{RevRow: rev, Col: start}
		m.sel.end = vterm.Endpoint{RevRow: rev, Col: end}
		m.sel.active = true
	})
}

// selectLineAt selects the whole viewport row. Unlike word selection it
// always yields a selection, even on a blank row.
func (m *Model) selectLineAt(viewRow, cols int) {
	m.term.WithScreen(func(s *vterm.Screen) {
		rows, _ := s.Size()
		rev := vterm.RevFromView(rows, s.ScrollbackOffset(), viewRow)
		m.sel.start = vterm.Endpoint{RevRow: rev, Col: 0}
		m.sel.end = vterm.Endpoint{RevRow: rev, Col: cols - 1}
		m.sel.active = true
	})
}

// applyAutoScroll advances a drag past the viewport edge by one line per
// tick, extending the selection as the view moves.
func (m *Model) applyAutoScroll() {
	if m.term == nil || !m.sel.dragging || m.sel.auto.Direction == 0 {
		return
	}
	if m.sel.auto.Direction == vterm.ScrollUp {
		m.term.ScrollBy(1)
	} else {
		m.term.ScrollBy(-1)
	}
	m.term.WithScreen(func(s *vterm.Screen) {
		m.sel.end = s.EndpointAt(m.sel.auto.ViewRow, m.sel.auto.ViewCol)
	})
	m.sel.active = true
	m.invalidateShell()
}

func (m *Model) copySelection() {
	var text string
	m.term.WithScreen(func(s *vterm.Screen) {
		text = s.CollectText(m.sel.start, m.sel.end)
	})
	if err := clipboard.WriteAll(text); err != nil {
		// Clipboard trouble is cosmetic; the session stays up.
		m.setError("clipboard: " + err.Error())
		return
	}
	m.sel = selectionState{clicks: m.sel.clicks}
	m.setInfo("selection copied")
	m.invalidateShell()
}

// viewShell renders the emulator viewport plus a one-line status bar. The
// frame is cached; it is rebuilt when the emulator changed recently or a
// local action invalidated it.
func (m *Model) viewShell() string {
	if m.term == nil {
		return ""
	}
	if m.shellFrame != "" && m.term.LastChangeAt().Before(m.shellFrameAt) {
		return m.shellFrame
	}

	snap := m.term.Snapshot()
	var b strings.Builder
	top, bottom := vterm.OrderEndpoints(m.sel.start, m.sel.end)

	for row := 0; row < snap.Rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		rev := vterm.RevFromView(snap.Rows, snap.Offset, row)
		cursorHere := !snap.CursorHidden && snap.Offset == 0 && row == snap.CursorRow
		renderRow(&b, snap.Lines[row], func(col int) bool {
			if cursorHere && col == snap.CursorCol {
				return true
			}
			return m.sel.active && inSelection(top, bottom, rev, col)
		})
	}

	b.WriteByte('\n')
	b.WriteString(m.shellStatusLine(snap))

	m.shellFrame = b.String()
	m.shellFrameAt = time.Now()
	return m.shellFrame
}

func (m *Model) shellStatusLine(snap vterm.Snapshot) string {
	left := fmt.Sprintf(" %s@%s", m.activeConn.Username, m.activeConn.Host)
	if snap.Offset > 0 {
		left += fmt.Sprintf("  [scroll +%d]", snap.Offset)
	}
	right := "ctrl+f files · esc end session "
	pad := snap.Cols - len([]rune(left)) - len([]rune(right))
	if pad < 1 {
		pad = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", pad) + right)
}

// inSelection reports whether (rev, col) lies inside the ordered selection.
func inSelection(top, bottom vterm.Endpoint, rev, col int) bool {
	if rev > top.RevRow || rev < bottom.RevRow {
		return false
	}
	if top.RevRow == bottom.RevRow {
		return col >= top.Col && col <= bottom.Col
	}
	switch rev {
	case top.RevRow:
		return col >= top.Col
	case bottom.RevRow:
		return col <= bottom.Col
	default:
		return true
	}
}

// renderRow emits one viewport row as raw SGR-styled text, coalescing
// attribute changes.
func renderRow(b *strings.Builder, cells []vterm.Cell, inverted func(col int) bool) {
	var cur string
	styled := false
	for col := 0; col < len(cells); col++ {
		cell := cells[col]
		if cell.Cont {
			continue
		}
		seq := sgrFor(cell.Style, inverted(col))
		if seq != cur {
			b.WriteString("\x1b[0m")
			b.WriteString(seq)
			cur = seq
			styled = seq != ""
		}
		if cell.HasContents() {
			b.WriteRune(cell.Rune)
		} else {
			b.WriteByte(' ')
		}
	}
	if styled || cur != "" {
		b.WriteString("\x1b[0m")
	}
}

// sgrFor builds the escape sequence selecting a cell's attributes; empty
// string means default rendition.
func sgrFor(st vterm.Style, inverted bool) string {
	var parts []string
	if st.Bold {
		parts = append(parts, "1")
	}
	if st.Underline {
		parts = append(parts, "4")
	}
	if st.Reverse != inverted {
		parts = append(parts, "7")
	}
	if st.Fg != vterm.ColorDefault {
		if st.Fg.IsRGB() {
			r, g, bl := st.Fg.RGBParts()
			parts = append(parts, fmt.Sprintf("38;2;%d;%d;%d", r, g, bl))
		} else {
			parts = append(parts, fmt.Sprintf("38;5;%d", int(st.Fg)))
		}
	}
	if st.Bg != vterm.ColorDefault {
		if st.Bg.IsRGB() {
			r, g, bl := st.Bg.RGBParts()
			parts = append(parts, fmt.Sprintf("48;2;%d;%d;%d", r, g, bl))
		} else {
			parts = append(parts, fmt.Sprintf("48;5;%d", int(st.Bg)))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "\x1b[" + strings.Join(parts, ";") + "m"
}
