package vterm

import (
	"sync"
	"time"
)

// Terminal pairs a Screen with its Parser behind a mutex. The session read
// pump is the only writer; the renderer is the only reader. Both hold the
// lock just long enough for one parse or copy step.
type Terminal struct {
	mu         sync.Mutex
	screen     *Screen
	parser     *Parser
	lastChange time.Time
}

func NewTerminal(rows, cols, scrollbackLimit int) *Terminal {
	screen := NewScreen(rows, cols, scrollbackLimit)
	return &Terminal{
		screen:     screen,
		parser:     NewParser(screen),
		lastChange: time.Now(),
	}
}

// Process feeds remote bytes into the parser. Called from the read pump.
func (t *Terminal) Process(data []byte) {
	t.mu.Lock()
	t.parser.Process(data)
	t.lastChange = time.Now()
	t.mu.Unlock()
}

// Resize is a no-op when the dimensions are unchanged.
func (t *Terminal) Resize(rows, cols int) {
	t.mu.Lock()
	t.screen.Resize(rows, cols)
	t.lastChange = time.Now()
	t.mu.Unlock()
}

func (t *Terminal) ScrollBy(delta int) {
	t.mu.Lock()
	t.screen.ScrollBy(delta)
	t.lastChange = time.Now()
	t.mu.Unlock()
}

func (t *Terminal) ScrollToBottom() {
	t.mu.Lock()
	t.screen.ScrollToBottom()
	t.lastChange = time.Now()
	t.mu.Unlock()
}

func (t *Terminal) ScreenSize() (rows, cols int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.screen.Size()
}

func (t *Terminal) ScrollbackOffset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.screen.ScrollbackOffset()
}

func (t *Terminal) LastChangeAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastChange
}

func (t *Terminal) AltScreen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.screen.AltScreen()
}

func (t *Terminal) AppCursorKeys() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.screen.AppCursorKeys()
}

// Snapshot is a renderable copy of the viewport; taking one holds the lock
// for a single copy step.
type Snapshot struct {
	Rows, Cols    int
	Lines         [][]Cell
	CursorRow     int
	CursorCol     int
	CursorHidden  bool
	AltScreen     bool
	Offset        int
	ScrollbackLen int
	Title         string
}

func (t *Terminal) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, cols := t.screen.Size()
	snap := Snapshot{
		Rows:          rows,
		Cols:          cols,
		Lines:         make([][]Cell, rows),
		CursorHidden:  t.screen.CursorHidden(),
		AltScreen:     t.screen.AltScreen(),
		Offset:        t.screen.ScrollbackOffset(),
		ScrollbackLen: t.screen.ScrollbackLen(),
		Title:         t.screen.Title(),
	}
	snap.CursorRow, snap.CursorCol = t.screen.Cursor()
	for i := 0; i < rows; i++ {
		snap.Lines[i] = t.screen.VisibleLine(i)
	}
	return snap
}

// WithScreen runs fn under the terminal lock. Selection helpers use it to
// read cells without copying the whole screen.
func (t *Terminal) WithScreen(fn func(*Screen)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.screen)
}
