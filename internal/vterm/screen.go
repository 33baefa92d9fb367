// Package vterm implements the VT100/xterm subset the remote shell needs:
// a primary screen with bounded scrollback, an alternate screen, cursor and
// erase operations, scroll regions, SGR attributes and the two mode bits the
// controller keys off (alternate screen, application cursor keys).
package vterm

import (
	"github.com/mattn/go-runewidth"
)

// Color is -1 for the terminal default, 0..255 for palette colors, or an
// RGB value with the high bit pattern set by RGB().
type Color int32

const ColorDefault Color = -1

const rgbFlag Color = 1 << 24

func RGB(r, g, b uint8) Color {
	return rgbFlag | Color(r)<<16 | Color(g)<<8 | Color(b)
}

// IsRGB reports whether c carries a 24-bit color; RGBParts is only valid
// when it does.
func (c Color) IsRGB() bool { return c >= rgbFlag }

func (c Color) RGBParts() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

type Style struct {
	Fg, Bg    Color
	Bold      bool
	Underline bool
	Reverse   bool
}

var defaultStyle = Style{Fg: ColorDefault, Bg: ColorDefault}

// Cell is one screen position. Wide runes occupy two cells: the first has
// Wide set, the second is a continuation with Rune 0 and Cont set.
type Cell struct {
	Rune  rune
	Wide  bool
	Cont  bool
	Style Style
}

// HasContents reports whether the cell holds a printable rune.
func (c Cell) HasContents() bool { return c.Rune != 0 && !c.Cont }

type line struct {
	cells   []Cell
	wrapped bool // true when the line continues onto the next one
}

func newLine(cols int) line {
	return line{cells: make([]Cell, cols)}
}

func (l *line) clone() line {
	c := line{cells: make([]Cell, len(l.cells)), wrapped: l.wrapped}
	copy(c.cells, l.cells)
	return c
}

// screen holds one grid (primary or alternate) plus cursor state.
type screen struct {
	rows, cols int
	lines      []line
	curRow     int
	curCol     int
	savedRow   int
	savedCol   int
	// scroll region, inclusive rows
	regionTop    int
	regionBottom int
	pendingWrap  bool
}

func newScreen(rows, cols int) *screen {
	s := &screen{rows: rows, cols: cols, regionBottom: rows - 1}
	s.lines = make([]line, rows)
	for i := range s.lines {
		s.lines[i] = newLine(cols)
	}
	return s
}

func (s *screen) clampCursor() {
	if s.curRow < 0 {
		s.curRow = 0
	}
	if s.curRow >= s.rows {
		s.curRow = s.rows - 1
	}
	if s.curCol < 0 {
		s.curCol = 0
	}
	if s.curCol >= s.cols {
		s.curCol = s.cols - 1
	}
}

// Screen is the full emulator state: primary and alternate grids, the
// scrollback of the primary grid, and mode flags.
type Screen struct {
	primary *screen
	alt     *screen
	useAlt  bool

	scrollback    []line
	maxScrollback int
	// offset lines scrolled up from the bottom; 0 means bottom
	offset int

	style Style

	appCursorKeys bool
	cursorHidden  bool
	title         string
}

// NewScreen creates an emulator with the given viewport and scrollback cap.
func NewScreen(rows, cols, scrollbackLimit int) *Screen {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	if scrollbackLimit < 1 {
		scrollbackLimit = 1
	}
	return &Screen{
		primary:       newScreen(rows, cols),
		alt:           newScreen(rows, cols),
		maxScrollback: scrollbackLimit,
		style:         defaultStyle,
	}
}

func (s *Screen) grid() *screen {
	if s.useAlt {
		return s.alt
	}
	return s.primary
}

func (s *Screen) Size() (rows, cols int) {
	return s.grid().rows, s.grid().cols
}

func (s *Screen) AltScreen() bool        { return s.useAlt }
func (s *Screen) AppCursorKeys() bool    { return s.appCursorKeys }
func (s *Screen) CursorHidden() bool     { return s.cursorHidden }
func (s *Screen) Title() string          { return s.title }
func (s *Screen) ScrollbackLen() int     { return len(s.scrollback) }
func (s *Screen) ScrollbackOffset() int  { return s.offset }
func (s *Screen) Cursor() (row, col int) { g := s.grid(); return g.curRow, g.curCol }

// ScrollBy moves the viewport by delta lines (positive scrolls into
// history). The alternate screen has no scrollback.
func (s *Screen) ScrollBy(delta int) {
	if s.useAlt {
		return
	}
	s.offset += delta
	if s.offset > len(s.scrollback) {
		s.offset = len(s.scrollback)
	}
	if s.offset < 0 {
		s.offset = 0
	}
}

func (s *Screen) ScrollToBottom() { s.offset = 0 }

// Resize changes the viewport dimensions, preserving row contents where
// possible. Same dimensions are a no-op.
func (s *Screen) Resize(rows, cols int) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	if rows == s.primary.rows && cols == s.primary.cols {
		return
	}
	for _, g := range []*screen{s.primary, s.alt} {
		resized := make([]line, rows)
		for i := range resized {
			resized[i] = newLine(cols)
			if i < len(g.lines) {
				copy(resized[i].cells, g.lines[i].cells)
				resized[i].wrapped = g.lines[i].wrapped && cols >= g.cols
			}
		}
		g.lines = resized
		g.rows = rows
		g.cols = cols
		g.regionTop = 0
		g.regionBottom = rows - 1
		g.pendingWrap = false
		g.clampCursor()
	}
	for i := range s.scrollback {
		cells := make([]Cell, cols)
		copy(cells, s.scrollback[i].cells)
		s.scrollback[i].cells = cells
	}
	if s.offset > len(s.scrollback) {
		s.offset = len(s.scrollback)
	}
}

// pushScrollback retires the top screen line into history, enforcing the cap.
func (s *Screen) pushScrollback(l line) {
	s.scrollback = append(s.scrollback, l)
	if len(s.scrollback) > s.maxScrollback {
		drop := len(s.scrollback) - s.maxScrollback
		s.scrollback = s.scrollback[drop:]
		if s.offset > len(s.scrollback) {
			s.offset = len(s.scrollback)
		}
	}
	// Keep the viewport anchored while the user is reading history.
	if s.offset > 0 {
		s.offset++
		if s.offset > len(s.scrollback) {
			s.offset = len(s.scrollback)
		}
	}
}

// scrollUp scrolls the region up by n lines; rows leaving the top of a
// full-screen region on the primary grid enter the scrollback.
func (s *Screen) scrollUp(n int) {
	g := s.grid()
	if n < 1 {
		n = 1
	}
	for ; n > 0; n-- {
		top := g.regionTop
		if !s.useAlt && top == 0 && g.regionBottom == g.rows-1 {
			s.pushScrollback(g.lines[0].clone())
		}
		copy(g.lines[top:g.regionBottom], g.lines[top+1:g.regionBottom+1])
		g.lines[g.regionBottom] = newLine(g.cols)
	}
}

func (s *Screen) scrollDown(n int) {
	g := s.grid()
	if n < 1 {
		n = 1
	}
	for ; n > 0; n-- {
		copy(g.lines[g.regionTop+1:g.regionBottom+1], g.lines[g.regionTop:g.regionBottom])
		g.lines[g.regionTop] = newLine(g.cols)
	}
}

func (s *Screen) lineFeed() {
	g := s.grid()
	g.pendingWrap = false
	if g.curRow == g.regionBottom {
		s.scrollUp(1)
		return
	}
	if g.curRow < g.rows-1 {
		g.curRow++
	}
}

func (s *Screen) reverseLineFeed() {
	g := s.grid()
	g.pendingWrap = false
	if g.curRow == g.regionTop {
		s.scrollDown(1)
		return
	}
	if g.curRow > 0 {
		g.curRow--
	}
}

func (s *Screen) carriageReturn() {
	g := s.grid()
	g.curCol = 0
	g.pendingWrap = false
}

func (s *Screen) backspace() {
	g := s.grid()
	if g.pendingWrap {
		g.pendingWrap = false
		return
	}
	if g.curCol > 0 {
		g.curCol--
	}
}

func (s *Screen) tab() {
	g := s.grid()
	next := (g.curCol/8 + 1) * 8
	if next >= g.cols {
		next = g.cols - 1
	}
	g.curCol = next
	g.pendingWrap = false
}

// put writes one printable rune at the cursor, handling autowrap and wide
// runes.
func (s *Screen) put(r rune) {
	g := s.grid()
	w := runewidth.RuneWidth(r)
	if w <= 0 {
		// Combining marks attach to the previous cell when there is one.
		if g.curCol > 0 {
			prev := &g.lines[g.curRow].cells[g.curCol-1]
			if prev.HasContents() {
				prev.Rune = r // keep only the base-less mark; close enough for a terminal list UI
			}
		}
		return
	}

	if g.pendingWrap {
		g.lines[g.curRow].wrapped = true
		g.pendingWrap = false
		s.carriageReturnAndFeed()
		g = s.grid()
	}

	// A wide rune that does not fit on this line wraps early.
	if w == 2 && g.curCol == g.cols-1 {
		g.lines[g.curRow].cells[g.curCol] = Cell{Style: s.style}
		g.lines[g.curRow].wrapped = true
		s.carriageReturnAndFeed()
		g = s.grid()
	}

	row := &g.lines[g.curRow]
	row.cells[g.curCol] = Cell{Rune: r, Wide: w == 2, Style: s.style}
	if w == 2 && g.curCol+1 < g.cols {
		row.cells[g.curCol+1] = Cell{Cont: true, Style: s.style}
	}

	if g.curCol+w >= g.cols {
		g.curCol = g.cols - 1
		g.pendingWrap = true
	} else {
		g.curCol += w
	}
}

func (s *Screen) carriageReturnAndFeed() {
	s.carriageReturn()
	s.lineFeed()
}

func (s *Screen) moveCursor(row, col int) {
	g := s.grid()
	g.curRow = row
	g.curCol = col
	g.pendingWrap = false
	g.clampCursor()
}

func (s *Screen) eraseInDisplay(mode int) {
	g := s.grid()
	switch mode {
	case 0: // cursor to end
		s.eraseInLine(0)
		for r := g.curRow + 1; r < g.rows; r++ {
			g.lines[r] = newLine(g.cols)
		}
	case 1: // start to cursor
		s.eraseInLine(1)
		for r := 0; r < g.curRow; r++ {
			g.lines[r] = newLine(g.cols)
		}
	case 2:
		for r := range g.lines {
			g.lines[r] = newLine(g.cols)
		}
	case 3:
		s.scrollback = nil
		s.offset = 0
	}
}

func (s *Screen) eraseInLine(mode int) {
	g := s.grid()
	row := &g.lines[g.curRow]
	switch mode {
	case 0:
		for c := g.curCol; c < g.cols; c++ {
			row.cells[c] = Cell{Style: s.style}
		}
		row.wrapped = false
	case 1:
		for c := 0; c <= g.curCol && c < g.cols; c++ {
			row.cells[c] = Cell{Style: s.style}
		}
	case 2:
		g.lines[g.curRow] = newLine(g.cols)
	}
}

func (s *Screen) insertLines(n int) {
	g := s.grid()
	if g.curRow < g.regionTop || g.curRow > g.regionBottom {
		return
	}
	if n < 1 {
		n = 1
	}
	for ; n > 0; n-- {
		copy(g.lines[g.curRow+1:g.regionBottom+1], g.lines[g.curRow:g.regionBottom])
		g.lines[g.curRow] = newLine(g.cols)
	}
}

func (s *Screen) deleteLines(n int) {
	g := s.grid()
	if g.curRow < g.regionTop || g.curRow > g.regionBottom {
		return
	}
	if n < 1 {
		n = 1
	}
	for ; n > 0; n-- {
		copy(g.lines[g.curRow:g.regionBottom], g.lines[g.curRow+1:g.regionBottom+1])
		g.lines[g.regionBottom] = newLine(g.cols)
	}
}

func (s *Screen) insertChars(n int) {
	g := s.grid()
	if n < 1 {
		n = 1
	}
	row := g.lines[g.curRow].cells
	for i := g.cols - 1; i >= g.curCol+n; i-- {
		row[i] = row[i-n]
	}
	for i := g.curCol; i < g.curCol+n && i < g.cols; i++ {
		row[i] = Cell{Style: s.style}
	}
}

func (s *Screen) deleteChars(n int) {
	g := s.grid()
	if n < 1 {
		n = 1
	}
	row := g.lines[g.curRow].cells
	for i := g.curCol; i < g.cols; i++ {
		if i+n < g.cols {
			row[i] = row[i+n]
		} else {
			row[i] = Cell{Style: s.style}
		}
	}
}

func (s *Screen) eraseChars(n int) {
	g := s.grid()
	if n < 1 {
		n = 1
	}
	row := g.lines[g.curRow].cells
	for i := g.curCol; i < g.curCol+n && i < g.cols; i++ {
		row[i] = Cell{Style: s.style}
	}
}

func (s *Screen) setScrollRegion(top, bottom int) {
	g := s.grid()
	if top < 1 {
		top = 1
	}
	if bottom < 1 || bottom > g.rows {
		bottom = g.rows
	}
	if top >= bottom {
		return
	}
	g.regionTop = top - 1
	g.regionBottom = bottom - 1
	g.curRow, g.curCol = 0, 0
	g.pendingWrap = false
}

func (s *Screen) enterAlt() {
	if s.useAlt {
		return
	}
	s.useAlt = true
	s.alt = newScreen(s.primary.rows, s.primary.cols)
	s.offset = 0
}

func (s *Screen) exitAlt() {
	if !s.useAlt {
		return
	}
	s.useAlt = false
	s.offset = 0
}

// TotalLines is scrollback plus the viewport height.
func (s *Screen) TotalLines() int {
	if s.useAlt {
		return s.grid().rows
	}
	return len(s.scrollback) + s.grid().rows
}

// lineAt returns the conceptual line at absolute index, where index 0 is the
// oldest scrollback line and TotalLines()-1 is the screen bottom.
func (s *Screen) lineAt(idx int) *line {
	if s.useAlt {
		if idx < 0 || idx >= s.alt.rows {
			return nil
		}
		return &s.alt.lines[idx]
	}
	if idx < 0 || idx >= s.TotalLines() {
		return nil
	}
	if idx < len(s.scrollback) {
		return &s.scrollback[idx]
	}
	return &s.primary.lines[idx-len(s.scrollback)]
}

// LineByRev returns the line addressed by rows-from-bottom: rev 0 is the most
// recent line regardless of viewport offset.
func (s *Screen) LineByRev(rev int) *line {
	return s.lineAt(s.TotalLines() - 1 - rev)
}

// CellAt returns the cell at the given reverse row and column, or a zero
// cell when out of range.
func (s *Screen) CellAt(rev, col int) Cell {
	l := s.LineByRev(rev)
	if l == nil || col < 0 || col >= len(l.cells) {
		return Cell{}
	}
	return l.cells[col]
}

// RowWrappedByRev reports whether the addressed line continues onto the next.
func (s *Screen) RowWrappedByRev(rev int) bool {
	l := s.LineByRev(rev)
	return l != nil && l.wrapped
}

// VisibleLine returns a copy of viewport row i honoring the scroll offset.
func (s *Screen) VisibleLine(i int) []Cell {
	g := s.grid()
	if i < 0 || i >= g.rows {
		return nil
	}
	var l *line
	if s.useAlt {
		l = &g.lines[i]
	} else {
		l = s.lineAt(len(s.scrollback) - s.offset + i)
	}
	if l == nil {
		return make([]Cell, g.cols)
	}
	out := make([]Cell, len(l.cells))
	copy(out, l.cells)
	return out
}
