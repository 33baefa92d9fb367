package vterm

import (
	"strings"
	"time"
	"unicode"
)

// Endpoint identifies a cell for selection purposes. RevRow counts rows
// from the bottom of the full scrollback (0 = most recent line), which keeps
// the addressing independent of the viewport offset.
type Endpoint struct {
	RevRow int
	Col    int
}

// OrderEndpoints returns (top, bottom) in reading order. Higher RevRow means
// older, i.e. visually higher.
func OrderEndpoints(a, b Endpoint) (Endpoint, Endpoint) {
	if a.RevRow > b.RevRow {
		return a, b
	}
	if a.RevRow < b.RevRow {
		return b, a
	}
	if a.Col <= b.Col {
		return a, b
	}
	return b, a
}

// RevFromView converts a viewport row to a reverse row index given the
// viewport height and current scroll offset.
func RevFromView(height, offset, viewRow int) int {
	if height <= 0 {
		return 0
	}
	if viewRow > height-1 {
		viewRow = height - 1
	}
	if viewRow < 0 {
		viewRow = 0
	}
	return (height - 1 - viewRow) + offset
}

// ViewFromRev converts back; ok is false when the row is outside the
// current viewport.
func ViewFromRev(height, offset, rev int) (int, bool) {
	if height <= 0 {
		return 0, false
	}
	row := (height - 1) - (rev - offset)
	if row < 0 || row >= height {
		return 0, false
	}
	return row, true
}

// EndpointAt builds an endpoint for a click at viewport coordinates,
// clamping the column to the screen.
func (s *Screen) EndpointAt(viewRow, viewCol int) Endpoint {
	rows, cols := s.Size()
	if viewCol > cols-1 {
		viewCol = cols - 1
	}
	if viewCol < 0 {
		viewCol = 0
	}
	return Endpoint{
		RevRow: RevFromView(rows, s.ScrollbackOffset(), viewRow),
		Col:    viewCol,
	}
}

// CollectText extracts the selected text between two endpoints in either
// order. Spans are inclusive of the end column on the last row; empty cells
// become single spaces; rows are joined with newlines except where the row
// wrapped.
func (s *Screen) CollectText(a, b Endpoint) string {
	rows, cols := s.Size()
	if rows == 0 || cols == 0 {
		return ""
	}
	top, bottom := OrderEndpoints(a, b)

	var sb strings.Builder
	for rev := top.RevRow; rev >= bottom.RevRow; rev-- {
		if rev < 0 || s.LineByRev(rev) == nil {
			if rev == bottom.RevRow {
				break
			}
			continue
		}

		startCol := 0
		if rev == top.RevRow {
			startCol = top.Col
		}
		endCol := cols
		if rev == bottom.RevRow {
			endCol = bottom.Col + 1
		}
		if endCol > cols {
			endCol = cols
		}

		if endCol > startCol {
			sb.WriteString(s.segmentText(rev, startCol, endCol))
		}
		if rev == bottom.RevRow {
			break
		}
		if !s.RowWrappedByRev(rev) {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// segmentText renders cells [startCol, endCol) of one line. Wide runes are
// emitted once and their continuation cell skipped.
func (s *Screen) segmentText(rev, startCol, endCol int) string {
	var sb strings.Builder
	col := startCol
	for col < endCol {
		cell := s.CellAt(rev, col)
		if cell.Cont {
			col++
			continue
		}
		if cell.HasContents() {
			sb.WriteRune(cell.Rune)
			if cell.Wide {
				col += 2
			} else {
				col++
			}
			continue
		}
		sb.WriteByte(' ')
		col++
	}
	return sb.String()
}

// WordBoundsAt expands from the given cell to the surrounding word on that
// line. Word characters are letters, digits, and common path punctuation.
func (s *Screen) WordBoundsAt(rev, col int) (startCol, endCol int) {
	_, cols := s.Size()
	isWord := func(c int) bool {
		cell := s.CellAt(rev, c)
		if !cell.HasContents() {
			return false
		}
		r := cell.Rune
		return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_-./~", r)
	}
	if !isWord(col) {
		return col, col
	}
	startCol, endCol = col, col
	for startCol > 0 && isWord(startCol-1) {
		startCol--
	}
	for endCol < cols-1 && isWord(endCol+1) {
		endCol++
	}
	return startCol, endCol
}

// Click classification: a 350 ms window with identical cell coordinates
// upgrades single to double to triple; a fourth click starts over.
const ClickInterval = 350 * time.Millisecond

type ClickClass int

const (
	SingleClick ClickClass = iota + 1
	DoubleClick
	TripleClick
)

type ClickTracker struct {
	lastRow, lastCol int
	lastAt           time.Time
	count            int
}

// Click records a press at viewport coordinates and returns its class.
func (c *ClickTracker) Click(row, col int, now time.Time) ClickClass {
	same := c.count > 0 && row == c.lastRow && col == c.lastCol &&
		now.Sub(c.lastAt) <= ClickInterval
	if same && c.count < 3 {
		c.count++
	} else {
		c.count = 1
	}
	c.lastRow, c.lastCol = row, col
	c.lastAt = now
	return ClickClass(c.count)
}

// ScrollDirection marks which edge a drag crossed for auto-scroll.
type ScrollDirection int

const (
	ScrollUp ScrollDirection = iota + 1
	ScrollDown
)

// AutoScroll remembers an in-progress drag past the viewport edge; the
// controller applies one line per tick while it is set.
type AutoScroll struct {
	Direction ScrollDirection
	ViewRow   int
	ViewCol   int
}
