package vterm

import "unicode/utf8"

// Parser feeds a byte stream into a Screen. It tolerates partial UTF-8
// sequences and unknown escape codes; anything unrecognized is consumed
// silently so a noisy remote cannot wedge the state machine.
type Parser struct {
	screen *Screen

	state   parserState
	partial []byte // incomplete utf8 rune spanning Process calls

	params  []int
	private bool
	curr    curr
	osc     []byte
}

// curr accumulates the CSI parameter currently being read; hasVal false
// means "no digit seen yet" so defaults apply.
type curr struct {
	val    int
	hasVal bool
}

type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEsc
	stateCharset
)

func NewParser(screen *Screen) *Parser {
	return &Parser{screen: screen}
}

// Process consumes a chunk of remote output.
func (p *Parser) Process(data []byte) {
	if len(p.partial) > 0 {
		data = append(p.partial, data...)
		p.partial = nil
	}
	i := 0
	for i < len(data) {
		b := data[i]
		if p.state == stateGround && b >= 0x20 && b != 0x7F {
			if b < utf8.RuneSelf {
				p.screen.put(rune(b))
				i++
				continue
			}
			r, size := utf8.DecodeRune(data[i:])
			if r == utf8.RuneError && size <= 1 {
				if !utf8.FullRune(data[i:]) {
					// Partial rune at the end of the chunk; keep it.
					p.partial = append(p.partial, data[i:]...)
					return
				}
				i++ // truly malformed byte
				continue
			}
			p.screen.put(r)
			i += size
			continue
		}
		p.step(b)
		i++
	}
}

func (p *Parser) step(b byte) {
	switch p.state {
	case stateGround:
		p.ground(b)
	case stateEscape:
		p.escape(b)
	case stateCSI:
		p.csi(b)
	case stateOSC:
		if b == 0x07 { // BEL terminates
			p.finishOSC()
			return
		}
		if b == 0x1B {
			p.state = stateOSCEsc
			return
		}
		if len(p.osc) < 4096 {
			p.osc = append(p.osc, b)
		}
	case stateOSCEsc:
		if b == '\\' { // ST
			p.finishOSC()
			return
		}
		// Not a string terminator; restart escape handling.
		p.osc = nil
		p.state = stateEscape
		p.escape(b)
	case stateCharset:
		// G0/G1 designation byte, consumed.
		p.state = stateGround
	}
}

func (p *Parser) ground(b byte) {
	switch b {
	case 0x07: // BEL
	case 0x08:
		p.screen.backspace()
	case 0x09:
		p.screen.tab()
	case 0x0A, 0x0B, 0x0C:
		p.screen.lineFeed()
	case 0x0D:
		p.screen.carriageReturn()
	case 0x1B:
		p.state = stateEscape
	}
}

func (p *Parser) escape(b byte) {
	p.state = stateGround
	switch b {
	case '[':
		p.params = p.params[:0]
		p.curr = curr{}
		p.private = false
		p.state = stateCSI
	case ']':
		p.osc = p.osc[:0]
		p.state = stateOSC
	case '(', ')', '*', '+':
		p.state = stateCharset
	case 'D': // IND
		p.screen.lineFeed()
	case 'E': // NEL
		p.screen.carriageReturnAndFeed()
	case 'M': // RI
		p.screen.reverseLineFeed()
	case '7':
		g := p.screen.grid()
		g.savedRow, g.savedCol = g.curRow, g.curCol
	case '8':
		g := p.screen.grid()
		p.screen.moveCursor(g.savedRow, g.savedCol)
	case 'c': // RIS
		rows, cols := p.screen.Size()
		limit := p.screen.maxScrollback
		*p.screen = *NewScreen(rows, cols, limit)
	case '=', '>': // keypad modes, ignored
	}
}

func (p *Parser) csi(b byte) {
	switch {
	case b >= '0' && b <= '9':
		p.curr.val = p.curr.val*10 + int(b-'0')
		p.curr.hasVal = true
	case b == ';':
		p.pushParam()
	case b == '?':
		p.private = true
	case b >= 0x20 && b <= 0x2F:
		// intermediate bytes; the final dispatch ignores them
	case b >= 0x40 && b <= 0x7E:
		p.pushParam()
		p.dispatchCSI(b)
		p.state = stateGround
	case b == 0x1B:
		p.state = stateEscape
	case b < 0x20:
		p.ground(b) // C0 controls execute inside CSI
	default:
		p.state = stateGround
	}
}

func (p *Parser) pushParam() {
	if p.curr.hasVal {
		p.params = append(p.params, p.curr.val)
	} else {
		p.params = append(p.params, -1)
	}
	p.curr = curr{}
}

// param returns the i-th parameter or def when absent.
func (p *Parser) param(i, def int) int {
	if i >= len(p.params) || p.params[i] < 0 {
		return def
	}
	return p.params[i]
}

func (p *Parser) dispatchCSI(final byte) {
	s := p.screen
	g := s.grid()
	switch final {
	case 'A':
		s.moveCursor(g.curRow-p.param(0, 1), g.curCol)
	case 'B':
		s.moveCursor(g.curRow+p.param(0, 1), g.curCol)
	case 'C':
		s.moveCursor(g.curRow, g.curCol+p.param(0, 1))
	case 'D':
		s.moveCursor(g.curRow, g.curCol-p.param(0, 1))
	case 'E':
		s.moveCursor(g.curRow+p.param(0, 1), 0)
	case 'F':
		s.moveCursor(g.curRow-p.param(0, 1), 0)
	case 'G', '`':
		s.moveCursor(g.curRow, p.param(0, 1)-1)
	case 'H', 'f':
		s.moveCursor(p.param(0, 1)-1, p.param(1, 1)-1)
	case 'd':
		s.moveCursor(p.param(0, 1)-1, g.curCol)
	case 'J':
		s.eraseInDisplay(p.param(0, 0))
	case 'K':
		s.eraseInLine(p.param(0, 0))
	case 'L':
		s.insertLines(p.param(0, 1))
	case 'M':
		s.deleteLines(p.param(0, 1))
	case '@':
		s.insertChars(p.param(0, 1))
	case 'P':
		s.deleteChars(p.param(0, 1))
	case 'X':
		s.eraseChars(p.param(0, 1))
	case 'S':
		s.scrollUp(p.param(0, 1))
	case 'T':
		s.scrollDown(p.param(0, 1))
	case 'r':
		s.setScrollRegion(p.param(0, 1), p.param(1, g.rows))
	case 'h':
		p.setModes(true)
	case 'l':
		p.setModes(false)
	case 'm':
		p.dispatchSGR()
	case 's':
		g.savedRow, g.savedCol = g.curRow, g.curCol
	case 'u':
		s.moveCursor(g.savedRow, g.savedCol)
	}
}

func (p *Parser) setModes(set bool) {
	if !p.private {
		return // ANSI modes (IRM etc.) not needed by the remote shells we host
	}
	for i := range p.params {
		switch p.param(i, 0) {
		case 1:
			p.screen.appCursorKeys = set
		case 25:
			p.screen.cursorHidden = !set
		case 47, 1047:
			if set {
				p.screen.enterAlt()
			} else {
				p.screen.exitAlt()
			}
		case 1049:
			if set {
				g := p.screen.grid()
				g.savedRow, g.savedCol = g.curRow, g.curCol
				p.screen.enterAlt()
			} else {
				p.screen.exitAlt()
				g := p.screen.grid()
				p.screen.moveCursor(g.savedRow, g.savedCol)
			}
		}
		// 2004 bracketed paste, 1000-1006 mouse reporting and the rest are
		// consumed without effect; the host terminal owns those concerns.
	}
}

func (p *Parser) dispatchSGR() {
	s := p.screen
	if len(p.params) == 0 {
		s.style = defaultStyle
		return
	}
	for i := 0; i < len(p.params); i++ {
		switch n := p.param(i, 0); {
		case n == 0:
			s.style = defaultStyle
		case n == 1:
			s.style.Bold = true
		case n == 4:
			s.style.Underline = true
		case n == 7:
			s.style.Reverse = true
		case n == 22:
			s.style.Bold = false
		case n == 24:
			s.style.Underline = false
		case n == 27:
			s.style.Reverse = false
		case n >= 30 && n <= 37:
			s.style.Fg = Color(n - 30)
		case n == 38:
			if c, skip := p.extendedColor(i); skip > 0 {
				s.style.Fg = c
				i += skip
			}
		case n == 39:
			s.style.Fg = ColorDefault
		case n >= 40 && n <= 47:
			s.style.Bg = Color(n - 40)
		case n == 48:
			if c, skip := p.extendedColor(i); skip > 0 {
				s.style.Bg = c
				i += skip
			}
		case n == 49:
			s.style.Bg = ColorDefault
		case n >= 90 && n <= 97:
			s.style.Fg = Color(n - 90 + 8)
		case n >= 100 && n <= 107:
			s.style.Bg = Color(n - 100 + 8)
		}
	}
}

// extendedColor parses 38;5;n / 48;5;n and 38;2;r;g;b forms starting at
// index i; it returns the color and how many parameters were consumed.
func (p *Parser) extendedColor(i int) (Color, int) {
	switch p.param(i+1, -1) {
	case 5:
		n := p.param(i+2, 0)
		if n < 0 || n > 255 {
			n = 0
		}
		return Color(n), 2
	case 2:
		r := p.param(i+2, 0)
		g := p.param(i+3, 0)
		b := p.param(i+4, 0)
		return RGB(uint8(r), uint8(g), uint8(b)), 4
	}
	return ColorDefault, 0
}

func (p *Parser) finishOSC() {
	p.state = stateGround
	// OSC 0/2 set the window title; everything else is dropped.
	data := p.osc
	p.osc = nil
	if len(data) >= 2 && (data[0] == '0' || data[0] == '2') && data[1] == ';' {
		p.screen.title = string(data[2:])
	}
}
