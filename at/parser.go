package at

// Sink receives the output of a Parser. All methods are called from the
// goroutine feeding the parser and must not block.
type Sink interface {
	// Event delivers a classified event. line is only set for EventMsg and
	// EventURC and stays valid until the parser swaps back onto the same
	// buffer, two completed lines later.
	Event(ev Event, line []byte)
	// DataAvailable records a socket data notification.
	DataAvailable()
	// NoData records an empty receive reply.
	NoData()
	// SocketClosed records a socket or PDP teardown notification.
	SocketClosed()
	// RecvHeader records an announced binary payload of n bytes and returns
	// the destination registered for it, or nil.
	RecvHeader(n int) []byte
}

// Parser classifies the modem byte stream one byte at a time. It is not
// safe for concurrent use; exactly one goroutine feeds it and callers that
// arm it with Expect must serialize with that goroutine.
type Parser struct {
	sink Sink
	ate  bool

	pending     CmdType
	echoPending bool

	rx     [2][LineSize]byte
	active int
	n      int

	binMode bool
	binDst  []byte
	binPos  int
	binLen  int

	errText   string
	truncated int
}

// NewParser returns a parser delivering to sink. ate tells the parser
// whether the modem echoes commands.
func NewParser(sink Sink, ate bool) *Parser {
	return &Parser{sink: sink, ate: ate}
}

// Reset returns the parser to its just-opened state.
func (p *Parser) Reset(ate bool) {
	p.ate = ate
	p.pending = CmdNone
	p.echoPending = false
	p.active = 0
	p.n = 0
	p.binMode = false
	p.binDst = nil
	p.binPos = 0
	p.binLen = 0
	p.errText = ""
}

// Expect arms the parser for the reply to a command of the given type. It
// must be called before the command's first byte reaches the wire.
func (p *Parser) Expect(cmd CmdType) {
	p.pending = cmd
	p.echoPending = cmd.echoed() && p.ate
}

// ExpectBinaryEcho discards the echo of an n byte raw payload, which the
// modem prefixes with a single space.
func (p *Parser) ExpectBinaryEcho(n int) {
	if !p.ate {
		return
	}
	p.binMode = true
	p.binDst = nil
	p.binPos = 0
	p.binLen = n + 1
}

// Pending returns the command type the parser is waiting on.
func (p *Parser) Pending() CmdType { return p.pending }

// EchoPending reports whether the next line is expected to be an echo.
func (p *Parser) EchoPending() bool { return p.echoPending }

// Binary reports whether the parser is diverting bytes to a payload.
func (p *Parser) Binary() bool { return p.binMode }

// ErrorText returns the explanation captured from the last CME/CMS error.
func (p *Parser) ErrorText() string { return p.errText }

// Truncated returns how many bytes were dropped from over-long lines.
func (p *Parser) Truncated() int { return p.truncated }

// Overflow reports a receiver overrun.
func (p *Parser) Overflow() { p.sink.Event(EventOverflow, nil) }

// Framing reports a framing error or line break.
func (p *Parser) Framing() { p.sink.Event(EventBreak, nil) }

// Noise reports a parity or noise error.
func (p *Parser) Noise() { p.sink.Event(EventNoise, nil) }

// Write feeds every byte of b and never fails.
func (p *Parser) Write(b []byte) (int, error) {
	for _, c := range b {
		p.Feed(c)
	}
	return len(b), nil
}

// Feed consumes one byte from the modem.
func (p *Parser) Feed(c byte) {
	if p.binMode {
		p.feedBinary(c)
		return
	}

	switch c {
	case CR:
		p.endLine()
	case Prompt:
		if p.pending.expectsPrompt() {
			p.sink.Event(EventPrompt, nil)
			p.recycle()
			p.pending = CmdNone
			return
		}
		p.push(c)
	case CtrlZ:
		if p.pending == CmdSMSBody {
			p.sink.Event(EventEcho, nil)
			p.recycle()
			p.echoPending = false
			return
		}
		p.push(c)
	case Comma:
		p.push(c)
		n, ok := RecvLength(p.line())
		if !ok {
			return
		}
		dst := p.sink.RecvHeader(n)
		if n > 0 && dst != nil {
			p.binMode = true
			p.binDst = dst
			p.binPos = 0
			p.binLen = n
		}
		p.recycle()
	case LF:
	default:
		p.push(c)
	}
}

func (p *Parser) feedBinary(c byte) {
	if p.binPos < len(p.binDst) {
		p.binDst[p.binPos] = c
	}
	p.binPos++
	if p.binPos >= p.binLen {
		p.echoPending = false
		p.binMode = false
		p.binDst = nil
		p.recycle()
	}
}

func (p *Parser) endLine() {
	if p.n == 0 {
		return
	}
	line := p.line()

	if p.echoPending {
		p.echoPending = false
		if line[0] == 'A' && p.pending != CmdSMSBody {
			p.recycle()
			p.sink.Event(EventEcho, nil)
			return
		}
		p.sink.Event(EventURC, line)
		p.swap()
		return
	}

	if p.pending == CmdNone {
		p.unsolicited(line)
		return
	}

	p.errText = ""
	if ev := Classify(line); ev != EventNone {
		if ev == EventCMEError || ev == EventCMSError {
			p.errText = ErrorText(line)
		}
		p.sink.Event(ev, nil)
		p.recycle()
		p.pending = CmdNone
		return
	}

	if p.pending == CmdAT || p.pending == CmdSMSBody {
		if IsNoData(line) {
			p.sink.NoData()
		}
		p.sink.Event(EventMsg, line)
		p.swap()
		return
	}
	p.unsolicited(line)
}

// unsolicited routes a line that answers no command.
func (p *Parser) unsolicited(line []byte) {
	switch {
	case IsDataAvailable(line):
		p.sink.DataAvailable()
		p.recycle()
	case IsSocketClosed(line):
		p.sink.SocketClosed()
		p.recycle()
	default:
		p.sink.Event(EventURC, line)
		p.swap()
	}
}

func (p *Parser) line() []byte {
	return p.rx[p.active][:p.n]
}

func (p *Parser) push(c byte) {
	if p.n >= LineSize {
		p.truncated++
		return
	}
	p.rx[p.active][p.n] = c
	p.n++
}

func (p *Parser) recycle() {
	p.n = 0
}

func (p *Parser) swap() {
	p.n = 0
	p.active ^= 1
}
