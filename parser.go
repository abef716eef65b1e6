package orbitsketch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	sketcherrors "github.com/tamirms/orbitsketch/errors"
)

// readBufferSize is the bufio buffer used when the input is not already buffered.
const readBufferSize = 64 << 10

// Motif is one fully decoded input line.
type Motif struct {
	// Raw is the hashing key "<u>:<v>:<o>:<p>".
	Raw     string
	UPrefix string
	U       uint64
	VPrefix string
	V       uint64
	O       uint32
	P       uint32
}

// Observation is the condensed projection of a line that the pipeline keeps.
type Observation struct {
	NodePair  string // "<u>:<v>"
	Connected byte   // 0 or 1
	OrbitPair string // "<o>:<p>"
}

// Key returns the sketch key "<u>:<v>:<o>:<p>".
func (o Observation) Key() string {
	return o.NodePair + ":" + o.OrbitPair
}

// Parser decodes motif lines of the form
//
//	<flag> <u>:<v> <c> <o>:<p> [<q>:<r> <x>:<y>]
//
// where u and v are node tokens (a prefix followed by a decimal id), c is
// 0 or 1 and o, p are orbit numbers. Tokens after the orbit pair are ignored.
// Blank lines are skipped.
//
// A Parser reuses one line buffer across calls. Each method reads exactly one
// record and returns io.EOF once the input is exhausted. Grammar violations
// are MalformedInput errors and read failures are IOError errors; both
// report the 1-based line number.
type Parser struct {
	r      *bufio.Reader
	line   []byte
	fields [][]byte
	lineNo int

	// orbitPairs interns orbit-pair strings; there are few distinct ones.
	orbitPairs map[string]string
}

// NewParser returns a Parser reading from r.
func NewParser(r io.Reader) *Parser {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, readBufferSize)
	}
	return &Parser{
		r:          br,
		line:       make([]byte, 0, 256),
		fields:     make([][]byte, 0, 8),
		orbitPairs: make(map[string]string),
	}
}

// Line returns the number of the last line read.
func (p *Parser) Line() int { return p.lineNo }

// Motif decodes the next line into a full record.
func (p *Parser) Motif() (Motif, error) {
	if err := p.next(); err != nil {
		return Motif{}, err
	}
	uv, err := p.field(1, "node pair")
	if err != nil {
		return Motif{}, err
	}
	uTok, vTok, err := p.splitPair(uv, "node pair")
	if err != nil {
		return Motif{}, err
	}
	uPrefix, u, err := p.parseNode(uTok)
	if err != nil {
		return Motif{}, err
	}
	vPrefix, v, err := p.parseNode(vTok)
	if err != nil {
		return Motif{}, err
	}
	if _, err := p.connected(); err != nil {
		return Motif{}, err
	}
	oTok, pTok, o, orb, err := p.orbitPair()
	if err != nil {
		return Motif{}, err
	}

	raw := make([]byte, 0, len(uv)+len(oTok)+len(pTok)+2)
	raw = append(raw, uv...)
	raw = append(raw, ':')
	raw = append(raw, oTok...)
	raw = append(raw, ':')
	raw = append(raw, pTok...)

	return Motif{
		Raw:     string(raw),
		UPrefix: uPrefix,
		U:       u,
		VPrefix: vPrefix,
		V:       v,
		O:       o,
		P:       orb,
	}, nil
}

// Observation decodes the next line into its condensed projection. It
// validates the same grammar as Motif.
func (p *Parser) Observation() (Observation, error) {
	if err := p.next(); err != nil {
		return Observation{}, err
	}
	uv, err := p.field(1, "node pair")
	if err != nil {
		return Observation{}, err
	}
	uTok, vTok, err := p.splitPair(uv, "node pair")
	if err != nil {
		return Observation{}, err
	}
	if _, _, err := p.parseNode(uTok); err != nil {
		return Observation{}, err
	}
	if _, _, err := p.parseNode(vTok); err != nil {
		return Observation{}, err
	}
	c, err := p.connected()
	if err != nil {
		return Observation{}, err
	}
	if _, _, _, _, err := p.orbitPair(); err != nil {
		return Observation{}, err
	}

	return Observation{
		NodePair:  string(uv),
		Connected: c,
		OrbitPair: p.internOrbitPair(p.fields[3]),
	}, nil
}

// Raw decodes the next line and returns only its sketch key.
func (p *Parser) Raw() (string, error) {
	obs, err := p.Observation()
	if err != nil {
		return "", err
	}
	return obs.Key(), nil
}

// next reads the next non-blank line into p.line and splits it into p.fields.
func (p *Parser) next() error {
	for {
		p.line = p.line[:0]
		for {
			chunk, err := p.r.ReadSlice('\n')
			p.line = append(p.line, chunk...)
			if err == nil {
				break
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			if errors.Is(err, io.EOF) {
				if len(p.line) == 0 {
					return io.EOF
				}
				// Final line without a trailing newline.
				break
			}
			return sketcherrors.AtLine(sketcherrors.IOError, "read line", p.lineNo+1, err)
		}
		p.lineNo++

		p.fields = p.fields[:0]
		rest := p.line
		for {
			rest = bytes.TrimLeft(rest, " \t\r\n\v\f")
			if len(rest) == 0 {
				break
			}
			end := bytes.IndexAny(rest, " \t\r\n\v\f")
			if end < 0 {
				end = len(rest)
			}
			p.fields = append(p.fields, rest[:end])
			rest = rest[end:]
		}
		if len(p.fields) > 0 {
			return nil
		}
	}
}

func (p *Parser) malformed(op string, format string, args ...any) error {
	return sketcherrors.AtLine(sketcherrors.MalformedInput, op, p.lineNo, fmt.Errorf(format, args...))
}

// field returns token i of the current line.
func (p *Parser) field(i int, what string) ([]byte, error) {
	if i >= len(p.fields) {
		return nil, p.malformed("parse "+what, "missing %s", what)
	}
	return p.fields[i], nil
}

// splitPair splits "a:b" at its only colon.
func (p *Parser) splitPair(tok []byte, what string) (a, b []byte, err error) {
	if bytes.Count(tok, []byte{':'}) != 1 {
		return nil, nil, p.malformed("parse "+what, "%s %q must contain exactly one ':'", what, tok)
	}
	i := bytes.IndexByte(tok, ':')
	return tok[:i], tok[i+1:], nil
}

// parseNode splits a node token at its first digit into a prefix and an id.
func (p *Parser) parseNode(tok []byte) (string, uint64, error) {
	i := bytes.IndexAny(tok, "0123456789")
	if i < 0 {
		return "", 0, p.malformed("parse node", "node %q has no digits", tok)
	}
	id, ok := parseUint(tok[i:], math.MaxUint64)
	if !ok {
		return "", 0, p.malformed("parse node", "node id %q is not a non-negative integer", tok[i:])
	}
	return string(tok[:i]), id, nil
}

// connected validates token 2, which must be exactly "0" or "1".
func (p *Parser) connected() (byte, error) {
	tok, err := p.field(2, "connectivity")
	if err != nil {
		return 0, err
	}
	if len(tok) != 1 || (tok[0] != '0' && tok[0] != '1') {
		return 0, p.malformed("parse connectivity", "connectivity %q must be 0 or 1", tok)
	}
	return tok[0] - '0', nil
}

// orbitPair validates token 3 as "<o>:<p>".
func (p *Parser) orbitPair() (oTok, pTok []byte, o, orb uint32, err error) {
	tok, err := p.field(3, "orbit pair")
	if err != nil {
		return nil, nil, 0, 0, err
	}
	oTok, pTok, err = p.splitPair(tok, "orbit pair")
	if err != nil {
		return nil, nil, 0, 0, err
	}
	ov, ok := parseUint(oTok, math.MaxUint32)
	if !ok {
		return nil, nil, 0, 0, p.malformed("parse orbit pair", "orbit %q is not a non-negative integer", oTok)
	}
	pv, ok := parseUint(pTok, math.MaxUint32)
	if !ok {
		return nil, nil, 0, 0, p.malformed("parse orbit pair", "orbit %q is not a non-negative integer", pTok)
	}
	return oTok, pTok, uint32(ov), uint32(pv), nil
}

func (p *Parser) internOrbitPair(tok []byte) string {
	if s, ok := p.orbitPairs[string(tok)]; ok {
		return s
	}
	s := string(tok)
	p.orbitPairs[s] = s
	return s
}

// parseUint parses a non-empty run of ASCII digits no greater than limit.
func parseUint(b []byte, limit uint64) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		d := uint64(c - '0')
		if n > (limit-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}

// LenientParser wraps a Parser and skips lines with MalformedInput errors
// instead of failing. IOError errors still end the stream.
type LenientParser struct {
	p       *Parser
	onSkip  func(error)
	skipped int
}

// Lenient returns a LenientParser over p. onSkip, if non-nil, receives every
// skipped line's error.
func Lenient(p *Parser, onSkip func(error)) *LenientParser {
	return &LenientParser{p: p, onSkip: onSkip}
}

// Observation returns the next well-formed observation.
func (l *LenientParser) Observation() (Observation, error) {
	for {
		obs, err := l.p.Observation()
		if err == nil || !errors.Is(err, sketcherrors.ErrMalformedInput) {
			return obs, err
		}
		l.skip(err)
	}
}

// Motif returns the next well-formed motif.
func (l *LenientParser) Motif() (Motif, error) {
	for {
		m, err := l.p.Motif()
		if err == nil || !errors.Is(err, sketcherrors.ErrMalformedInput) {
			return m, err
		}
		l.skip(err)
	}
}

func (l *LenientParser) skip(err error) {
	l.skipped++
	if l.onSkip != nil {
		l.onSkip(err)
	}
}

// Skipped returns the number of lines skipped so far.
func (l *LenientParser) Skipped() int { return l.skipped }
