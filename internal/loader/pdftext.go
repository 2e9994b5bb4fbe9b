package loader

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// tjSpaceThreshold is the TJ displacement (thousandths of text space) below
// which a word gap is assumed.
const tjSpaceThreshold = -200

type tokenKind int

const (
	tokString tokenKind = iota
	tokNumber
	tokOperator
	tokArrayOpen
	tokArrayClose
	tokArray
	tokOther
)

type token struct {
	kind tokenKind
	str  []byte
	num  float64
	op   string
	arr  []token
}

// ContentText returns the text shown by a decoded PDF content stream.
// Lines follow the text-positioning operators; word gaps inside TJ arrays
// become spaces. Glyphs of fonts with custom encodings (most CID fonts) are
// not mapped back to Unicode and come out as raw bytes.
func ContentText(stream []byte) string {
	var (
		w        textWriter
		operands []token
		array    []token
		inArray  bool
		lastTmY  float64
		haveTm   bool
	)

	lx := &lexer{b: stream}
	for {
		t, ok := lx.next()
		if !ok {
			break
		}

		switch t.kind {
		case tokArrayOpen:
			inArray, array = true, array[:0]
		case tokArrayClose:
			inArray = false
			operands = append(operands, token{kind: tokArray, arr: append([]token(nil), array...)})
		case tokOperator:
			switch t.op {
			case "Tj":
				w.show(lastOf(operands, tokString))
			case "'":
				w.newline()
				w.show(lastOf(operands, tokString))
			case `"`:
				w.newline()
				w.show(lastOf(operands, tokString))
			case "TJ":
				if a := lastOf(operands, tokArray); a != nil {
					for _, e := range a.arr {
						switch {
						case e.kind == tokString:
							w.show(&e)
						case e.kind == tokNumber && e.num < tjSpaceThreshold:
							w.space()
						}
					}
				}
			case "Td", "TD":
				if len(operands) >= 2 && operands[len(operands)-1].num != 0 {
					w.newline()
				} else {
					w.space()
				}
			case "Tm":
				if len(operands) >= 6 {
					y := operands[len(operands)-1].num
					if haveTm && y != lastTmY {
						w.newline()
					} else {
						w.space()
					}
					lastTmY, haveTm = y, true
				}
			case "T*", "ET":
				w.newline()
			case "ID":
				lx.skipInlineImage()
			}
			operands = operands[:0]
		default:
			if inArray {
				array = append(array, t)
			} else {
				operands = append(operands, t)
			}
		}
	}
	return tidy(w.String())
}

// lastOf returns the last operand of kind, or nil.
func lastOf(operands []token, kind tokenKind) *token {
	for i := len(operands) - 1; i >= 0; i-- {
		if operands[i].kind == kind {
			return &operands[i]
		}
	}
	return nil
}

// textWriter accumulates shown text and avoids doubled separators.
type textWriter struct {
	strings.Builder
}

func (w *textWriter) show(t *token) {
	if t == nil || len(t.str) == 0 {
		return
	}
	w.WriteString(decodePDFString(t.str))
}

func (w *textWriter) last() byte {
	s := w.String()
	if s == "" {
		return 0
	}
	return s[len(s)-1]
}

func (w *textWriter) space() {
	if c := w.last(); c != 0 && c != ' ' && c != '\n' {
		w.WriteByte(' ')
	}
}

func (w *textWriter) newline() {
	if c := w.last(); c != 0 && c != '\n' {
		w.WriteByte('\n')
	}
}

// decodePDFString converts string bytes to UTF-8: UTF-16BE when prefixed with
// a byte order mark, UTF-8 when valid, and Latin-1 otherwise.
func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	if utf8.Valid(b) {
		return string(b)
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// tidy trims every line and collapses runs of blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// lexer tokenises a PDF content stream.
type lexer struct {
	b []byte
	i int
}

func isPDFSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) next() (token, bool) {
	for l.i < len(l.b) {
		c := l.b[l.i]
		switch {
		case isPDFSpace(c):
			l.i++
		case c == '%':
			for l.i < len(l.b) && l.b[l.i] != '\n' && l.b[l.i] != '\r' {
				l.i++
			}
		case c == '(':
			l.i++
			return token{kind: tokString, str: l.literal()}, true
		case c == '<':
			if l.i+1 < len(l.b) && l.b[l.i+1] == '<' {
				l.i += 2
				return token{kind: tokOther}, true
			}
			l.i++
			return token{kind: tokString, str: l.hex()}, true
		case c == '>':
			l.i++
			if l.i < len(l.b) && l.b[l.i] == '>' {
				l.i++
			}
			return token{kind: tokOther}, true
		case c == '[':
			l.i++
			return token{kind: tokArrayOpen}, true
		case c == ']':
			l.i++
			return token{kind: tokArrayClose}, true
		case c == '{' || c == '}' || c == ')':
			l.i++
			return token{kind: tokOther}, true
		case c == '/':
			l.i++
			l.regular()
			return token{kind: tokOther}, true
		default:
			word := l.regular()
			if n, err := strconv.ParseFloat(string(word), 64); err == nil {
				return token{kind: tokNumber, num: n}, true
			}
			return token{kind: tokOperator, op: string(word)}, true
		}
	}
	return token{}, false
}

// regular consumes a run of regular characters.
func (l *lexer) regular() []byte {
	start := l.i
	for l.i < len(l.b) && !isPDFSpace(l.b[l.i]) && !isPDFDelim(l.b[l.i]) {
		l.i++
	}
	return l.b[start:l.i]
}

// literal reads a (string) body; the opening parenthesis is already consumed.
func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.i < len(l.b) {
		c := l.b[l.i]
		l.i++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if l.i >= len(l.b) {
				return out
			}
			e := l.b[l.i]
			l.i++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.i < len(l.b) && l.b[l.i] == '\n' {
					l.i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && l.i < len(l.b) && l.b[l.i] >= '0' && l.b[l.i] <= '7'; k++ {
						v = v*8 + int(l.b[l.i]-'0')
						l.i++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// hex reads a <hex string> body; the opening bracket is already consumed.
func (l *lexer) hex() []byte {
	var digits []byte
	for l.i < len(l.b) {
		c := l.b[l.i]
		l.i++
		if c == '>' {
			break
		}
		if _, ok := hexVal(c); ok {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, _ := hexVal(digits[2*i])
		lo, _ := hexVal(digits[2*i+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage advances past inline image data up to and including the
// EI operator.
func (l *lexer) skipInlineImage() {
	rest := l.b[l.i:]
	for off := 0; ; {
		j := bytes.Index(rest[off:], []byte("EI"))
		if j < 0 {
			l.i = len(l.b)
			return
		}
		k := off + j
		before := k == 0 || isPDFSpace(rest[k-1])
		after := k+2 == len(rest) || isPDFSpace(rest[k+2])
		if before && after {
			l.i += k + 2
			return
		}
		off = k + 2
	}
}
