package ber

import "golang.org/x/text/encoding/charmap"

// Encoder builds one BER message in an in-memory buffer. Sequences are
// opened with BeginSeq and closed with EndSeq; lengths are back-patched
// when the sequence closes, so nesting needs no size bookkeeping from
// the caller. Not safe for concurrent use.
type Encoder struct {
	buf []byte
	// marks holds the buffer offset of the one-byte length placeholder
	// for each open sequence, innermost last.
	marks []int
}

// NewEncoder returns an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Reset clears the buffer for the next message, keeping its capacity.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
	e.marks = e.marks[:0]
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Bytes returns the encoded message. It panics if a sequence is still
// open, since emitting it would put a wrong length on the wire.
func (e *Encoder) Bytes() []byte {
	if len(e.marks) != 0 {
		panic("ber: Bytes called with unclosed sequence")
	}
	return e.buf
}

// BeginSeq opens a constructed value with the given tag. The length is
// unknown until EndSeq.
func (e *Encoder) BeginSeq(tag byte) {
	e.buf = append(e.buf, tag)
	e.marks = append(e.marks, len(e.buf))
	e.buf = append(e.buf, 0)
}

// EndSeq closes the innermost open sequence and patches its length.
// Content of 128 bytes or more switches to the long form, shifting the
// tail right to make room for the extra length octets. It panics
// without a matching BeginSeq.
func (e *Encoder) EndSeq() {
	if len(e.marks) == 0 {
		panic("ber: EndSeq without BeginSeq")
	}
	mark := e.marks[len(e.marks)-1]
	e.marks = e.marks[:len(e.marks)-1]

	length := len(e.buf) - mark - 1
	if length <= maxShortFormLength {
		e.buf[mark] = byte(length)
		return
	}

	numOctets := 0
	for v := length; v > 0; v >>= 8 {
		numOctets++
	}
	e.buf = append(e.buf, make([]byte, numOctets)...)
	copy(e.buf[mark+1+numOctets:], e.buf[mark+1:])
	e.buf[mark] = longFormBit | byte(numOctets)
	for i := 0; i < numOctets; i++ {
		e.buf[mark+1+i] = byte(length >> ((numOctets - 1 - i) * 8))
	}
}

// WriteInt writes a universal INTEGER using minimal two's complement.
func (e *Encoder) WriteInt(v int) {
	e.writeIntWithTag(TagInteger, v)
}

// WriteEnumerated writes a universal ENUMERATED.
func (e *Encoder) WriteEnumerated(v int) {
	e.writeIntWithTag(TagEnumerated, v)
}

func (e *Encoder) writeIntWithTag(tag byte, v int) {
	n := 1
	for tmp := v; tmp > 0x7F || tmp < -0x80; tmp >>= 8 {
		n++
	}
	e.buf = append(e.buf, tag, byte(n))
	for i := n - 1; i >= 0; i-- {
		e.buf = append(e.buf, byte(v>>(uint(i)*8)))
	}
}

// WriteBoolean writes a universal BOOLEAN (0xFF for true).
func (e *Encoder) WriteBoolean(v bool) {
	b := byte(0x00)
	if v {
		b = 0xFF
	}
	e.buf = append(e.buf, TagBoolean, 1, b)
}

// WriteString writes an OCTET STRING, encoding the value as UTF-8 or
// ISO-8859-1 per the connection's LDAP version. Runes outside Latin-1
// become '?' in the v2 charset.
func (e *Encoder) WriteString(s string, utf8 bool) {
	e.WriteStringWithTag(TagOctetString, s, utf8)
}

// WriteStringWithTag writes a string value under an arbitrary tag.
func (e *Encoder) WriteStringWithTag(tag byte, s string, utf8 bool) {
	var raw []byte
	if utf8 {
		raw = []byte(s)
	} else {
		raw = encodeLatin1(s)
	}
	e.buf = append(e.buf, tag)
	e.appendLength(len(raw))
	e.buf = append(e.buf, raw...)
}

func (e *Encoder) appendLength(length int) {
	if length <= maxShortFormLength {
		e.buf = append(e.buf, byte(length))
		return
	}
	numOctets := 0
	for v := length; v > 0; v >>= 8 {
		numOctets++
	}
	e.buf = append(e.buf, longFormBit|byte(numOctets))
	for i := numOctets - 1; i >= 0; i-- {
		e.buf = append(e.buf, byte(length>>(uint(i)*8)))
	}
}

func encodeLatin1(s string) []byte {
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = '?'
		}
		raw = append(raw, b)
	}
	return raw
}
