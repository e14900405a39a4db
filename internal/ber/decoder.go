package ber

import "golang.org/x/text/encoding/charmap"

// Decoder reads BER values sequentially from a single message buffer.
// It is not safe for concurrent use; each connection owns its own.
type Decoder struct {
	data   []byte
	offset int
}

// NewDecoder returns a decoder positioned at the start of data. The
// buffer is not copied; callers must not mutate it while decoding.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Reset repoints the decoder at a new buffer, rewinding the cursor.
func (d *Decoder) Reset(data []byte) {
	d.data = data
	d.offset = 0
}

// Offset returns the current cursor position.
func (d *Decoder) Offset() int {
	return d.offset
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.offset
}

// PeekByte returns the next byte without consuming it.
func (d *Decoder) PeekByte() (byte, error) {
	if d.offset >= len(d.data) {
		return 0, decodeErr(d.offset, "cannot peek", ErrUnexpectedEOF)
	}
	return d.data[d.offset], nil
}

// Discard advances the cursor past n content bytes. Used to skip
// values the caller has no interest in decoding.
func (d *Decoder) Discard(n int) error {
	if n < 0 {
		return decodeErr(d.offset, "negative discard", ErrInvalidLength)
	}
	if n > d.Remaining() {
		return decodeErr(d.offset, "cannot discard past end", ErrUnexpectedEOF)
	}
	d.offset += n
	return nil
}

func (d *Decoder) readByte() (byte, error) {
	if d.offset >= len(d.data) {
		return 0, decodeErr(d.offset, "cannot read byte", ErrUnexpectedEOF)
	}
	b := d.data[d.offset]
	d.offset++
	return b, nil
}

// ReadLength reads a short or long form length and verifies the
// announced content fits in the remaining buffer.
func (d *Decoder) ReadLength() (int, error) {
	start := d.offset
	first, err := d.readByte()
	if err != nil {
		return 0, err
	}
	if first&longFormBit == 0 {
		return d.checkLength(start, int(first))
	}
	numOctets := int(first & 0x7F)
	if numOctets == 0 {
		return 0, decodeErr(start, "length", ErrIndefiniteLength)
	}
	if numOctets > maxLengthOctets {
		return 0, decodeErr(start, "length too wide", ErrInvalidLength)
	}
	if d.offset+numOctets > len(d.data) {
		return 0, decodeErr(start, "truncated length", ErrUnexpectedEOF)
	}
	length := 0
	for i := 0; i < numOctets; i++ {
		length = length<<8 | int(d.data[d.offset])
		d.offset++
	}
	if length < 0 {
		return 0, decodeErr(start, "negative length", ErrInvalidLength)
	}
	return d.checkLength(start, length)
}

func (d *Decoder) checkLength(start, length int) (int, error) {
	if length > len(d.data)-d.offset {
		return 0, decodeErr(start, "length overruns buffer", ErrUnexpectedEOF)
	}
	return length, nil
}

// ReadSequence consumes a constructed value header and returns its tag
// and content length. The tag is not validated; the LDAP layer switches
// on it to identify the operation. The cursor is left at the first
// content byte.
func (d *Decoder) ReadSequence() (tag byte, length int, err error) {
	tag, err = d.readByte()
	if err != nil {
		return 0, 0, err
	}
	length, err = d.ReadLength()
	return tag, length, err
}

// ReadInt reads a universal INTEGER.
func (d *Decoder) ReadInt() (int, error) {
	return d.readIntWithTag(TagInteger)
}

// ReadEnumerated reads a universal ENUMERATED.
func (d *Decoder) ReadEnumerated() (int, error) {
	return d.readIntWithTag(TagEnumerated)
}

func (d *Decoder) readIntWithTag(tag byte) (int, error) {
	start := d.offset
	got, err := d.readByte()
	if err != nil {
		return 0, err
	}
	if got != tag {
		return 0, &TagError{Offset: start, Want: tag, Got: got}
	}
	length, err := d.ReadLength()
	if err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, decodeErr(start, "empty integer", ErrInvalidLength)
	}
	if length > maxIntOctets {
		return 0, decodeErr(start, "integer", ErrIntegerTooLarge)
	}
	// Two's complement with sign extension from the first octet.
	v := int64(0)
	if d.data[d.offset]&0x80 != 0 {
		v = -1
	}
	for i := 0; i < length; i++ {
		v = v<<8 | int64(d.data[d.offset])
		d.offset++
	}
	return int(v), nil
}

// ReadBoolean reads a universal BOOLEAN. Any non-zero octet is true.
func (d *Decoder) ReadBoolean() (bool, error) {
	start := d.offset
	got, err := d.readByte()
	if err != nil {
		return false, err
	}
	if got != TagBoolean {
		return false, &TagError{Offset: start, Want: TagBoolean, Got: got}
	}
	length, err := d.ReadLength()
	if err != nil {
		return false, err
	}
	if length != 1 {
		return false, decodeErr(start, "boolean must be one octet", ErrInvalidLength)
	}
	b := d.data[d.offset]
	d.offset++
	return b != 0, nil
}

// ReadString reads an OCTET STRING and decodes it as UTF-8 or
// ISO-8859-1 depending on the negotiated LDAP version.
func (d *Decoder) ReadString(utf8 bool) (string, error) {
	return d.ReadStringWithTag(TagOctetString, utf8)
}

// ReadStringWithTag reads a string value carried under an arbitrary
// tag. LDAP uses this for context-tagged strings such as the simple
// bind password (0x80) and substring components (0x80..0x82).
func (d *Decoder) ReadStringWithTag(tag byte, utf8 bool) (string, error) {
	start := d.offset
	got, err := d.readByte()
	if err != nil {
		return "", err
	}
	if got != tag {
		return "", &TagError{Offset: start, Want: tag, Got: got}
	}
	length, err := d.ReadLength()
	if err != nil {
		return "", err
	}
	raw := d.data[d.offset : d.offset+length]
	d.offset += length
	if utf8 {
		return string(raw), nil
	}
	return decodeLatin1(raw), nil
}

func decodeLatin1(raw []byte) string {
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = charmap.ISO8859_1.DecodeByte(b)
	}
	return string(runes)
}
