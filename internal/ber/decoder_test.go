package ber

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Round-Trip Tests
// ============================================================================

func TestRoundTrip_Int(t *testing.T) {
	t.Parallel()

	values := []int{
		0, 1, -1, 5, 127, 128, 255, 256, -127, -128, -129, -255, -256,
		300, 65535, 65536, 1 << 23, -(1 << 23),
		math.MaxInt32, math.MinInt32, math.MaxInt32 - 1, math.MinInt32 + 1,
	}

	for _, v := range values {
		e := NewEncoder(0)
		e.WriteInt(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadInt()
		require.NoError(t, err, "value %d", v)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, d.Remaining())
	}
}

func TestRoundTrip_Enumerated(t *testing.T) {
	t.Parallel()

	for _, v := range []int{0, 4, 49, 80, 100, math.MaxInt32} {
		e := NewEncoder(0)
		e.WriteEnumerated(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadEnumerated()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestRoundTrip_Boolean(t *testing.T) {
	t.Parallel()

	for _, v := range []bool{true, false} {
		e := NewEncoder(0)
		e.WriteBoolean(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadBoolean()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestRoundTrip_String_UTF8(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "smith", "ou=people", "dürer 日本"} {
		e := NewEncoder(0)
		e.WriteString(s, true)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadString(true)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestRoundTrip_String_Latin1_FullRange(t *testing.T) {
	t.Parallel()

	// Every Latin-1 code point survives a v2 round trip.
	runes := make([]rune, 0, 256)
	for r := rune(0); r < 256; r++ {
		runes = append(runes, r)
	}
	s := string(runes)

	e := NewEncoder(0)
	e.WriteString(s, false)

	// One byte per rune on the wire.
	assert.Equal(t, 256, len(e.Bytes())-3)

	d := NewDecoder(e.Bytes())
	got, err := d.ReadString(false)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

// ============================================================================
// Decoder Error Tests
// ============================================================================

func TestDecoder_TruncatedInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"tag only", []byte{0x02}},
		{"value overruns buffer", []byte{0x02, 0x05, 0x01}},
		{"long form truncated", []byte{0x02, 0x82, 0x01}},
		{"long form value missing", []byte{0x02, 0x81, 0xC8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.data)
			_, err := d.ReadInt()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnexpectedEOF)
		})
	}
}

func TestDecoder_IndefiniteLength(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x30, 0x80, 0x00, 0x00})
	_, _, err := d.ReadSequence()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndefiniteLength)
}

func TestDecoder_LengthTooWide(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x04, 0x85, 0x01, 0x01, 0x01, 0x01, 0x01, 0x00})
	_, err := d.ReadString(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestDecoder_TagMismatch(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x0A, 0x01, 0x04})
	_, err := d.ReadInt()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTagMismatch)

	var tagErr *TagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, TagInteger, tagErr.Want)
	assert.Equal(t, TagEnumerated, tagErr.Got)
	assert.Equal(t, 0, tagErr.Offset)
}

func TestDecoder_IntegerTooLarge(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x02, 0x05, 0x01, 0x01, 0x01, 0x01, 0x01})
	_, err := d.ReadInt()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegerTooLarge)
}

func TestDecoder_EmptyInteger(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x02, 0x00})
	_, err := d.ReadInt()
	require.Error(t, err)
}

func TestDecoder_BooleanWrongLength(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x01, 0x02, 0xFF, 0xFF})
	_, err := d.ReadBoolean()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

// ============================================================================
// Cursor Tests
// ============================================================================

func TestDecoder_PeekByte(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x87, 0x01, 'x'})
	b, err := d.PeekByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x87), b)
	assert.Equal(t, 0, d.Offset())

	// Peeked tag is then consumed by the tagged string read.
	s, err := d.ReadStringWithTag(0x87, true)
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	_, err = d.PeekByte()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestDecoder_OffsetTracking(t *testing.T) {
	t.Parallel()

	e := NewEncoder(0)
	e.BeginSeq(TagSequence)
	e.WriteInt(1)
	e.WriteString("ab", true)
	e.EndSeq()

	d := NewDecoder(e.Bytes())
	_, n, err := d.ReadSequence()
	require.NoError(t, err)
	assert.Equal(t, 2, d.Offset())

	end := d.Offset() + n
	_, err = d.ReadInt()
	require.NoError(t, err)
	_, err = d.ReadString(true)
	require.NoError(t, err)
	assert.Equal(t, end, d.Offset())
	assert.Equal(t, 0, d.Remaining())
}

func TestDecoder_Discard(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x04, 0x01, 'x', 0x02, 0x01, 0x05})
	tag, n, err := d.ReadSequence()
	require.NoError(t, err)
	assert.Equal(t, TagOctetString, tag)

	// Skip the octet string content, land on the integer.
	require.NoError(t, d.Discard(n))
	v, err := d.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	assert.ErrorIs(t, d.Discard(1), ErrUnexpectedEOF)
	assert.ErrorIs(t, d.Discard(-1), ErrInvalidLength)
}

func TestDecoder_Reset(t *testing.T) {
	t.Parallel()

	d := NewDecoder([]byte{0x02, 0x01, 0x07})
	_, err := d.ReadInt()
	require.NoError(t, err)

	d.Reset([]byte{0x02, 0x01, 0x09})
	assert.Equal(t, 0, d.Offset())
	v, err := d.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestDecoder_UnknownTagPassthrough(t *testing.T) {
	t.Parallel()

	// ReadSequence reports whatever tag is present; dispatch happens
	// above this layer. 0x42 is the unbind operation, zero length.
	d := NewDecoder([]byte{0x42, 0x00})
	tag, n, err := d.ReadSequence()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), tag)
	assert.Equal(t, 0, n)

	var dErr *DecodeError
	_, _, err = d.ReadSequence()
	require.Error(t, err)
	assert.ErrorAs(t, err, &dErr)
}
