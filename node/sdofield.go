package node

import "encoding/binary"

// Direction of a single SDO transaction.
type Direction int

const (
	DirectionInvalid Direction = iota
	DirectionRead
	DirectionWrite
)

// MaxDescriptionLength bounds the human-readable diagnostic description
// carried on every field, matching SDOField.h's MAX_DESC_LENGTH.
const MaxDescriptionLength = 31

// ReadCallback receives a field once its read has completed and the
// transport's bytes have been copied into it.
type ReadCallback func(field *SDOField)

// SDOField describes one elementary SDO transaction: a direction, an
// object-dictionary index/sub-index, an inline byte payload of up to 8
// bytes, and — for reads — an optional completion handler. Modelled
// directly on SDOField.h/.cpp from the original EPOSControl source.
type SDOField struct {
	Direction   Direction
	Description string
	Index       uint16
	SubIndex    uint8
	Data        [8]byte
	Length      int

	ReadCallback ReadCallback
	UserData     any
}

func newField(direction Direction, description string, index uint16, subIndex uint8) SDOField {
	if len(description) > MaxDescriptionLength {
		description = description[:MaxDescriptionLength]
	}
	return SDOField{Direction: direction, Description: description, Index: index, SubIndex: subIndex}
}

// NewRead builds a read field. Length is filled in by the transport on
// completion; callback receives the field once that happens.
func NewRead(description string, index uint16, subIndex uint8, callback ReadCallback) SDOField {
	field := newField(DirectionRead, description, index, subIndex)
	field.ReadCallback = callback
	return field
}

// WriteU8 builds a write field carrying a single unsigned byte.
func WriteU8(description string, index uint16, subIndex uint8, value uint8) SDOField {
	field := newField(DirectionWrite, description, index, subIndex)
	field.SetU8(value)
	return field
}

// WriteU16 builds a write field carrying a little-endian uint16.
func WriteU16(description string, index uint16, subIndex uint8, value uint16) SDOField {
	field := newField(DirectionWrite, description, index, subIndex)
	field.SetU16(value)
	return field
}

// WriteU32 builds a write field carrying a little-endian uint32.
func WriteU32(description string, index uint16, subIndex uint8, value uint32) SDOField {
	field := newField(DirectionWrite, description, index, subIndex)
	field.SetU32(value)
	return field
}

// WriteS32 builds a write field carrying a little-endian int32.
func WriteS32(description string, index uint16, subIndex uint8, value int32) SDOField {
	field := newField(DirectionWrite, description, index, subIndex)
	field.SetS32(value)
	return field
}

func (f *SDOField) SetU8(value uint8) {
	f.Data[0] = value
	f.Length = 1
}

func (f *SDOField) SetU16(value uint16) {
	binary.LittleEndian.PutUint16(f.Data[:2], value)
	f.Length = 2
}

func (f *SDOField) SetU32(value uint32) {
	binary.LittleEndian.PutUint32(f.Data[:4], value)
	f.Length = 4
}

func (f *SDOField) SetS32(value int32) {
	f.SetU32(uint32(value))
}

func (f *SDOField) U16() uint16 {
	return binary.LittleEndian.Uint16(f.Data[:2])
}

func (f *SDOField) S32() int32 {
	return int32(binary.LittleEndian.Uint32(f.Data[:4]))
}

// CopyBytes copies up to len(f.Data) bytes from a completed transport read
// into the field's buffer and records the actual length delivered.
func (f *SDOField) CopyBytes(data []byte) {
	n := copy(f.Data[:], data)
	f.Length = n
}
