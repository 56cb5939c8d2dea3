package encode

import (
	"encoding/binary"
	"math"
)

type buffer struct {
	bytes []byte
}

func (b *buffer) writeByte(v byte) {
	b.bytes = append(b.bytes, v)
}

func (b *buffer) write(v []byte) {
	b.bytes = append(b.bytes, v...)
}

// writeU32 writes unsigned LEB128 encoding.
func (b *buffer) writeU32(v uint32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			byt |= 0x80
		}
		b.writeByte(byt)
		if v == 0 {
			break
		}
	}
}

// writeI32 writes signed LEB128 encoding.
func (b *buffer) writeI32(v int32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			b.writeByte(byt)
			break
		}
		b.writeByte(byt | 0x80)
	}
}

// writeI64 writes signed LEB128 encoding.
func (b *buffer) writeI64(v int64) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			b.writeByte(byt)
			break
		}
		b.writeByte(byt | 0x80)
	}
}

func (b *buffer) writeF32(v float32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	b.write(buf)
}

func (b *buffer) writeF64(v float64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	b.write(buf)
}

func (b *buffer) writeString(s string) {
	b.writeU32(uint32(len(s)))
	b.write([]byte(s))
}

func (b *buffer) writeLimits(min uint32, max *uint32) {
	if max != nil {
		b.writeByte(0x01)
		b.writeU32(min)
		b.writeU32(*max)
	} else {
		b.writeByte(0x00)
		b.writeU32(min)
	}
}
