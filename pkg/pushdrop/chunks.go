package pushdrop

import (
	"encoding/binary"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
)

// Chunk is one opcode of a script together with the data it pushes, if any.
type Chunk struct {
	Op   byte
	Data []byte
}

// MinimalPush returns the shortest script encoding that pushes data.
//
//   - empty or 0x00     -> OP_0
//   - 0x01..0x10        -> OP_1..OP_16
//   - 0x81              -> OP_1NEGATE
//   - up to 75 bytes    -> direct push
//   - up to 255 bytes   -> OP_PUSHDATA1
//   - up to 65535 bytes -> OP_PUSHDATA2
//   - otherwise         -> OP_PUSHDATA4
func MinimalPush(data []byte) []byte {
	if len(data) == 0 || (len(data) == 1 && data[0] == 0) {
		return []byte{script.Op0}
	}
	if len(data) == 1 {
		switch {
		case data[0] >= 1 && data[0] <= 16:
			return []byte{script.Op1 + data[0] - 1}
		case data[0] == 0x81:
			return []byte{script.Op1NEGATE}
		}
	}

	n := len(data)
	var out []byte
	switch {
	case n <= 75:
		out = make([]byte, 0, 1+n)
		out = append(out, byte(n))
	case n <= 0xff:
		out = make([]byte, 0, 2+n)
		out = append(out, script.OpPUSHDATA1, byte(n))
	case n <= 0xffff:
		out = make([]byte, 0, 3+n)
		out = append(out, script.OpPUSHDATA2)
		out = binary.LittleEndian.AppendUint16(out, uint16(n))
	default:
		out = make([]byte, 0, 5+n)
		out = append(out, script.OpPUSHDATA4)
		out = binary.LittleEndian.AppendUint32(out, uint32(n))
	}
	return append(out, data...)
}

// ReadChunk reads the chunk starting at pos and returns it with the position of the next one.
func ReadChunk(b []byte, pos int) (Chunk, int, error) {
	if pos >= len(b) {
		return Chunk{}, pos, fmt.Errorf("%w: read past end at %d", ErrMalformedScript, pos)
	}
	op := b[pos]
	pos++

	var size int
	switch {
	case op >= 1 && op <= 75:
		size = int(op)
	case op == script.OpPUSHDATA1:
		if pos+1 > len(b) {
			return Chunk{}, pos, fmt.Errorf("%w: truncated OP_PUSHDATA1 length", ErrMalformedScript)
		}
		size = int(b[pos])
		pos++
	case op == script.OpPUSHDATA2:
		if pos+2 > len(b) {
			return Chunk{}, pos, fmt.Errorf("%w: truncated OP_PUSHDATA2 length", ErrMalformedScript)
		}
		size = int(binary.LittleEndian.Uint16(b[pos:]))
		pos += 2
	case op == script.OpPUSHDATA4:
		if pos+4 > len(b) {
			return Chunk{}, pos, fmt.Errorf("%w: truncated OP_PUSHDATA4 length", ErrMalformedScript)
		}
		size = int(binary.LittleEndian.Uint32(b[pos:]))
		pos += 4
	default:
		return Chunk{Op: op}, pos, nil
	}

	if size < 0 || pos+size > len(b) {
		return Chunk{}, pos, fmt.Errorf("%w: push of %d bytes exceeds script length", ErrMalformedScript, size)
	}
	data := make([]byte, size)
	copy(data, b[pos:pos+size])
	return Chunk{Op: op, Data: data}, pos + size, nil
}

// ParseChunks splits a script into chunks.
func ParseChunks(b []byte) ([]Chunk, error) {
	var chunks []Chunk
	for pos := 0; pos < len(b); {
		c, next, err := ReadChunk(b, pos)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
		pos = next
	}
	return chunks, nil
}

// Field returns the bytes the chunk contributes as a pushdrop field. Small-integer opcodes
// map back to the single byte MinimalPush replaced them with.
func (c Chunk) Field() ([]byte, error) {
	switch {
	case c.Op == script.Op0:
		return []byte{0}, nil
	case c.Op >= script.Op1 && c.Op <= script.Op16:
		return []byte{c.Op - script.Op1 + 1}, nil
	case c.Op == script.Op1NEGATE:
		return []byte{0x81}, nil
	case c.Op <= script.OpPUSHDATA4:
		return c.Data, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnexpectedOpcode, c.Op)
	}
}
