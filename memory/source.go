package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Source is the one capability the debugger needs from a target: read bytes
// at an address. Implementations return the available prefix on any failure,
// possibly empty, never an error. Callers that need an exact count check the
// length themselves or use ReadArray.
type Source interface {
	ReadRaw(addr uint64, n int) []byte
}

// Read decodes one little-endian value of type T at addr. T must have a
// fixed binary size.
func Read[T any](src Source, addr uint64) (T, error) {
	var v T
	n := binary.Size(v)
	if n < 0 {
		return v, fmt.Errorf("read at 0x%x: type has no fixed size", addr)
	}
	raw := src.ReadRaw(addr, n)
	if len(raw) < n {
		return v, fmt.Errorf("short read at 0x%x: %d of %d bytes", addr, len(raw), n)
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &v); err != nil {
		return v, err
	}
	return v, nil
}

// ReadArray decodes count little-endian values of type T starting at addr.
// The read must be complete: a truncated array is an error, not a shorter
// slice.
func ReadArray[T any](src Source, addr uint64, count int) ([]T, error) {
	var zero T
	sz := binary.Size(zero)
	if sz < 0 {
		return nil, fmt.Errorf("read at 0x%x: type has no fixed size", addr)
	}
	if count < 0 {
		return nil, fmt.Errorf("read at 0x%x: negative element count %d", addr, count)
	}
	total := sz * count
	raw := src.ReadRaw(addr, total)
	if len(raw) < total {
		return nil, fmt.Errorf("short read at 0x%x: %d of %d bytes", addr, len(raw), total)
	}
	out := make([]T, count)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadString reads a NUL-terminated byte string at addr, at most max bytes.
// Unreadable memory terminates the string at the available prefix.
func ReadString(src Source, addr uint64, max int) string {
	const chunk = 256
	var b []byte
	for len(b) < max {
		n := chunk
		if rem := max - len(b); rem < n {
			n = rem
		}
		raw := src.ReadRaw(addr+uint64(len(b)), n)
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			return string(append(b, raw[:i]...))
		}
		b = append(b, raw...)
		if len(raw) < n {
			break
		}
	}
	return string(b)
}

// ReadWideString reads a NUL-terminated UTF-16LE string at addr, at most max
// character units, with the same prefix tolerance as ReadString.
func ReadWideString(src Source, addr uint64, max int) string {
	const chunk = 128
	var b []byte
	for len(b)/2 < max {
		n := chunk
		if rem := max - len(b)/2; rem < n {
			n = rem
		}
		raw := src.ReadRaw(addr+uint64(len(b)), n*2)
		raw = raw[:len(raw)&^1]
		for i := 0; i+1 < len(raw); i += 2 {
			if raw[i] == 0 && raw[i+1] == 0 {
				return decodeUTF16(append(b, raw[:i]...))
			}
		}
		b = append(b, raw...)
		if len(raw) < n*2 {
			break
		}
	}
	return decodeUTF16(b)
}

func decodeUTF16(b []byte) string {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}
