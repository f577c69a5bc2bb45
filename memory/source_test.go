package memory

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource exposes one contiguous readable region. Reads outside it
// truncate to the available prefix, matching the Source contract.
type fakeSource struct {
	base uint64
	data []byte
}

func (f *fakeSource) ReadRaw(addr uint64, n int) []byte {
	if n <= 0 || addr < f.base || addr >= f.base+uint64(len(f.data)) {
		return nil
	}
	off := int(addr - f.base)
	end := off + n
	if end > len(f.data) {
		end = len(f.data)
	}
	out := make([]byte, end-off)
	copy(out, f.data[off:end])
	return out
}

func TestReadScalars(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:], 0xdeadbeef)
	binary.LittleEndian.PutUint64(data[4:], 0x1122334455667788)
	src := &fakeSource{base: 0x1000, data: data}

	u32, err := Read[uint32](src, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := Read[uint64](src, 0x1004)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), u64)
}

func TestReadStruct(t *testing.T) {
	type hdr struct {
		Magic uint16
		Count uint16
		Base  uint32
	}
	data := []byte{0x4d, 0x5a, 0x03, 0x00, 0x10, 0x00, 0x00, 0x00}
	src := &fakeSource{base: 0x400000, data: data}

	h, err := Read[hdr](src, 0x400000)
	require.NoError(t, err)
	assert.Equal(t, hdr{Magic: 0x5a4d, Count: 3, Base: 0x10}, h)
}

func TestReadShortFails(t *testing.T) {
	src := &fakeSource{base: 0x1000, data: make([]byte, 6)}

	_, err := Read[uint64](src, 0x1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short read")

	_, err = Read[uint32](src, 0x2000)
	require.Error(t, err)
}

func TestReadArrayExact(t *testing.T) {
	data := make([]byte, 12)
	for i, v := range []uint32{10, 20, 30} {
		binary.LittleEndian.PutUint32(data[i*4:], v)
	}
	src := &fakeSource{base: 0x1000, data: data}

	vals, err := ReadArray[uint32](src, 0x1000, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 20, 30}, vals)

	// One element past the region must fail outright, not shorten.
	_, err = ReadArray[uint32](src, 0x1000, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short read")
}

func TestReadArrayEmpty(t *testing.T) {
	src := &fakeSource{base: 0x1000, data: []byte{1}}
	vals, err := ReadArray[uint16](src, 0x1000, 0)
	require.NoError(t, err)
	assert.Len(t, vals, 0)
}

func TestReadString(t *testing.T) {
	src := &fakeSource{base: 0x1000, data: []byte("ntdll.dll\x00garbage")}
	assert.Equal(t, "ntdll.dll", ReadString(src, 0x1000, 260))

	// No terminator before max: truncated at max.
	assert.Equal(t, "ntdl", ReadString(src, 0x1000, 4))

	// Region ends before a terminator: available prefix only.
	src = &fakeSource{base: 0x1000, data: []byte("abc")}
	assert.Equal(t, "abc", ReadString(src, 0x1000, 260))

	// Nothing readable at all.
	assert.Equal(t, "", ReadString(src, 0x9000, 260))
}

func TestReadWideString(t *testing.T) {
	wide := func(s string) []byte {
		var b []byte
		for _, r := range s {
			b = append(b, byte(r), 0)
		}
		return b
	}

	data := append(wide("kernel32.dll"), 0, 0)
	data = append(data, 0xff, 0xff)
	src := &fakeSource{base: 0x2000, data: data}
	assert.Equal(t, "kernel32.dll", ReadWideString(src, 0x2000, 260))

	// Max shorter than the string.
	assert.Equal(t, "kern", ReadWideString(src, 0x2000, 4))

	// Unterminated region: prefix decode.
	src = &fakeSource{base: 0x2000, data: wide("ab")}
	assert.Equal(t, "ab", ReadWideString(src, 0x2000, 260))
}
