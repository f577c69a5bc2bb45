// Package pdb reads program databases just far enough to serve a debugger:
// open a file, list its public function symbols, and map their
// segment:offset addresses to image-relative addresses.
package pdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// MSF 7.00 container magic, the first 32 bytes of every modern pdb.
var msfMagic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

const (
	streamPdbInfo = 1
	streamDbi     = 3

	symPub32      = 0x110e // S_PUB32
	pubIsFunction = 0x2    // cvpsf_function

	// Slot of the section header stream in the DBI optional debug header.
	optDbgSectionHdr = 5

	invalidStream16 = 0xffff
	maxDirectory    = 64 << 20
)

type superBlock struct {
	BlockSize         uint32
	FreeBlockMapBlock uint32
	NumBlocks         uint32
	NumDirectoryBytes uint32
	Unknown           uint32
	BlockMapAddr      uint32
}

type infoStreamHeader struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte
}

type dbiHeader struct {
	VersionSignature        int32
	VersionHeader           uint32
	Age                     uint32
	GlobalStreamIndex       uint16
	BuildNumber             uint16
	PublicStreamIndex       uint16
	PdbDllVersion           uint16
	SymRecordStream         uint16
	PdbDllRbld              uint16
	ModInfoSize             int32
	SectionContributionSize int32
	SectionMapSize          int32
	SourceInfoSize          int32
	TypeServerMapSize       int32
	MFCTypeServerIndex      uint32
	OptionalDbgHeaderSize   int32
	ECSubstreamSize         int32
	Flags                   uint16
	Machine                 uint16
	Padding                 uint32
}

// SectionHeader mirrors IMAGE_SECTION_HEADER as stored in the section header
// debug stream; only VirtualAddress matters for address mapping.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// PublicSymbol is one S_PUB32 record carrying the function flag.
type PublicSymbol struct {
	Name    string
	Segment uint16
	Offset  uint32
}

// File is an opened symbol store. Open parses everything eagerly and
// releases the underlying file, so a File never holds an fd.
type File struct {
	signature uint32
	age       uint32
	guid      [16]byte
	sections  []SectionHeader
	publics   []PublicSymbol
}

// Open reads the store at path. The error distinguishes a missing file from
// a malformed one only through its message; callers treat both as "no
// symbols for this module".
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := openMSF(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}

	out := &File{}
	if info, err := m.readStream(streamPdbInfo); err == nil && len(info) >= 28 {
		var h infoStreamHeader
		if binary.Read(bytes.NewReader(info), binary.LittleEndian, &h) == nil {
			out.signature = h.Signature
			out.age = h.Age
			out.guid = h.GUID
		}
	}

	dbi, err := m.readStream(streamDbi)
	if err != nil || len(dbi) < 64 {
		// A pdb without a usable DBI stream has nothing to offer the
		// resolver; treat it as an empty store rather than a failure.
		return out, nil
	}
	var h dbiHeader
	if err := binary.Read(bytes.NewReader(dbi), binary.LittleEndian, &h); err != nil {
		return out, nil
	}

	out.sections = m.sectionHeaders(dbi, &h)
	out.publics = m.publicFunctions(&h)
	return out, nil
}

// PublicFunctionSymbols returns every S_PUB32 record with the function flag,
// in record-stream order.
func (f *File) PublicFunctionSymbols() []PublicSymbol { return f.publics }

// SymbolRVA converts a public symbol's segment:offset to an image-relative
// address using the store's section headers.
func (f *File) SymbolRVA(s *PublicSymbol) (uint32, bool) {
	if s.Segment == 0 || int(s.Segment) > len(f.sections) {
		return 0, false
	}
	return f.sections[s.Segment-1].VirtualAddress + s.Offset, true
}

// GUID and Age identify the build this store matches; debuggers compare them
// against the image's CodeView record.
func (f *File) GUID() [16]byte { return f.guid }
func (f *File) Age() uint32    { return f.age }

type msfStream struct {
	size   uint32
	blocks []uint32
}

type msfFile struct {
	f         *os.File
	blockSize uint32
	numBlocks uint32
	streams   []msfStream
}

func openMSF(f *os.File) (*msfFile, error) {
	hdr := make([]byte, len(msfMagic)+24)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("bad msf header: %v", err)
	}
	if !bytes.Equal(hdr[:len(msfMagic)], msfMagic) {
		return nil, fmt.Errorf("bad msf magic")
	}
	var sb superBlock
	if err := binary.Read(bytes.NewReader(hdr[len(msfMagic):]), binary.LittleEndian, &sb); err != nil {
		return nil, err
	}
	if sb.BlockSize == 0 || sb.BlockSize%512 != 0 || sb.BlockSize > 0x10000 {
		return nil, fmt.Errorf("unsupported block size %d", sb.BlockSize)
	}
	if sb.NumDirectoryBytes == 0 || sb.NumDirectoryBytes > maxDirectory {
		return nil, fmt.Errorf("implausible directory size %d", sb.NumDirectoryBytes)
	}

	m := &msfFile{f: f, blockSize: sb.BlockSize, numBlocks: sb.NumBlocks}

	// The block map lists the blocks holding the stream directory.
	dirBlockCount := ceilDiv(sb.NumDirectoryBytes, sb.BlockSize)
	raw := make([]byte, dirBlockCount*4)
	if _, err := f.ReadAt(raw, int64(sb.BlockMapAddr)*int64(sb.BlockSize)); err != nil {
		return nil, fmt.Errorf("directory block map: %v", err)
	}
	dirBlocks := make([]uint32, dirBlockCount)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, dirBlocks); err != nil {
		return nil, err
	}

	dir, err := m.readBlocks(dirBlocks, sb.NumDirectoryBytes)
	if err != nil {
		return nil, fmt.Errorf("stream directory: %v", err)
	}
	if err := m.parseDirectory(dir); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *msfFile) parseDirectory(dir []byte) error {
	r := bytes.NewReader(dir)
	var numStreams uint32
	if err := binary.Read(r, binary.LittleEndian, &numStreams); err != nil {
		return fmt.Errorf("stream directory: %v", err)
	}
	if numStreams > 0xffff {
		return fmt.Errorf("implausible stream count %d", numStreams)
	}
	sizes := make([]uint32, numStreams)
	if err := binary.Read(r, binary.LittleEndian, sizes); err != nil {
		return fmt.Errorf("stream sizes: %v", err)
	}
	m.streams = make([]msfStream, numStreams)
	for i, sz := range sizes {
		if sz == 0xffffffff { // deleted stream marker
			sz = 0
		}
		blocks := make([]uint32, ceilDiv(sz, m.blockSize))
		if err := binary.Read(r, binary.LittleEndian, blocks); err != nil {
			return fmt.Errorf("stream %d block list: %v", i, err)
		}
		m.streams[i] = msfStream{size: sz, blocks: blocks}
	}
	return nil
}

func (m *msfFile) readBlocks(blocks []uint32, size uint32) ([]byte, error) {
	out := make([]byte, 0, uint32(len(blocks))*m.blockSize)
	buf := make([]byte, m.blockSize)
	for _, b := range blocks {
		if b >= m.numBlocks {
			return nil, fmt.Errorf("block %d out of range", b)
		}
		if _, err := m.f.ReadAt(buf, int64(b)*int64(m.blockSize)); err != nil {
			return nil, fmt.Errorf("block %d: %v", b, err)
		}
		out = append(out, buf...)
	}
	return out[:size], nil
}

func (m *msfFile) readStream(i int) ([]byte, error) {
	if i < 0 || i >= len(m.streams) {
		return nil, fmt.Errorf("no stream %d", i)
	}
	s := m.streams[i]
	return m.readBlocks(s.blocks, s.size)
}

// sectionHeaders locates the section header stream through the optional
// debug header substream at the tail of the DBI stream.
func (m *msfFile) sectionHeaders(dbi []byte, h *dbiHeader) []SectionHeader {
	off := 64
	for _, sz := range []int32{
		h.ModInfoSize, h.SectionContributionSize, h.SectionMapSize,
		h.SourceInfoSize, h.TypeServerMapSize, h.ECSubstreamSize,
	} {
		if sz < 0 {
			return nil
		}
		off += int(sz)
	}
	if h.OptionalDbgHeaderSize < 0 || off+int(h.OptionalDbgHeaderSize) > len(dbi) {
		return nil
	}
	slots := make([]uint16, h.OptionalDbgHeaderSize/2)
	if binary.Read(bytes.NewReader(dbi[off:off+int(h.OptionalDbgHeaderSize)]), binary.LittleEndian, slots) != nil {
		return nil
	}
	if len(slots) <= optDbgSectionHdr || slots[optDbgSectionHdr] == invalidStream16 {
		return nil
	}
	raw, err := m.readStream(int(slots[optDbgSectionHdr]))
	if err != nil {
		return nil
	}
	sections := make([]SectionHeader, len(raw)/40)
	if binary.Read(bytes.NewReader(raw), binary.LittleEndian, sections) != nil {
		return nil
	}
	return sections
}

func (m *msfFile) publicFunctions(h *dbiHeader) []PublicSymbol {
	if h.SymRecordStream == invalidStream16 {
		return nil
	}
	rec, err := m.readStream(int(h.SymRecordStream))
	if err != nil {
		return nil
	}

	var out []PublicSymbol
	for pos := 0; pos+4 <= len(rec); {
		reclen := int(binary.LittleEndian.Uint16(rec[pos:]))
		kind := binary.LittleEndian.Uint16(rec[pos+2:])
		end := pos + 2 + reclen
		if reclen < 2 || end > len(rec) {
			break
		}
		// S_PUB32 payload: u32 flags, u32 offset, u16 segment, name.
		if kind == symPub32 && end-pos >= 14 {
			flags := binary.LittleEndian.Uint32(rec[pos+4:])
			if flags&pubIsFunction != 0 {
				out = append(out, PublicSymbol{
					Name:    cstr(rec[pos+14 : end]),
					Segment: binary.LittleEndian.Uint16(rec[pos+12:]),
					Offset:  binary.LittleEndian.Uint32(rec[pos+8:]),
				})
			}
		}
		pos = end
	}
	return out
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}
