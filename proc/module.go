package proc

import (
	"fmt"

	"wdbg/memory"
	"wdbg/pdb"
)

const (
	dosMagic    = 0x5a4d     // "MZ"
	peSignature = 0x00004550 // "PE\0\0"
	pe32Plus    = 0x20b

	dirExport = 0
	dirDebug  = 6

	debugTypeCodeView = 2
	codeViewRSDS      = 0x53445352 // "RSDS"

	// Image headers are read from a live process and can claim anything;
	// these bound how far we follow them.
	maxDebugDirEntries = 20
	maxExportCount     = 1 << 20
	maxNameString      = 512
)

type dataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type debugDirEntry struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

type exportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// Export is one entry of a module's export table. Address is the absolute
// virtual address of the exported code or data; for forwarders it is zero
// and Forwarder names the "DLL.Symbol" the entry redirects to.
type Export struct {
	Name        string // empty for export-by-ordinal-only entries
	Ordinal     uint32
	Address     uint64
	Forwarder   string
	IsForwarder bool
}

// CodeViewRecord is the RSDS debug record linking an image to its pdb.
type CodeViewRecord struct {
	Signature uint32
	GUID      [16]byte
	Age       uint32
	Path      string
}

// SymbolStore is the part of an opened pdb the resolver consumes.
type SymbolStore interface {
	PublicFunctionSymbols() []pdb.PublicSymbol
	SymbolRVA(*pdb.PublicSymbol) (uint32, bool)
}

// Module is one image mapped into the target.
type Module struct {
	Name    string
	Address uint64
	Size    uint64
	Exports []Export

	CodeView *CodeViewRecord
	Symbols  SymbolStore

	// SymbolsErr records why Symbols is nil despite a CodeView record, or
	// the identity mismatch of a store that was kept anyway. LoadErr
	// records the first non-fatal directory parse failure. Both are
	// informational.
	SymbolsErr error
	LoadErr    error
}

// NewUnparsedModule builds a placeholder for an image whose headers could
// not be read. Its zero Size keeps it out of address lookups, but the name
// stays visible to the user.
func NewUnparsedModule(base uint64, nameHint string) *Module {
	name := nameHint
	if name == "" {
		name = fmt.Sprintf("module_%X", base)
	}
	return &Module{Name: name, Address: base}
}

// ParseModule reads the PE headers of the image mapped at base directly from
// target memory and builds the module model: exports, the CodeView record,
// and, when the referenced pdb exists and matches, its symbol store.
//
// Only the three header magics are hard failures. Directory parse errors are
// recorded in LoadErr and leave the rest of the module usable.
func ParseModule(src memory.Source, base uint64, nameHint string) (*Module, error) {
	magic, err := memory.Read[uint16](src, base)
	if err != nil {
		return nil, fmt.Errorf("reading image header at 0x%x: %v", base, err)
	}
	if magic != dosMagic {
		return nil, fmt.Errorf("no dos magic at 0x%x", base)
	}
	lfanew, err := memory.Read[uint32](src, base+0x3c)
	if err != nil {
		return nil, err
	}
	ntSig, err := memory.Read[uint32](src, base+uint64(lfanew))
	if err != nil {
		return nil, err
	}
	if ntSig != peSignature {
		return nil, fmt.Errorf("no pe signature at 0x%x", base+uint64(lfanew))
	}

	// Optional header follows the 4-byte signature and 20-byte file header.
	opt := base + uint64(lfanew) + 4 + 20
	optMagic, err := memory.Read[uint16](src, opt)
	if err != nil {
		return nil, err
	}
	if optMagic != pe32Plus {
		return nil, fmt.Errorf("image at 0x%x is not pe32+ (optional header magic 0x%x)", base, optMagic)
	}
	sizeOfImage, err := memory.Read[uint32](src, opt+56)
	if err != nil {
		return nil, err
	}

	m := &Module{Address: base, Size: uint64(sizeOfImage)}

	numDirs, err := memory.Read[uint32](src, opt+108)
	if err != nil {
		return nil, err
	}
	if numDirs > 16 {
		numDirs = 16
	}
	dirs, err := memory.ReadArray[dataDirectory](src, opt+112, int(numDirs))
	if err != nil {
		return nil, err
	}

	var dirName string
	if int(dirExport) < len(dirs) && dirs[dirExport].VirtualAddress != 0 {
		dirName, err = m.parseExports(src, dirs[dirExport])
		m.noteLoadErr(err)
	}
	if int(dirDebug) < len(dirs) && dirs[dirDebug].VirtualAddress != 0 {
		m.noteLoadErr(m.parseDebugDirectory(src, dirs[dirDebug]))
	}

	switch {
	case nameHint != "":
		m.Name = nameHint
	case dirName != "":
		m.Name = dirName
	default:
		m.Name = fmt.Sprintf("module_%X", base)
	}

	if m.CodeView != nil {
		m.loadSymbols()
	}
	return m, nil
}

func (m *Module) noteLoadErr(err error) {
	if m.LoadErr == nil {
		m.LoadErr = err
	}
}

// parseExports walks the export directory. Zero slots in the address table
// are skipped; an entry whose target address lands back inside the export
// directory is a forwarder and carries the redirect string instead of an
// address. The returned string is the directory's own module name, used as
// a naming fallback.
func (m *Module) parseExports(src memory.Source, dir dataDirectory) (string, error) {
	edAddr := m.Address + uint64(dir.VirtualAddress)
	edEnd := edAddr + uint64(dir.Size)

	ed, err := memory.Read[exportDirectory](src, edAddr)
	if err != nil {
		return "", fmt.Errorf("export directory: %v", err)
	}
	if ed.NumberOfFunctions > maxExportCount || ed.NumberOfNames > maxExportCount {
		return "", fmt.Errorf("implausible export count %d", ed.NumberOfFunctions)
	}

	funcs, err := memory.ReadArray[uint32](src, m.Address+uint64(ed.AddressOfFunctions), int(ed.NumberOfFunctions))
	if err != nil {
		return "", fmt.Errorf("export address table: %v", err)
	}
	nameRVAs, err := memory.ReadArray[uint32](src, m.Address+uint64(ed.AddressOfNames), int(ed.NumberOfNames))
	if err != nil {
		return "", fmt.Errorf("export name table: %v", err)
	}
	ordinals, err := memory.ReadArray[uint16](src, m.Address+uint64(ed.AddressOfNameOrdinals), int(ed.NumberOfNames))
	if err != nil {
		return "", fmt.Errorf("export ordinal table: %v", err)
	}

	// Several names can point at one slot; the first name wins.
	nameOf := make(map[uint16]uint32, len(ordinals))
	for i, ord := range ordinals {
		if _, ok := nameOf[ord]; !ok {
			nameOf[ord] = nameRVAs[i]
		}
	}

	for i, rva := range funcs {
		if rva == 0 {
			continue
		}
		exp := Export{Ordinal: ed.Base + uint32(i)}
		if nameRVA, ok := nameOf[uint16(i)]; ok {
			exp.Name = memory.ReadString(src, m.Address+uint64(nameRVA), maxNameString)
		}
		abs := m.Address + uint64(rva)
		if abs >= edAddr && abs < edEnd {
			exp.IsForwarder = true
			exp.Forwarder = memory.ReadString(src, abs, int(edEnd-abs))
		} else {
			exp.Address = abs
		}
		m.Exports = append(m.Exports, exp)
	}

	var dirName string
	if ed.Name != 0 {
		dirName = memory.ReadString(src, m.Address+uint64(ed.Name), maxNameString)
	}
	return dirName, nil
}

// parseDebugDirectory records the first CodeView RSDS entry, if any.
func (m *Module) parseDebugDirectory(src memory.Source, dir dataDirectory) error {
	n := int(dir.Size / 28)
	if n > maxDebugDirEntries {
		n = maxDebugDirEntries
	}
	entries, err := memory.ReadArray[debugDirEntry](src, m.Address+uint64(dir.VirtualAddress), n)
	if err != nil {
		return fmt.Errorf("debug directory: %v", err)
	}
	for _, e := range entries {
		if e.Type != debugTypeCodeView || e.AddressOfRawData == 0 || e.SizeOfData < 24 {
			continue
		}
		cvAddr := m.Address + uint64(e.AddressOfRawData)
		sig, err := memory.Read[uint32](src, cvAddr)
		if err != nil || sig != codeViewRSDS {
			continue
		}
		guid, err := memory.Read[[16]byte](src, cvAddr+4)
		if err != nil {
			continue
		}
		age, err := memory.Read[uint32](src, cvAddr+20)
		if err != nil {
			continue
		}
		m.CodeView = &CodeViewRecord{
			Signature: sig,
			GUID:      guid,
			Age:       age,
			Path:      memory.ReadString(src, cvAddr+24, int(e.SizeOfData-24)),
		}
		break
	}
	return nil
}

// loadSymbols opens the pdb named by the CodeView record. An identity
// mismatch against the image is recorded in SymbolsErr but the store is
// still used.
func (m *Module) loadSymbols() {
	store, err := pdb.Open(m.CodeView.Path)
	if err != nil {
		m.SymbolsErr = err
		return
	}
	if store.GUID() != m.CodeView.GUID || store.Age() != m.CodeView.Age {
		m.SymbolsErr = fmt.Errorf("%s does not match the loaded image (guid/age)", m.CodeView.Path)
	}
	m.Symbols = store
}
