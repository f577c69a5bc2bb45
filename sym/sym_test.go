package sym

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wdbg/pdb"
	"wdbg/proc"
)

type fakeStore struct {
	syms []pdb.PublicSymbol
	rvas map[string]uint32
}

func (f *fakeStore) PublicFunctionSymbols() []pdb.PublicSymbol { return f.syms }

func (f *fakeStore) SymbolRVA(s *pdb.PublicSymbol) (uint32, bool) {
	rva, ok := f.rvas[s.Name]
	return rva, ok
}

func storeAt(names map[string]uint32) *fakeStore {
	f := &fakeStore{rvas: names}
	for n := range names {
		f.syms = append(f.syms, pdb.PublicSymbol{Name: n})
	}
	return f
}

func exportsOnly() *proc.Process {
	p := proc.NewProcess()
	p.AddModule(&proc.Module{
		Name:    "module",
		Address: 0x100,
		Size:    0x10000,
		Exports: []proc.Export{
			{Name: "A", Ordinal: 1, Address: 0x1000},
			{Name: "B", Ordinal: 2, Address: 0x1010},
		},
	})
	return p
}

func TestResolveAddrExports(t *testing.T) {
	p := exportsOnly()

	assert.Equal(t, "module!A+0x5", ResolveAddrToName(p, 0x1005))
	assert.Equal(t, "module!A", ResolveAddrToName(p, 0x1000))
	assert.Equal(t, "module!B", ResolveAddrToName(p, 0x1010))
	assert.Equal(t, "module!B+0x1", ResolveAddrToName(p, 0x1011))

	// Inside the module but before every export: nothing.
	assert.Equal(t, "", ResolveAddrToName(p, 0x100))
	// Outside every module: nothing.
	assert.Equal(t, "", ResolveAddrToName(p, 0x50))
}

func TestResolveAddrStoreTieBreak(t *testing.T) {
	mod := &proc.Module{
		Name:    "module",
		Address: 0x100,
		Size:    0x10000,
		Exports: []proc.Export{
			{Name: "A", Ordinal: 1, Address: 0x1000},
			{Name: "B", Ordinal: 2, Address: 0x1010},
		},
		Symbols: storeAt(map[string]uint32{"C": 0x1008 - 0x100}),
	}
	p := proc.NewProcess()
	p.AddModule(mod)

	// The store symbol sits above the best export: it wins.
	assert.Equal(t, "module!C+0x1", ResolveAddrToName(p, 0x1009))
	// The best export sits above every store symbol: the export wins.
	assert.Equal(t, "module!B", ResolveAddrToName(p, 0x1010))

	// On an exact address tie the store name wins.
	mod.Symbols = storeAt(map[string]uint32{"D": 0x1010 - 0x100})
	assert.Equal(t, "module!D", ResolveAddrToName(p, 0x1010))
}

func TestResolveAddrStoreOnly(t *testing.T) {
	p := proc.NewProcess()
	p.AddModule(&proc.Module{
		Name:    "app",
		Address: 0x400000,
		Size:    0x1000,
		Symbols: storeAt(map[string]uint32{"main": 0x100}),
	})

	assert.Equal(t, "app!main+0x20", ResolveAddrToName(p, 0x400120))
	assert.Equal(t, "", ResolveAddrToName(p, 0x4000ff))
}

func TestResolveAddrSkipsForwardersAndUnmapped(t *testing.T) {
	p := proc.NewProcess()
	p.AddModule(&proc.Module{
		Name:    "module",
		Address: 0x100,
		Size:    0x10000,
		Exports: []proc.Export{
			{Name: "Fwd", Ordinal: 1, Forwarder: "OTHER.Impl", IsForwarder: true},
		},
		Symbols: storeAt(map[string]uint32{}),
	})

	// A forwarder is never an address candidate, and a store symbol whose
	// segment cannot be mapped is skipped.
	p.Modules[0].Symbols.(*fakeStore).syms = []pdb.PublicSymbol{{Name: "ghost"}}
	assert.Equal(t, "", ResolveAddrToName(p, 0x1005))
}

func TestResolveAddrUnnamedExport(t *testing.T) {
	p := proc.NewProcess()
	p.AddModule(&proc.Module{
		Name:    "module",
		Address: 0x100,
		Size:    0x10000,
		Exports: []proc.Export{{Ordinal: 7, Address: 0x1020}},
	})

	assert.Equal(t, "module!Ordinal7+0x1", ResolveAddrToName(p, 0x1021))
}

func TestNearestSymbol(t *testing.T) {
	p := exportsOnly()

	name, base, ok := NearestSymbol(p, 0x1005)
	require.True(t, ok)
	assert.Equal(t, "module!A", name)
	assert.Equal(t, uint64(0x1000), base)

	_, _, ok = NearestSymbol(p, 0x50)
	assert.False(t, ok)
}

func TestResolveNameToAddr(t *testing.T) {
	exports := []proc.Export{
		{Name: "ExitProcess", Ordinal: 1, Address: 0x7ff800001000},
		{Name: "HeapFwd", Ordinal: 2, Forwarder: "ntdll.RtlAllocateHeap", IsForwarder: true},
	}

	// An exact module name and a trimmed path component resolve identically.
	for _, name := range []string{"kernel32", `C:\Windows\System32\KERNEL32.DLL`} {
		p := proc.NewProcess()
		p.AddModule(&proc.Module{Name: name, Exports: exports})

		addr, err := ResolveNameToAddr(p, "kernel32!ExitProcess")
		require.NoError(t, err, "module named %q", name)
		assert.Equal(t, uint64(0x7ff800001000), addr)
	}
}

func TestResolveNameToAddrErrors(t *testing.T) {
	p := proc.NewProcess()
	p.AddModule(&proc.Module{
		Name: "kernel32",
		Exports: []proc.Export{
			{Name: "HeapFwd", Ordinal: 2, Forwarder: "ntdll.RtlAllocateHeap", IsForwarder: true},
		},
	})

	_, err := ResolveNameToAddr(p, "foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module!symbol")

	_, err = ResolveNameToAddr(p, "user32!MessageBoxW")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no module "user32"`)

	_, err = ResolveNameToAddr(p, "kernel32!NoSuchThing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no export "NoSuchThing"`)

	_, err = ResolveNameToAddr(p, "kernel32!HeapFwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not implemented")
}
