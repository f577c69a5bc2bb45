// Package sym turns addresses into names and qualified names into addresses
// using a process's module list.
package sym

import (
	"fmt"
	"strings"

	"wdbg/proc"
)

// NearestSymbol finds the symbol at or below addr in the containing module
// and returns its qualified "module!symbol" name with the symbol's address.
// Export table and symbol store are merged: the store candidate is preferred
// whenever its address is >= the export candidate's, so it also wins exact
// ties. ok is false when no module contains addr or nothing in the module
// precedes it.
func NearestSymbol(p *proc.Process, addr uint64) (name string, base uint64, ok bool) {
	m := p.ModuleContaining(addr)
	if m == nil {
		return "", 0, false
	}

	var (
		found    bool
		bestAddr uint64
		bestName string
	)
	for _, e := range m.Exports {
		if e.IsForwarder || e.Address > addr {
			continue
		}
		if !found || e.Address > bestAddr {
			found = true
			bestAddr = e.Address
			if bestName = e.Name; bestName == "" {
				bestName = fmt.Sprintf("Ordinal%d", e.Ordinal)
			}
		}
	}
	if m.Symbols != nil {
		for _, s := range m.Symbols.PublicFunctionSymbols() {
			rva, ok := m.Symbols.SymbolRVA(&s)
			if !ok {
				continue
			}
			abs := m.Address + uint64(rva)
			if abs > addr {
				continue
			}
			if !found || abs >= bestAddr {
				found = true
				bestAddr = abs
				bestName = s.Name
			}
		}
	}
	if !found {
		return "", 0, false
	}
	return fmt.Sprintf("%s!%s", m.Name, bestName), bestAddr, true
}

// ResolveAddrToName renders addr as "module!symbol" or
// "module!symbol+0x<offset>" using the nearest preceding symbol. The empty
// string means no symbol resolves the address.
func ResolveAddrToName(p *proc.Process, addr uint64) string {
	name, base, ok := NearestSymbol(p, addr)
	if !ok {
		return ""
	}
	if off := addr - base; off != 0 {
		return fmt.Sprintf("%s+0x%x", name, off)
	}
	return name
}

// ResolveNameToAddr maps a "module!function" name to the export's absolute
// address. Bare names are rejected; searching every module for a symbol is
// out of scope. Forwarder exports fail: following the redirect would need
// the target module's table and is not implemented.
func ResolveNameToAddr(p *proc.Process, qualified string) (uint64, error) {
	parts := strings.SplitN(qualified, "!", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected module!symbol, got %q", qualified)
	}
	modName, symName := parts[0], parts[1]

	m := p.FindModule(modName)
	if m == nil {
		return 0, fmt.Errorf("no module %q is loaded", modName)
	}
	for i := range m.Exports {
		e := &m.Exports[i]
		if e.Name != symName {
			continue
		}
		if e.IsForwarder {
			return 0, fmt.Errorf("%s!%s forwards to %s: forwarder resolution is not implemented",
				m.Name, symName, e.Forwarder)
		}
		return e.Address, nil
	}
	return 0, fmt.Errorf("module %q has no export %q", m.Name, symName)
}
