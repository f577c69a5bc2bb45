// Package proc models the debugged process: the modules mapped into it,
// the threads alive in it, and the symbols each module brings along.
package proc

import "strings"

// Process is the debugger's model of the target: modules in load order plus
// the set of live thread ids. It is only ever touched from the event loop.
// Per-thread stepping state lives with the session, not here.
type Process struct {
	Modules []*Module
	Threads map[uint32]struct{}
}

func NewProcess() *Process {
	return &Process{Threads: make(map[uint32]struct{})}
}

func (p *Process) AddModule(m *Module) {
	p.Modules = append(p.Modules, m)
}

// ModuleContaining returns the module whose image range covers addr, or nil.
func (p *Process) ModuleContaining(addr uint64) *Module {
	for _, m := range p.Modules {
		if addr >= m.Address && addr < m.Address+m.Size {
			return m
		}
	}
	return nil
}

// FindModule resolves a user-typed module name. An exact match on the
// recorded name wins over everything; failing that, the final path component
// is compared case-insensitively, both with and without its extension, and
// the first such match is returned.
func (p *Process) FindModule(name string) *Module {
	for _, m := range p.Modules {
		if m.Name == name {
			return m
		}
	}
	for _, m := range p.Modules {
		base := m.Name
		if i := strings.LastIndexByte(base, '\\'); i >= 0 {
			base = base[i+1:]
		}
		if strings.EqualFold(base, name) {
			return m
		}
		if i := strings.LastIndexByte(base, '.'); i >= 0 && strings.EqualFold(base[:i], name) {
			return m
		}
	}
	return nil
}

// AddThread records a thread id reported live by the target. It returns
// false when the id is already present, which callers treat as a debug
// protocol violation.
func (p *Process) AddThread(tid uint32) bool {
	if _, ok := p.Threads[tid]; ok {
		return false
	}
	p.Threads[tid] = struct{}{}
	return true
}

// RemoveThread forgets an exited thread. It reports whether the id was live.
func (p *Process) RemoveThread(tid uint32) bool {
	if _, ok := p.Threads[tid]; !ok {
		return false
	}
	delete(p.Threads, tid)
	return true
}
