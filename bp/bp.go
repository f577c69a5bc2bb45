// Package bp owns the debugger's breakpoint registry. It knows nothing
// about the target process; it only hands out ids and remembers addresses.
package bp

import (
	"fmt"
	"sort"
)

// MaxBreakpoints bounds the id space: ids are drawn from [0, MaxBreakpoints).
const MaxBreakpoints = 1024

// Breakpoint pairs a registry id with the address it marks.
type Breakpoint struct {
	ID      int
	Address uint64
}

// Manager keeps the registered breakpoints sorted by id.
type Manager struct {
	points []Breakpoint
}

func NewManager() *Manager {
	return &Manager{}
}

// Add registers addr under the lowest free id and returns that id. It fails
// once every id is taken; the registry itself stays usable.
func (m *Manager) Add(addr uint64) (int, error) {
	id := m.lowestFreeID()
	if id < 0 {
		return 0, fmt.Errorf("all %d breakpoint ids are in use", MaxBreakpoints)
	}
	m.points = append(m.points, Breakpoint{ID: id, Address: addr})
	sort.Slice(m.points, func(i, j int) bool { return m.points[i].ID < m.points[j].ID })
	return id, nil
}

// lowestFreeID exploits the sorted invariant: the first index whose id
// differs from the index itself is the lowest gap.
func (m *Manager) lowestFreeID() int {
	for i, b := range m.points {
		if b.ID != i {
			return i
		}
	}
	if len(m.points) < MaxBreakpoints {
		return len(m.points)
	}
	return -1
}

// Remove drops the breakpoint with the given id. Unknown ids are ignored.
func (m *Manager) Remove(id int) {
	for i, b := range m.points {
		if b.ID == id {
			m.points = append(m.points[:i], m.points[i+1:]...)
			return
		}
	}
}

// All returns the breakpoints in id order. The slice is shared with the
// manager; callers must not mutate it.
func (m *Manager) All() []Breakpoint {
	return m.points
}
