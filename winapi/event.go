//go:build windows

package winapi

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// DebugEvent matches the 64-bit DEBUG_EVENT: three dwords, four bytes of
// padding, then a union sized for its largest member (EXCEPTION_DEBUG_INFO,
// 160 bytes). The typed accessors below alias the union in place; a view is
// valid until the event is overwritten by the next wait.
type DebugEvent struct {
	Code      uint32
	ProcessID uint32
	ThreadID  uint32
	_         uint32
	u         [20]uint64
}

// ExceptionRecord matches the 64-bit EXCEPTION_RECORD. Record and Address
// are target-space pointers.
type ExceptionRecord struct {
	Code             uint32
	Flags            uint32
	Record           uint64
	Address          uint64
	NumberParameters uint32
	_                uint32
	Information      [15]uint64
}

type ExceptionDebugInfo struct {
	Record      ExceptionRecord
	FirstChance uint32
}

// CreateProcessDebugInfo carries three handles the debugger owns once the
// event is delivered; File must be closed after use.
type CreateProcessDebugInfo struct {
	File                windows.Handle
	Process             windows.Handle
	Thread              windows.Handle
	BaseOfImage         uint64
	DebugInfoFileOffset uint32
	DebugInfoSize       uint32
	ThreadLocalBase     uint64
	StartAddress        uint64
	ImageName           uint64
	Unicode             uint16
}

type CreateThreadDebugInfo struct {
	Thread          windows.Handle
	ThreadLocalBase uint64
	StartAddress    uint64
}

type ExitThreadDebugInfo struct {
	ExitCode uint32
}

type ExitProcessDebugInfo struct {
	ExitCode uint32
}

// LoadDllDebugInfo's ImageName is a target-space pointer to a pointer to
// the name, and is frequently null or stale; File is usually the better
// naming source and must be closed after use.
type LoadDllDebugInfo struct {
	File                windows.Handle
	BaseOfDll           uint64
	DebugInfoFileOffset uint32
	DebugInfoSize       uint32
	ImageName           uint64
	Unicode             uint16
}

type UnloadDllDebugInfo struct {
	BaseOfDll uint64
}

type OutputDebugStringInfo struct {
	Data    uint64 // target-space pointer to the string
	Unicode uint16
	Length  uint16 // in characters, including the terminator
}

type RipInfo struct {
	Error uint32
	Type  uint32
}

func (e *DebugEvent) Exception() *ExceptionDebugInfo {
	return (*ExceptionDebugInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) CreateProcess() *CreateProcessDebugInfo {
	return (*CreateProcessDebugInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) CreateThread() *CreateThreadDebugInfo {
	return (*CreateThreadDebugInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) ExitThread() *ExitThreadDebugInfo {
	return (*ExitThreadDebugInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) ExitProcess() *ExitProcessDebugInfo {
	return (*ExitProcessDebugInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) LoadDll() *LoadDllDebugInfo {
	return (*LoadDllDebugInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) UnloadDll() *UnloadDllDebugInfo {
	return (*UnloadDllDebugInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) DebugString() *OutputDebugStringInfo {
	return (*OutputDebugStringInfo)(unsafe.Pointer(&e.u[0]))
}

func (e *DebugEvent) Rip() *RipInfo {
	return (*RipInfo)(unsafe.Pointer(&e.u[0]))
}
