//go:build windows

package winapi

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// M128A matches winnt.h's M128A.
type M128A struct {
	Low  uint64
	High int64
}

// Context matches the amd64 CONTEXT record, 1232 bytes. GetThreadContext
// rejects records that are not 16-byte aligned, so never allocate one
// directly; use NewContext.
type Context struct {
	P1Home uint64
	P2Home uint64
	P3Home uint64
	P4Home uint64
	P5Home uint64
	P6Home uint64

	ContextFlags uint32
	MxCsr        uint32

	SegCs  uint16
	SegDs  uint16
	SegEs  uint16
	SegFs  uint16
	SegGs  uint16
	SegSs  uint16
	EFlags uint32

	Dr0 uint64
	Dr1 uint64
	Dr2 uint64
	Dr3 uint64
	Dr6 uint64
	Dr7 uint64

	Rax uint64
	Rcx uint64
	Rdx uint64
	Rbx uint64
	Rsp uint64
	Rbp uint64
	Rsi uint64
	Rdi uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	Rip uint64

	FltSave [512]byte

	VectorRegister [26]M128A
	VectorControl  uint64

	DebugControl         uint64
	LastBranchToRip      uint64
	LastBranchFromRip    uint64
	LastExceptionToRip   uint64
	LastExceptionFromRip uint64
}

// NewContext returns a 16-byte-aligned Context. The Go allocator only
// guarantees 8-byte alignment, so it is carved out of a padded buffer.
func NewContext() *Context {
	buf := make([]byte, unsafe.Sizeof(Context{})+15)
	return (*Context)(unsafe.Pointer((uintptr(unsafe.Pointer(&buf[0])) + 15) &^ 15))
}

// Thread wraps a thread handle opened with context rights.
type Thread struct {
	ID     uint32
	handle windows.Handle
}

// OpenThread opens tid for context get/set. The caller must Close it on
// every path.
func OpenThread(tid uint32) (*Thread, error) {
	h, err := windows.OpenThread(threadGetContext|threadSetContext|threadQueryInformation, false, tid)
	if err != nil {
		return nil, fmt.Errorf("OpenThread(%d): %v", tid, err)
	}
	return &Thread{ID: tid, handle: h}, nil
}

// GetContext fills ctx with the thread's full register state.
func (t *Thread) GetContext(ctx *Context) error {
	ctx.ContextFlags = contextAll
	r1, _, err := procGetThreadContext.Call(uintptr(t.handle), uintptr(unsafe.Pointer(ctx)))
	if r1 == 0 {
		return fmt.Errorf("GetThreadContext(%d): %v", t.ID, err)
	}
	return nil
}

// SetContext writes ctx back to the thread.
func (t *Thread) SetContext(ctx *Context) error {
	ctx.ContextFlags = contextAll
	r1, _, err := procSetThreadContext.Call(uintptr(t.handle), uintptr(unsafe.Pointer(ctx)))
	if r1 == 0 {
		return fmt.Errorf("SetThreadContext(%d): %v", t.ID, err)
	}
	return nil
}

func (t *Thread) Close() error {
	return windows.CloseHandle(t.handle)
}
