// Package debugger drives one live target: it owns the debug event loop,
// the per-thread stepping state, and the interactive prompt.
package debugger

import "wdbg/memory"

// EventKind tags a debug event.
type EventKind int

const (
	EventException EventKind = iota + 1
	EventCreateThread
	EventCreateProcess
	EventExitThread
	EventExitProcess
	EventLoadDll
	EventUnloadDll
	EventOutputDebugString
	EventRip
)

// Event is one OS debug notification, flattened to the fields the session
// consumes. Only the fields for the event's kind are meaningful.
type Event struct {
	Kind EventKind
	Pid  uint32
	Tid  uint32

	// Exception events.
	ExceptionCode uint32
	ExceptionAddr uint64
	FirstChance   bool

	// CreateProcess and LoadDll events. ImageName may be empty; the module
	// parser falls back to the export directory or a synthesized name.
	ImageBase uint64
	ImageName string

	// ExitThread and ExitProcess events.
	ExitCode uint32

	// OutputDebugString events.
	Text string

	// Rip events.
	RipError uint32
	RipType  uint32
}

// Disposition tells the OS how to continue a reported event.
type Disposition int

const (
	// DispositionContinue marks the event as handled.
	DispositionContinue Disposition = iota
	// DispositionNotHandled passes an exception on to the target's own
	// handlers.
	DispositionNotHandled
)

// Registers is the slice of the amd64 thread context the debugger works
// with: general purpose registers, segments, and the flags word.
type Registers struct {
	Rax, Rbx, Rcx, Rdx uint64
	Rsi, Rdi           uint64
	Rbp, Rsp, Rip      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	EFlags                 uint32
	Cs, Ss, Ds, Es, Fs, Gs uint16
}

// TrapFlag is the single-step bit in EFlags: the processor raises a
// single-step exception after one instruction and clears it again.
const TrapFlag = 1 << 8

// NT status codes the stepping state machine needs. They are stable ABI
// values, identical on every Windows version.
const (
	ExceptionBreakpoint = 0x80000003
	ExceptionSingleStep = 0x80000004
)

var exceptionNames = map[uint32]string{
	0x80000002: "DATATYPE_MISALIGNMENT",
	0x80000003: "BREAKPOINT",
	0x80000004: "SINGLE_STEP",
	0xc0000005: "ACCESS_VIOLATION",
	0xc0000006: "IN_PAGE_ERROR",
	0xc000001d: "ILLEGAL_INSTRUCTION",
	0xc0000025: "NONCONTINUABLE_EXCEPTION",
	0xc000008c: "ARRAY_BOUNDS_EXCEEDED",
	0xc000008e: "FLT_DIVIDE_BY_ZERO",
	0xc0000094: "INT_DIVIDE_BY_ZERO",
	0xc0000096: "PRIV_INSTRUCTION",
	0xc00000fd: "STACK_OVERFLOW",
	0xc0000135: "DLL_NOT_FOUND",
	0xc0000409: "STACK_BUFFER_OVERRUN",
	0xe06d7363: "CPP_EH_EXCEPTION",
}

// ExceptionName returns a friendly name for common NT status codes, or "".
func ExceptionName(code uint32) string {
	return exceptionNames[code]
}

// Target is the OS debugging surface the session runs against. The live
// Windows implementation lives behind a build tag in this package; tests
// script a fake. Reading target memory doubles as the memory.Source the
// module parser and the dump commands use.
type Target interface {
	memory.Source

	// WaitForDebugEvent blocks until the target reports an event.
	WaitForDebugEvent() (Event, error)
	// ContinueDebugEvent releases the thread that reported the pending
	// event. The target only runs between this call and the next wait.
	ContinueDebugEvent(pid, tid uint32, d Disposition) error

	GetRegisters(tid uint32) (*Registers, error)
	SetRegisters(tid uint32, regs *Registers) error

	// Close releases the target's OS resources. It never detaches; a live
	// target dies with its debugger.
	Close() error
}

// Prompt supplies operator input to the interactive loop. A
// *readline.Instance satisfies it.
type Prompt interface {
	SetPrompt(s string)
	Readline() (string, error)
	Close() error
}
