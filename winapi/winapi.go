//go:build windows

// Package winapi is the raw Windows debugging binding: process launch,
// the debug event loop primitives, thread contexts, and target memory.
// Everything thread-affine runs on a pinned worker thread.
package winapi

import "golang.org/x/sys/windows"

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procWaitForDebugEventEx = modkernel32.NewProc("WaitForDebugEventEx")
	procContinueDebugEvent  = modkernel32.NewProc("ContinueDebugEvent")
	procGetThreadContext    = modkernel32.NewProc("GetThreadContext")
	procSetThreadContext    = modkernel32.NewProc("SetThreadContext")
)

// Debug event codes delivered in DebugEvent.Code.
const (
	ExceptionDebugEvent     = 1
	CreateThreadDebugEvent  = 2
	CreateProcessDebugEvent = 3
	ExitThreadDebugEvent    = 4
	ExitProcessDebugEvent   = 5
	LoadDllDebugEvent       = 6
	UnloadDllDebugEvent     = 7
	OutputDebugStringEvent  = 8
	RipEvent                = 9
)

// Continuation statuses for ContinueDebugEvent.
const (
	DbgContinue            = 0x00010002
	DbgExceptionNotHandled = 0x80010001
)

const (
	ExceptionBreakpoint = 0x80000003
	ExceptionSingleStep = 0x80000004
)

const infinite = 0xffffffff

// Thread access rights needed for context manipulation.
const (
	threadGetContext       = 0x0008
	threadSetContext       = 0x0010
	threadQueryInformation = 0x0040
)

// CONTEXT_* flags for the amd64 context record.
const (
	contextControl        = 0x100001
	contextInteger        = 0x100002
	contextSegments       = 0x100004
	contextFloatingPoint  = 0x100008
	contextDebugRegisters = 0x100010

	contextAll = contextControl | contextInteger | contextSegments |
		contextFloatingPoint | contextDebugRegisters
)
