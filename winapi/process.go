//go:build windows

package winapi

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Process is a debuggee launched by this package. Every thread-affine debug
// call is forwarded to the worker thread that created the process.
type Process struct {
	PID    uint32
	handle windows.Handle
	worker *debugThread
}

// Launch starts argv under the debugger with its own console. Only this
// process's events are delivered; children run free.
func Launch(argv []string) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	w := newDebugThread()
	p, err := runOn(w, func() (*Process, error) {
		cmdline, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(argv))
		if err != nil {
			return nil, err
		}
		var si windows.StartupInfo
		si.Cb = uint32(unsafe.Sizeof(si))
		var pi windows.ProcessInformation
		err = windows.CreateProcess(nil, cmdline, nil, nil, false,
			windows.DEBUG_ONLY_THIS_PROCESS|windows.CREATE_NEW_CONSOLE,
			nil, nil, &si, &pi)
		if err != nil {
			return nil, fmt.Errorf("CreateProcess %q: %v", argv[0], err)
		}
		// The loop opens threads on demand; the initial handle is not kept.
		windows.CloseHandle(pi.Thread)
		return &Process{PID: pi.ProcessId, handle: pi.Process}, nil
	})
	if err != nil {
		w.close()
		return nil, err
	}
	p.worker = w
	return p, nil
}

// WaitForDebugEvent blocks until the target reports an event into evt.
func (p *Process) WaitForDebugEvent(evt *DebugEvent) error {
	return runOnErr(p.worker, func() error {
		r1, _, err := procWaitForDebugEventEx.Call(uintptr(unsafe.Pointer(evt)), infinite)
		if r1 == 0 {
			return fmt.Errorf("WaitForDebugEventEx: %v", err)
		}
		return nil
	})
}

// ContinueDebugEvent resumes the thread that reported the pending event.
func (p *Process) ContinueDebugEvent(pid, tid uint32, status uint32) error {
	return runOnErr(p.worker, func() error {
		r1, _, err := procContinueDebugEvent.Call(uintptr(pid), uintptr(tid), uintptr(status))
		if r1 == 0 {
			return fmt.Errorf("ContinueDebugEvent(%d,%d): %v", pid, tid, err)
		}
		return nil
	})
}

// GetThreadContext opens tid just long enough to capture its registers.
func (p *Process) GetThreadContext(tid uint32) (*Context, error) {
	return runOn(p.worker, func() (*Context, error) {
		th, err := OpenThread(tid)
		if err != nil {
			return nil, err
		}
		defer th.Close()
		ctx := NewContext()
		if err := th.GetContext(ctx); err != nil {
			return nil, err
		}
		return ctx, nil
	})
}

// SetThreadContext writes ctx back to tid.
func (p *Process) SetThreadContext(tid uint32, ctx *Context) error {
	return runOnErr(p.worker, func() error {
		th, err := OpenThread(tid)
		if err != nil {
			return err
		}
		defer th.Close()
		return th.SetContext(ctx)
	})
}

// ReadRaw implements memory.Source. ReadProcessMemory fails outright when
// the range touches an unreadable page, so on failure the leading pages are
// collected one at a time and the readable prefix is returned.
func (p *Process) ReadRaw(addr uint64, n int) []byte {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	var done uintptr
	if err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(n), &done); err == nil {
		return buf[:done]
	}

	const page = 0x1000
	total := 0
	for total < n {
		next := (addr+uint64(total))&^uint64(page-1) + page
		chunk := int(next - (addr + uint64(total)))
		if chunk > n-total {
			chunk = n - total
		}
		err := windows.ReadProcessMemory(p.handle, uintptr(addr)+uintptr(total), &buf[total], uintptr(chunk), &done)
		total += int(done)
		if err != nil || int(done) < chunk {
			break
		}
	}
	return buf[:total]
}

// Close releases the process handle and stops the worker thread. The target
// is not detached; if it is still alive it dies with its debugger.
func (p *Process) Close() error {
	err := windows.CloseHandle(p.handle)
	p.worker.close()
	return err
}

// FinalPathName resolves an open file handle to its path, without the \\?\
// prefix. Debug events hand the debugger image file handles; this is the
// reliable way to name them.
func FinalPathName(h windows.Handle) (string, error) {
	buf := make([]uint16, 260)
	n, err := windows.GetFinalPathNameByHandle(h, &buf[0], uint32(len(buf)), 0)
	if err == nil && int(n) >= len(buf) {
		buf = make([]uint16, n+1)
		n, err = windows.GetFinalPathNameByHandle(h, &buf[0], uint32(len(buf)), 0)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(windows.UTF16ToString(buf[:n]), `\\?\`), nil
}
