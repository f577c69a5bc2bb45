//go:build windows

package debugger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/golang/glog"
	"golang.org/x/sys/windows"

	"wdbg/memory"
	"wdbg/winapi"
)

// liveTarget adapts a launched winapi.Process to the session's Target. The
// raw event buffer is reused across waits; translated Events copy out
// everything the session keeps.
type liveTarget struct {
	p   *winapi.Process
	evt winapi.DebugEvent
}

// Launch starts argv under the debugger and builds an interactive session
// around it.
func Launch(argv []string) (*Session, error) {
	p, err := winapi.Launch(argv)
	if err != nil {
		return nil, err
	}
	glog.Infof("launched %s pid=%d", argv[0], p.PID)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       filepath.Join(os.TempDir(), "wdbg_history.txt"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			switch r {
			case readline.CharCtrlZ:
				return r, false
			}
			return r, true
		},
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	return New(&liveTarget{p: p}, rl), nil
}

// WaitForDebugEvent translates the next raw OS event. Image file handles
// delivered with create and load events are consumed for naming and closed
// here.
func (t *liveTarget) WaitForDebugEvent() (Event, error) {
	if err := t.p.WaitForDebugEvent(&t.evt); err != nil {
		return Event{}, err
	}
	out := Event{Pid: t.evt.ProcessID, Tid: t.evt.ThreadID}
	switch t.evt.Code {
	case winapi.ExceptionDebugEvent:
		info := t.evt.Exception()
		out.Kind = EventException
		out.ExceptionCode = info.Record.Code
		out.ExceptionAddr = info.Record.Address
		out.FirstChance = info.FirstChance != 0
	case winapi.CreateProcessDebugEvent:
		info := t.evt.CreateProcess()
		out.Kind = EventCreateProcess
		out.ImageBase = info.BaseOfImage
		if name, err := winapi.FinalPathName(info.File); err == nil {
			out.ImageName = filepath.Base(name)
		}
		windows.CloseHandle(info.File)
	case winapi.CreateThreadDebugEvent:
		out.Kind = EventCreateThread
	case winapi.ExitThreadDebugEvent:
		out.Kind = EventExitThread
		out.ExitCode = t.evt.ExitThread().ExitCode
	case winapi.ExitProcessDebugEvent:
		out.Kind = EventExitProcess
		out.ExitCode = t.evt.ExitProcess().ExitCode
	case winapi.LoadDllDebugEvent:
		info := t.evt.LoadDll()
		out.Kind = EventLoadDll
		out.ImageBase = info.BaseOfDll
		out.ImageName = t.imageName(info)
		windows.CloseHandle(info.File)
	case winapi.UnloadDllDebugEvent:
		out.Kind = EventUnloadDll
		out.ImageBase = t.evt.UnloadDll().BaseOfDll
	case winapi.OutputDebugStringEvent:
		out.Kind = EventOutputDebugString
		out.Text = t.debugString(t.evt.DebugString())
	case winapi.RipEvent:
		info := t.evt.Rip()
		out.Kind = EventRip
		out.RipError = info.Error
		out.RipType = info.Type
	default:
		return Event{}, fmt.Errorf("unknown debug event code %d", t.evt.Code)
	}
	return out, nil
}

// imageName names a loaded dll. The event's ImageName is a target-space
// pointer to a pointer to the string and is often null or unreadable this
// early, so the file handle is the fallback.
func (t *liveTarget) imageName(info *winapi.LoadDllDebugInfo) string {
	if info.ImageName != 0 {
		if ptr, err := memory.Read[uint64](t, info.ImageName); err == nil && ptr != 0 {
			var s string
			if info.Unicode != 0 {
				s = memory.ReadWideString(t, ptr, 260)
			} else {
				s = memory.ReadString(t, ptr, 260)
			}
			if s != "" {
				return filepath.Base(s)
			}
		}
	}
	if name, err := winapi.FinalPathName(info.File); err == nil {
		return filepath.Base(name)
	}
	return ""
}

func (t *liveTarget) debugString(info *winapi.OutputDebugStringInfo) string {
	n := int(info.Length)
	if n > 4096 {
		n = 4096
	}
	if info.Unicode != 0 {
		return memory.ReadWideString(t, info.Data, n)
	}
	return memory.ReadString(t, info.Data, n)
}

func (t *liveTarget) ContinueDebugEvent(pid, tid uint32, d Disposition) error {
	status := uint32(winapi.DbgContinue)
	if d == DispositionNotHandled {
		status = winapi.DbgExceptionNotHandled
	}
	return t.p.ContinueDebugEvent(pid, tid, status)
}

func (t *liveTarget) GetRegisters(tid uint32) (*Registers, error) {
	ctx, err := t.p.GetThreadContext(tid)
	if err != nil {
		return nil, err
	}
	return &Registers{
		Rax: ctx.Rax, Rbx: ctx.Rbx, Rcx: ctx.Rcx, Rdx: ctx.Rdx,
		Rsi: ctx.Rsi, Rdi: ctx.Rdi,
		Rbp: ctx.Rbp, Rsp: ctx.Rsp, Rip: ctx.Rip,
		R8: ctx.R8, R9: ctx.R9, R10: ctx.R10, R11: ctx.R11,
		R12: ctx.R12, R13: ctx.R13, R14: ctx.R14, R15: ctx.R15,
		EFlags: ctx.EFlags,
		Cs:     ctx.SegCs, Ss: ctx.SegSs, Ds: ctx.SegDs,
		Es: ctx.SegEs, Fs: ctx.SegFs, Gs: ctx.SegGs,
	}, nil
}

// SetRegisters round-trips the full context so the floating point, debug,
// and segment state the session never touches survives the write.
func (t *liveTarget) SetRegisters(tid uint32, regs *Registers) error {
	ctx, err := t.p.GetThreadContext(tid)
	if err != nil {
		return err
	}
	ctx.Rax, ctx.Rbx, ctx.Rcx, ctx.Rdx = regs.Rax, regs.Rbx, regs.Rcx, regs.Rdx
	ctx.Rsi, ctx.Rdi = regs.Rsi, regs.Rdi
	ctx.Rbp, ctx.Rsp, ctx.Rip = regs.Rbp, regs.Rsp, regs.Rip
	ctx.R8, ctx.R9, ctx.R10, ctx.R11 = regs.R8, regs.R9, regs.R10, regs.R11
	ctx.R12, ctx.R13, ctx.R14, ctx.R15 = regs.R12, regs.R13, regs.R14, regs.R15
	ctx.EFlags = regs.EFlags
	return t.p.SetThreadContext(tid, ctx)
}

func (t *liveTarget) ReadRaw(addr uint64, n int) []byte {
	return t.p.ReadRaw(addr, n)
}

func (t *liveTarget) Close() error {
	return t.p.Close()
}
