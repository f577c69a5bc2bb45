package debugger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"wdbg/bp"
	"wdbg/proc"
	"wdbg/ui"
)

// ErrProtocol marks a desync between the session's thread table and what
// the OS reports. The model can no longer be trusted, so the session ends.
var ErrProtocol = errors.New("debug protocol violation")

// threadKey identifies a thread across the one-or-more processes the OS
// may report events for.
type threadKey struct {
	pid uint32
	tid uint32
}

// threadState tracks whether the next single-step exception on the thread
// was requested by the debugger.
type threadState struct {
	expectStep bool
}

// Session owns one debugged process from launch to exit: the event loop,
// the process model, the breakpoint registry, and the prompt.
type Session struct {
	target  Target
	prompt  Prompt
	process *proc.Process
	threads map[threadKey]*threadState
	points  *bp.Manager
}

// New builds a session around a launched target and an input source.
func New(target Target, prompt Prompt) *Session {
	return &Session{
		target:  target,
		prompt:  prompt,
		process: proc.NewProcess(),
		threads: make(map[threadKey]*threadState),
		points:  bp.NewManager(),
	}
}

// Run drives the event loop until the target exits or the operator quits.
// Each event is dispatched, then the operator gets the prompt while the
// target stays suspended, then the event is continued. A quit ends the
// session without continuing: the suspended target dies with its debugger.
func (s *Session) Run() error {
	defer s.prompt.Close()
	defer s.target.Close()

	for {
		evt, err := s.target.WaitForDebugEvent()
		if err != nil {
			return err
		}
		glog.V(1).Infof("debug event kind=%d pid=%d tid=%d", evt.Kind, evt.Pid, evt.Tid)

		disp, exited, err := s.dispatch(&evt)
		if err != nil {
			return err
		}
		if !exited {
			quit, err := s.interact(&evt)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
		if err := s.target.ContinueDebugEvent(evt.Pid, evt.Tid, disp); err != nil {
			return err
		}
		if exited {
			return nil
		}
	}
}

// dispatch updates the model for one event and reports it. It returns the
// continuation disposition and whether the event ended the session.
func (s *Session) dispatch(evt *Event) (Disposition, bool, error) {
	key := threadKey{evt.Pid, evt.Tid}

	switch evt.Kind {
	case EventException:
		st := s.threads[key]
		if st == nil {
			return 0, false, fmt.Errorf("%w: exception on unknown thread %d.%d", ErrProtocol, evt.Pid, evt.Tid)
		}
		if st.expectStep && evt.ExceptionCode == ExceptionSingleStep {
			// Completion of our own step; nothing to report.
			st.expectStep = false
			return DispositionContinue, false, nil
		}
		name := ExceptionName(evt.ExceptionCode)
		if name == "" {
			name = "unrecognized"
		}
		chance := "first"
		if !evt.FirstChance {
			chance = "second"
		}
		ui.Printf("Exception %s (0x%x), %s chance, at 0x%016x\n",
			name, uint64(evt.ExceptionCode), chance, evt.ExceptionAddr)
		return DispositionNotHandled, false, nil

	case EventCreateProcess:
		if err := s.registerThread(key); err != nil {
			return 0, false, err
		}
		ui.Printf("Process %d started (initial thread %d)\n", evt.Pid, evt.Tid)
		s.loadModule(evt.ImageBase, evt.ImageName)
		return DispositionContinue, false, nil

	case EventCreateThread:
		if err := s.registerThread(key); err != nil {
			return 0, false, err
		}
		ui.Printf("Thread %d started\n", evt.Tid)
		return DispositionContinue, false, nil

	case EventExitThread:
		if err := s.unregisterThread(key); err != nil {
			return 0, false, err
		}
		ui.Printf("Thread %d exited with code %d\n", evt.Tid, evt.ExitCode)
		return DispositionContinue, false, nil

	case EventExitProcess:
		if err := s.unregisterThread(key); err != nil {
			return 0, false, err
		}
		ui.Printf("Process %d exited with code %d\n", evt.Pid, evt.ExitCode)
		return DispositionContinue, true, nil

	case EventLoadDll:
		s.loadModule(evt.ImageBase, evt.ImageName)
		return DispositionContinue, false, nil

	case EventUnloadDll:
		// The module stays registered; stale ranges are harmless and the
		// names remain useful.
		ui.Printf("ModUnload: %016x\n", evt.ImageBase)
		return DispositionContinue, false, nil

	case EventOutputDebugString:
		ui.Printf("OutputDebugString: %s\n", strings.TrimRight(evt.Text, "\r\n"))
		return DispositionContinue, false, nil

	case EventRip:
		ui.Printf("RIP event: error=0x%x type=%d\n", uint64(evt.RipError), evt.RipType)
		return DispositionContinue, false, nil
	}
	return 0, false, fmt.Errorf("%w: unknown event kind %d", ErrProtocol, evt.Kind)
}

func (s *Session) registerThread(key threadKey) error {
	if s.threads[key] != nil {
		return fmt.Errorf("%w: thread %d.%d registered twice", ErrProtocol, key.pid, key.tid)
	}
	s.threads[key] = &threadState{}
	s.process.AddThread(key.tid)
	return nil
}

func (s *Session) unregisterThread(key threadKey) error {
	if s.threads[key] == nil {
		return fmt.Errorf("%w: exit of unknown thread %d.%d", ErrProtocol, key.pid, key.tid)
	}
	delete(s.threads, key)
	s.process.RemoveThread(key.tid)
	return nil
}

// loadModule parses the image at base from target memory and registers it.
// A parse failure degrades to a placeholder so one bad image cannot end
// the session.
func (s *Session) loadModule(base uint64, name string) {
	m, err := proc.ParseModule(s.target, base, name)
	if err != nil {
		ui.LogError("module at 0x%016x: %v", base, err)
		m = proc.NewUnparsedModule(base, name)
	}
	s.process.AddModule(m)
	ui.Printf("ModLoad: %016x  %s\n", m.Address, m.Name)

	if m.LoadErr != nil {
		glog.Warningf("%s: %v", m.Name, m.LoadErr)
	}
	switch {
	case m.Symbols == nil && m.SymbolsErr != nil:
		ui.Printf("Symbols not loaded for %s: %s\n", m.Name, m.SymbolsErr.Error())
	case m.Symbols != nil && m.SymbolsErr != nil:
		glog.V(1).Infof("%s: keeping mismatched symbols: %v", m.Name, m.SymbolsErr)
	case m.Symbols != nil:
		glog.V(1).Infof("%s: symbols loaded from %s", m.Name, m.CodeView.Path)
	}
}
