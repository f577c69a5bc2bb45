package debugger

import (
	"errors"
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"golang.org/x/arch/x86/x86asm"

	"wdbg/command"
	"wdbg/proc"
	"wdbg/sym"
	"wdbg/ui"
)

// exprResolver lets address expressions name exports as module!symbol.
type exprResolver struct {
	p *proc.Process
}

func (r exprResolver) ResolveNameToAddr(qualified string) (uint64, error) {
	return sym.ResolveNameToAddr(r.p, qualified)
}

// interact reads commands while the target sits suspended on evt. It
// returns when a command resumes the target or quits the session.
func (s *Session) interact(evt *Event) (bool, error) {
	regs, err := s.target.GetRegisters(evt.Tid)
	if err != nil {
		return false, err
	}

	loc := sym.ResolveAddrToName(s.process, regs.Rip)
	if loc == "" {
		loc = fmt.Sprintf("0x%016x", regs.Rip)
	}
	s.prompt.SetPrompt(ui.ColorBold + ui.ColorCyan + loc + ui.ColorReset + "> ")

	for {
		line, err := s.prompt.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF or a dead terminal counts as quit.
			return true, nil
		}

		cmd, diag := command.Parse(line)
		if diag != nil {
			fmt.Println(diag.Render(line))
			continue
		}
		if cmd == nil {
			continue
		}

		resume, quit, err := s.execute(cmd, evt, regs)
		if err != nil {
			return false, err
		}
		if quit || resume {
			return quit, nil
		}
	}
}

// execute runs one command. resume hands control back to the target, quit
// ends the session. Errors from operator input are printed and swallowed;
// only protocol and OS failures propagate.
func (s *Session) execute(cmd *command.Command, evt *Event, regs *Registers) (resume, quit bool, err error) {
	switch cmd.Kind {
	case command.Help:
		ui.HLine("commands")
		for _, l := range command.Usage() {
			fmt.Println(l)
		}

	case command.Step:
		st := s.threads[threadKey{evt.Pid, evt.Tid}]
		if st == nil {
			return false, false, fmt.Errorf("%w: step on unknown thread %d.%d", ErrProtocol, evt.Pid, evt.Tid)
		}
		regs.EFlags |= TrapFlag
		if err := s.target.SetRegisters(evt.Tid, regs); err != nil {
			return false, false, err
		}
		st.expectStep = true
		return true, false, nil

	case command.Continue:
		return true, false, nil

	case command.Quit:
		return false, true, nil

	case command.DisplayRegisters:
		s.printRegisters(regs)

	case command.DisplayBytes:
		addr, ok := s.eval(cmd.Expr)
		if !ok {
			break
		}
		data := s.target.ReadRaw(addr, 64)
		if len(data) == 0 {
			ui.LogError("no readable memory at 0x%016x", addr)
			break
		}
		ui.HexDump(os.Stdout, addr, data)

	case command.Disassemble:
		addr, ok := s.eval(cmd.Expr)
		if !ok {
			break
		}
		s.disassemble(addr)

	case command.Evaluate:
		v, ok := s.eval(cmd.Expr)
		if !ok {
			break
		}
		ui.Printf("0x%016x (%d)\n", v, v)

	case command.ListNearest:
		addr, ok := s.eval(cmd.Expr)
		if !ok {
			break
		}
		name := sym.ResolveAddrToName(s.process, addr)
		if name == "" {
			ui.LogError("no symbol at or below 0x%016x", addr)
			break
		}
		ui.Printf("%s\n", name)

	case command.AddBreakpoint:
		addr, ok := s.eval(cmd.Expr)
		if !ok {
			break
		}
		id, err := s.points.Add(addr)
		if err != nil {
			ui.LogError("%v", err)
			break
		}
		ui.Printf("breakpoint %d at 0x%016x\n", id, addr)

	case command.RemoveBreakpoint:
		id, ok := s.eval(cmd.Expr)
		if !ok {
			break
		}
		s.points.Remove(int(id))

	case command.ListBreakpoints:
		for _, b := range s.points.All() {
			if name := sym.ResolveAddrToName(s.process, b.Address); name != "" {
				ui.Printf("%d  0x%016x (%s)\n", b.ID, b.Address, name)
			} else {
				ui.Printf("%d  0x%016x\n", b.ID, b.Address)
			}
		}

	default:
		return false, false, fmt.Errorf("unhandled command kind %d", cmd.Kind)
	}
	return false, false, nil
}

// eval evaluates an address expression, reporting failures to the operator.
func (s *Session) eval(e command.Expr) (uint64, bool) {
	v, err := e.Eval(exprResolver{s.process})
	if err != nil {
		ui.LogError("%v", err)
		return 0, false
	}
	return v, true
}

func (s *Session) printRegisters(r *Registers) {
	ui.Printf("rax=%016x rbx=%016x rcx=%016x\n", r.Rax, r.Rbx, r.Rcx)
	ui.Printf("rdx=%016x rsi=%016x rdi=%016x\n", r.Rdx, r.Rsi, r.Rdi)
	ui.Printf("rip=%016x rsp=%016x rbp=%016x\n", r.Rip, r.Rsp, r.Rbp)
	ui.Printf(" r8=%016x  r9=%016x r10=%016x\n", r.R8, r.R9, r.R10)
	ui.Printf("r11=%016x r12=%016x r13=%016x\n", r.R11, r.R12, r.R13)
	ui.Printf("r14=%016x r15=%016x\n", r.R14, r.R15)
	ui.Printf("cs=%04x ss=%04x ds=%04x es=%04x fs=%04x gs=%04x efl=%08x\n",
		r.Cs, r.Ss, r.Ds, r.Es, r.Fs, r.Gs, r.EFlags)
}

// disassemble decodes one 64-byte window of target memory. A byte the
// decoder rejects prints as ?? and decoding restarts one byte later.
func (s *Session) disassemble(addr uint64) {
	data := s.target.ReadRaw(addr, 64)
	if len(data) == 0 {
		ui.LogError("no readable memory at 0x%016x", addr)
		return
	}
	lookup := func(a uint64) (string, uint64) {
		name, base, ok := sym.NearestSymbol(s.process, a)
		if !ok {
			return "", 0
		}
		return name, base
	}
	pc := addr
	for off := 0; off < len(data); {
		inst, err := x86asm.Decode(data[off:], 64)
		if err != nil {
			ui.Printf("0x%016x: ??\n", pc)
			off++
			pc++
			continue
		}
		ui.Printf("0x%016x: %s\n", pc, x86asm.IntelSyntax(inst, pc, lookup))
		off += inst.Len
		pc += uint64(inst.Len)
	}
}
