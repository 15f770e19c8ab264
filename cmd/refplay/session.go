package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wippyai/refcount"
	"github.com/wippyai/refcount/alloc"
	"github.com/wippyai/refcount/errors"
	"github.com/wippyai/refcount/ptr"
	"github.com/wippyai/refcount/table"
)

// payload announces its destruction on the session output.
type payload struct {
	out   io.Writer
	value string
}

func (p *payload) Drop() {
	fmt.Fprintf(p.out, "destroyed %s\n", p.value)
}

// accounting is an allocator that reports what it holds.
type accounting interface {
	refcount.Allocator
	Live() int64
	Bytes() int64
}

// session interprets playground commands. Every name refers to one table
// slot; reassigning a name acquires the new unit before releasing the old.
type session struct {
	out   io.Writer
	tbl   *table.Table[payload]
	names map[string]table.Handle
	acct  accounting
	opts  []ptr.Option
}

func newSession(out io.Writer, budget uintptr) *session {
	var acct accounting = alloc.NewTracker()
	if budget > 0 {
		acct = alloc.NewLimit(budget)
	}
	return &session{
		out:   out,
		tbl:   table.New[payload](),
		names: make(map[string]table.Handle),
		acct:  acct,
		opts:  []ptr.Option{ptr.WithAllocator(acct)},
	}
}

type command struct {
	args  int
	usage string
	run   func(s *session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"make":  {2, "make NAME VALUE   in-place shared handle", (*session).cmdMake},
		"new":   {2, "new NAME VALUE    shared handle with a separate block", (*session).cmdNew},
		"copy":  {2, "copy DST SRC      DST shares SRC's block", (*session).cmdCopy},
		"move":  {2, "move DST SRC      DST takes SRC's unit, SRC is forgotten", (*session).cmdMove},
		"weak":  {2, "weak DST SRC      DST observes SRC's block", (*session).cmdWeak},
		"lock":  {2, "lock DST SRC      DST owns weak SRC's payload if alive", (*session).cmdLock},
		"alias": {2, "alias DST SRC     DST shares SRC's ownership", (*session).cmdAlias},
		"swap":  {2, "swap A B          exchange two handles", (*session).cmdSwap},
		"reset": {1, "reset NAME        release NAME, keep it as empty", (*session).cmdReset},
		"drop":  {1, "drop NAME         release and forget NAME", (*session).cmdDrop},
		"show":  {-1, "show [NAME]       describe one or all handles", (*session).cmdShow},
		"stats": {0, "stats             live control blocks and bytes", (*session).cmdStats},
		"help":  {0, "help              list commands", (*session).cmdHelp},
	}
}

// exec runs one command line. Blank lines and # comments are ignored.
func (s *session) exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	fields := strings.Fields(line)
	cmd, ok := commands[fields[0]]
	if !ok {
		return errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("unknown command %q, try help", fields[0]))
	}
	args := fields[1:]
	if cmd.args >= 0 && len(args) != cmd.args {
		return errors.InvalidInput(errors.PhaseScript, "usage: "+cmd.usage)
	}
	if cmd.args < 0 && len(args) > 1 {
		return errors.InvalidInput(errors.PhaseScript, "usage: "+cmd.usage)
	}
	return cmd.run(s, args)
}

// run executes a script, stopping at the first failing line.
func (s *session) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		if err := s.exec(scanner.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}

// close releases every handle still held.
func (s *session) close() error {
	s.names = make(map[string]table.Handle)
	return s.tbl.Close()
}

func (s *session) lookup(name string) (table.Handle, table.Slot[payload], error) {
	h, ok := s.names[name]
	if !ok {
		return 0, table.Slot[payload]{}, errors.NotFound(errors.PhaseScript, "handle", name)
	}
	slot, _ := s.tbl.Get(h)
	return h, slot, nil
}

func (s *session) shared(name string) (ptr.Shared[payload], error) {
	_, slot, err := s.lookup(name)
	if err != nil {
		return ptr.Shared[payload]{}, err
	}
	if slot.IsWeak {
		return ptr.Shared[payload]{}, errors.InvalidInput(errors.PhaseScript, name+" is a weak handle")
	}
	return slot.Shared, nil
}

// bind moves slot into a new table entry named name, then releases whatever
// name held before.
func (s *session) bind(name string, slot table.Slot[payload]) error {
	var (
		h   table.Handle
		err error
	)
	if slot.IsWeak {
		h, err = s.tbl.InsertWeak(&slot.Weak)
	} else {
		h, err = s.tbl.InsertShared(&slot.Shared)
	}
	if err != nil {
		return err
	}

	old, had := s.names[name]
	s.names[name] = h
	if had {
		s.tbl.Remove(old)
	}
	return nil
}

func (s *session) cmdMake(args []string) error {
	sh, err := ptr.MakeWith(func(p *payload) error {
		p.out = s.out
		p.value = args[1]
		return nil
	}, s.opts...)
	if err != nil {
		return err
	}
	return s.bind(args[0], table.Slot[payload]{Shared: sh})
}

func (s *session) cmdNew(args []string) error {
	sh, err := ptr.New(&payload{out: s.out, value: args[1]}, nil, s.opts...)
	if err != nil {
		return err
	}
	return s.bind(args[0], table.Slot[payload]{Shared: sh})
}

func (s *session) cmdCopy(args []string) error {
	_, slot, err := s.lookup(args[1])
	if err != nil {
		return err
	}
	if slot.IsWeak {
		return s.bind(args[0], table.Slot[payload]{Weak: slot.Weak.Clone(), IsWeak: true})
	}
	return s.bind(args[0], table.Slot[payload]{Shared: slot.Shared.Clone()})
}

func (s *session) cmdMove(args []string) error {
	if args[0] == args[1] {
		if _, _, err := s.lookup(args[1]); err != nil {
			return err
		}
		return nil
	}
	h, _, err := s.lookup(args[1])
	if err != nil {
		return err
	}
	slot, _ := s.tbl.Take(h)
	delete(s.names, args[1])
	return s.bind(args[0], slot)
}

func (s *session) cmdWeak(args []string) error {
	_, slot, err := s.lookup(args[1])
	if err != nil {
		return err
	}
	if slot.IsWeak {
		return s.bind(args[0], table.Slot[payload]{Weak: slot.Weak.Clone(), IsWeak: true})
	}
	return s.bind(args[0], table.Slot[payload]{Weak: ptr.WeakFrom(slot.Shared), IsWeak: true})
}

func (s *session) cmdLock(args []string) error {
	_, slot, err := s.lookup(args[1])
	if err != nil {
		return err
	}
	if !slot.IsWeak {
		return errors.InvalidInput(errors.PhaseScript, args[1]+" is not a weak handle")
	}
	locked := slot.Weak.Lock()
	if !locked.Valid() {
		fmt.Fprintf(s.out, "%s expired\n", args[1])
	}
	return s.bind(args[0], table.Slot[payload]{Shared: locked})
}

func (s *session) cmdAlias(args []string) error {
	owner, err := s.shared(args[1])
	if err != nil {
		return err
	}
	return s.bind(args[0], table.Slot[payload]{Shared: ptr.Alias(owner, owner.Get())})
}

func (s *session) cmdSwap(args []string) error {
	a, okA := s.names[args[0]]
	b, okB := s.names[args[1]]
	if !okA {
		return errors.NotFound(errors.PhaseScript, "handle", args[0])
	}
	if !okB {
		return errors.NotFound(errors.PhaseScript, "handle", args[1])
	}
	s.names[args[0]], s.names[args[1]] = b, a
	return nil
}

func (s *session) cmdReset(args []string) error {
	if _, _, err := s.lookup(args[0]); err != nil {
		return err
	}
	return s.bind(args[0], table.Slot[payload]{})
}

func (s *session) cmdDrop(args []string) error {
	h, _, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	delete(s.names, args[0])
	s.tbl.Remove(h)
	return nil
}

func (s *session) cmdShow(args []string) error {
	if len(args) == 1 {
		_, slot, err := s.lookup(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, describe(args[0], slot))
		return nil
	}

	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, slot, _ := s.lookup(name)
		fmt.Fprintln(s.out, describe(name, slot))
	}
	return nil
}

func describe(name string, slot table.Slot[payload]) string {
	if slot.IsWeak {
		state := "alive"
		if slot.Weak.Expired() {
			state = "expired"
		}
		return fmt.Sprintf("%s: weak use=%d %s", name, slot.Weak.UseCount(), state)
	}
	if !slot.Shared.Valid() {
		return name + ": empty"
	}
	return fmt.Sprintf("%s: shared %q use=%d", name, slot.Shared.Get().value, slot.Shared.UseCount())
}

func (s *session) cmdStats([]string) error {
	fmt.Fprintf(s.out, "blocks=%d bytes=%d\n", s.acct.Live(), s.acct.Bytes())
	return nil
}

func (s *session) cmdHelp([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(s.out, "  "+commands[name].usage)
	}
	return nil
}
