package main

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/wippyai/extern-runtime/host"
	"github.com/wippyai/extern-runtime/symbol"
)

// session executes script commands against a runtime. Instances are named
// $1, $2, ... in creation order.
type session struct {
	rt        *host.Runtime
	out       io.Writer
	instances map[int]host.Record
	next      int
}

func newSession(rt *host.Runtime, out io.Writer) *session {
	return &session{
		rt:        rt,
		out:       out,
		instances: make(map[int]host.Record),
		next:      1,
	}
}

// run executes every line of r, stopping at the first failing command.
func (s *session) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if err := s.exec(sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

func (s *session) exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "new":
		if len(args) < 1 {
			return fmt.Errorf("usage: new <class> [args]")
		}
		atoms, err := parseAtoms(s.rt, args[1:])
		if err != nil {
			return err
		}
		rec, err := s.rt.NewInstance(args[0], atoms...)
		if err != nil {
			return err
		}
		n := s.next
		s.next++
		s.instances[n] = rec
		fmt.Fprintf(s.out, "$%d = %s %s\n", n, args[0], rec)
		return nil

	case "send":
		if len(args) < 2 {
			return fmt.Errorf("usage: send $N <selector> [args]")
		}
		n, rec, err := s.instance(args[0])
		if err != nil {
			return err
		}
		atoms, err := parseAtoms(s.rt, args[2:])
		if err != nil {
			return err
		}
		if err := s.rt.Send(rec, args[1], atoms...); err != nil {
			return fmt.Errorf("$%d %s: %w", n, args[1], err)
		}
		return nil

	case "advance":
		if len(args) != 1 {
			return fmt.Errorf("usage: advance <ms>")
		}
		ms, err := strconv.ParseFloat(args[0], 64)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid duration %q", args[0])
		}
		s.rt.Advance(ms)
		fmt.Fprintf(s.out, "now %gms\n", s.rt.Now())
		return nil

	case "free":
		if len(args) != 1 {
			return fmt.Errorf("usage: free $N")
		}
		n, rec, err := s.instance(args[0])
		if err != nil {
			return err
		}
		delete(s.instances, n)
		return s.rt.Free(rec)

	case "symbols":
		fmt.Fprintf(s.out, "%d symbols interned\n", s.rt.SymbolCount())
		return nil

	case "classes":
		for _, name := range s.rt.Classes() {
			desc, _, _ := s.rt.Class(name)
			fmt.Fprintf(s.out, "%s\n", name)
			for _, m := range desc.Methods {
				fmt.Fprintf(s.out, "  %s\n", formatMethod(m))
			}
		}
		return nil

	case "instances":
		for _, n := range s.ids() {
			rec := s.instances[n]
			fmt.Fprintf(s.out, "$%d %s %s\n", n, s.rt.ClassName(rec), rec)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *session) instance(ref string) (int, host.Record, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "$"))
	if err != nil || !strings.HasPrefix(ref, "$") {
		return 0, 0, fmt.Errorf("expected $N, got %q", ref)
	}
	rec, ok := s.instances[n]
	if !ok {
		return 0, 0, fmt.Errorf("no instance $%d", n)
	}
	return n, rec, nil
}

func (s *session) ids() []int {
	out := make([]int, 0, len(s.instances))
	for n := range s.instances {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// parseAtoms reads integers as longs, other numbers as floats and anything
// else as a symbol.
func parseAtoms(rt *host.Runtime, fields []string) ([]host.Atom, error) {
	atoms := make([]host.Atom, 0, len(fields))
	for _, f := range fields {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			atoms = append(atoms, host.Long(v))
			continue
		}
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			atoms = append(atoms, host.Float(v))
			continue
		}
		ref, err := symbol.Intern(rt, f)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, ref.Atom())
	}
	return atoms, nil
}

func formatMethod(m host.Method) string {
	params := make([]string, len(m.Args))
	for i, t := range m.Signature() {
		params[i] = witTypeStr(t)
	}
	return m.Selector + "(" + strings.Join(params, ", ") + ")"
}
