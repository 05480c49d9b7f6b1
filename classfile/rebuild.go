package classfile

import (
	"fmt"
	"sort"

	"github.com/dhamidi/rebuild/ast"
)

type termKind uint8

const (
	termFall termKind = iota
	termGoto
	termIf
	termSwitch
	termExit
)

// terminator is how control leaves a block. cond and key are filled in by
// simulation; the rest comes from the block's last instruction.
type terminator struct {
	kind    termKind
	cond    ast.Expr
	key     ast.Expr
	target  int
	def     int
	keys    []int32
	targets []int
}

type slotState struct {
	typ    ast.Type
	newPC  int
	caught bool
}

type block struct {
	index       int
	start, end  int
	first, last int
	entry       []slotState
	reached     bool
	jumpedTo    bool
	stmts       []ast.Stmt
	term        terminator
}

func (b *block) successors() []int {
	switch b.term.kind {
	case termFall:
		return []int{b.end}
	case termGoto:
		return []int{b.term.target}
	case termIf:
		return []int{b.term.target, b.end}
	case termSwitch:
		return append([]int{b.term.def}, b.term.targets...)
	}
	return nil
}

type rebuilder struct {
	m      *MethodInfo
	cp     *ConstantPool
	code   *CodeAttribute
	insns  []Instruction
	blocks []*block
	byPC   map[int]int
	locals *localTable
	temps  int
}

// Rebuild reconstructs the body of m from its Code attribute by simulating
// the operand stack, then folds the resulting blocks back into structured
// statements. Malformed code fails with a *DecodeError whose offset points
// into the class file.
func Rebuild(m *MethodInfo, cp *ConstantPool) (*ast.BlockStmt, error) {
	code := m.Code
	if code == nil {
		return nil, nil
	}
	insns, err := DecodeInstructions(code.Code, code.CodeOffset)
	if err != nil {
		return nil, err
	}
	if len(insns) == 0 {
		return &ast.BlockStmt{}, nil
	}
	r := &rebuilder{
		m:      m,
		cp:     cp,
		code:   code,
		insns:  insns,
		locals: newLocalTable(m, cp),
	}
	if err := r.split(); err != nil {
		return nil, err
	}
	if err := r.simulate(); err != nil {
		return nil, err
	}
	return r.structure(), nil
}

func (r *rebuilder) fail(pc int, err error) error {
	return &DecodeError{Offset: r.code.CodeOffset + pc, Err: err}
}

func (r *rebuilder) split() error {
	starts := make(map[int]int, len(r.insns))
	for i, in := range r.insns {
		starts[in.PC] = i
	}
	codeLen := len(r.code.Code)
	leaders := map[int]bool{0: true}
	mark := func(pc, from int) error {
		if pc == codeLen {
			return nil
		}
		if _, ok := starts[pc]; !ok {
			return r.fail(from, fmt.Errorf("%w: %d is not an instruction boundary", ErrBadBranch, pc))
		}
		leaders[pc] = true
		return nil
	}

	for i := range r.insns {
		in := &r.insns[i]
		if in.IsBranch() {
			if in.Op == OpTableswitch || in.Op == OpLookupswitch {
				if err := mark(in.Default, in.PC); err != nil {
					return err
				}
				for _, t := range in.Targets {
					if err := mark(t, in.PC); err != nil {
						return err
					}
				}
			} else if err := mark(in.Target, in.PC); err != nil {
				return err
			}
		}
		if (in.IsBranch() || in.EndsBlock()) && i+1 < len(r.insns) {
			leaders[r.insns[i+1].PC] = true
		}
	}
	for _, e := range r.code.ExceptionTable {
		if int(e.StartPC) >= int(e.EndPC) || int(e.EndPC) > codeLen || int(e.HandlerPC) >= codeLen {
			return r.fail(int(e.HandlerPC), fmt.Errorf("%w: exception range %d..%d handler %d", ErrBadBranch, e.StartPC, e.EndPC, e.HandlerPC))
		}
		for _, pc := range []int{int(e.StartPC), int(e.EndPC), int(e.HandlerPC)} {
			if err := mark(pc, int(e.HandlerPC)); err != nil {
				return err
			}
		}
	}

	r.byPC = make(map[int]int)
	for i := 0; i < len(r.insns); {
		b := &block{index: len(r.blocks), start: r.insns[i].PC, first: i}
		i++
		for i < len(r.insns) && !leaders[r.insns[i].PC] {
			i++
		}
		b.last = i
		b.end = codeLen
		if i < len(r.insns) {
			b.end = r.insns[i].PC
		}
		r.byPC[b.start] = b.index
		r.blocks = append(r.blocks, b)
	}

	for _, b := range r.blocks {
		in := &r.insns[b.last-1]
		switch {
		case in.Op == OpGoto || in.Op == OpGotoW:
			b.term = terminator{kind: termGoto, target: in.Target}
		case in.Op == OpTableswitch || in.Op == OpLookupswitch:
			b.term = terminator{kind: termSwitch, def: in.Default, keys: in.Keys, targets: in.Targets}
		case in.IsBranch():
			b.term = terminator{kind: termIf, target: in.Target}
		case in.EndsBlock():
			b.term = terminator{kind: termExit}
		default:
			b.term = terminator{kind: termFall}
		}
		for _, pc := range b.successors() {
			if pc >= codeLen {
				return r.fail(in.PC, fmt.Errorf("%w: control falls off the end of the code", ErrBadBranch))
			}
			if pc != b.end {
				r.blocks[r.byPC[pc]].jumpedTo = true
			}
		}
		if b.term.kind == termIf {
			r.blocks[r.byPC[b.term.target]].jumpedTo = true
		}
	}
	return nil
}

func (r *rebuilder) catchType(e ExceptionTableEntry) (string, error) {
	if e.CatchType == 0 {
		return "", nil
	}
	name, ok := r.className(e.CatchType)
	if !ok {
		return "", r.fail(int(e.HandlerPC), fmt.Errorf("%w: catch type %d", ErrBadIndex, e.CatchType))
	}
	return name, nil
}

func (r *rebuilder) simulate() error {
	r.blocks[0].entry = []slotState{}
	r.blocks[0].reached = true
	work := []int{0}

	merge := func(from int, pc int, out []slotState) error {
		succ := r.blocks[r.byPC[pc]]
		if !succ.reached {
			succ.reached = true
			succ.entry = out
			work = append(work, succ.index)
			return nil
		}
		if len(succ.entry) != len(out) {
			return r.fail(from, fmt.Errorf("%w: depth %d into %d, expected %d", ErrInconsistent, len(out), pc, len(succ.entry)))
		}
		for i := range out {
			if out[i].newPC != succ.entry[i].newPC || out[i].caught != succ.entry[i].caught {
				return r.fail(from, fmt.Errorf("%w: slot %d at %d", ErrInconsistent, i, pc))
			}
		}
		return nil
	}

	for len(work) > 0 {
		b := r.blocks[work[len(work)-1]]
		work = work[:len(work)-1]

		for _, e := range r.code.ExceptionTable {
			if b.start < int(e.StartPC) || b.start >= int(e.EndPC) {
				continue
			}
			name, err := r.catchType(e)
			if err != nil {
				return err
			}
			typ := ast.ClassOf("java/lang/Throwable")
			if name != "" {
				typ = ast.ClassOf(name)
			}
			if err := merge(b.start, int(e.HandlerPC), []slotState{{typ: typ, newPC: -1, caught: true}}); err != nil {
				return err
			}
		}

		out, err := r.run(b)
		if err != nil {
			return err
		}
		for _, pc := range b.successors() {
			if err := merge(r.insns[b.last-1].PC, pc, out); err != nil {
				return err
			}
		}
	}

	for _, b := range r.blocks {
		if !b.reached {
			log.Debugf("%s: skipping unreachable code at %d..%d", r.m.Signature(r.cp), b.start, b.end)
		}
	}
	return nil
}

// run simulates one block from its entry state and returns the state it
// leaves on the operand stack.
func (r *rebuilder) run(b *block) ([]slotState, error) {
	f := &frame{r: r, b: b}
	for i, st := range b.entry {
		switch {
		case st.newPC >= 0:
			f.stack = append(f.stack, slot{typ: st.typ, newPC: st.newPC})
		case st.caught:
			f.stack = append(f.stack, slot{expr: ast.NewCaughtException(st.typ), newPC: -1})
		default:
			f.stack = append(f.stack, slot{expr: ast.NewStackVar(stackVarName(i), st.typ), newPC: -1})
		}
	}

	for i := b.first; i < b.last; i++ {
		in := &r.insns[i]
		next := len(r.code.Code)
		if i+1 < len(r.insns) {
			next = r.insns[i+1].PC
		}
		f.pc = in.PC
		if err := f.exec(in, next); err != nil {
			return nil, err
		}
	}

	var extra ast.Expr
	switch b.term.kind {
	case termIf:
		extra = b.term.cond
	case termSwitch:
		extra = b.term.key
	}
	if b.term.kind != termExit {
		extra = f.assignOutgoing(extra)
	}
	switch b.term.kind {
	case termIf:
		b.term.cond = extra
	case termSwitch:
		b.term.key = extra
	}
	b.stmts = f.stmts

	out := make([]slotState, len(f.stack))
	for i, s := range f.stack {
		if s.expr == nil {
			out[i] = slotState{typ: s.typ, newPC: s.newPC}
		} else {
			out[i] = slotState{typ: s.expr.Type(), newPC: -1}
		}
	}
	return out, nil
}

func stackVarName(i int) string {
	return fmt.Sprintf("$s%d", i)
}

func (r *rebuilder) newTemp() string {
	name := fmt.Sprintf("$t%d", r.temps)
	r.temps++
	return name
}

func (r *rebuilder) className(index uint16) (string, bool) {
	class, ok := r.cp.Get(index).(*ConstantClassInfo)
	if !ok {
		return "", false
	}
	return r.cp.LookupUtf8(class.NameIndex)
}

// memberRef reads the reference an instruction operand names, checking the
// entries involved so malformed code cannot trip the pool's panics.
func (r *rebuilder) memberRef(in *Instruction) (owner, name, desc string, err error) {
	ref, ok := r.cp.Get(uint16(in.Index)).(*ConstantMemberrefInfo)
	if ok {
		owner, ok = r.className(ref.ClassIndex)
	}
	if ok {
		name, desc, ok = r.nameType(ref.NameAndTypeIndex)
	}
	if !ok {
		return "", "", "", r.fail(in.PC, fmt.Errorf("%w: %s operand %d", ErrBadIndex, in.Op, in.Index))
	}
	return owner, name, desc, nil
}

func (r *rebuilder) nameType(index uint16) (string, string, bool) {
	nt, ok := r.cp.Get(index).(*ConstantNameAndTypeInfo)
	if !ok {
		return "", "", false
	}
	name, okName := r.cp.LookupUtf8(nt.NameIndex)
	desc, okDesc := r.cp.LookupUtf8(nt.DescriptorIndex)
	return name, desc, okName && okDesc
}

// localTable names and types local variable slots from the
// LocalVariableTable, falling back to the method descriptor and opcode.
type localTable struct {
	cp      *ConstantPool
	entries []LocalVariableEntry
	static  bool
	params  map[int]ast.Type
}

func newLocalTable(m *MethodInfo, cp *ConstantPool) *localTable {
	lt := &localTable{
		cp:     cp,
		static: m.IsStatic(),
		params: make(map[int]ast.Type),
	}
	if m.Code != nil {
		for _, a := range m.Code.Attributes {
			if lvt, ok := a.(*LocalVariableTableAttribute); ok {
				lt.entries = append(lt.entries, lvt.LocalVariableTable...)
			}
		}
	}
	slot := 0
	if !lt.static {
		lt.params[0] = ast.ClassOf(m.Owner)
		slot = 1
	}
	desc, _ := cp.LookupUtf8(m.DescriptorIndex)
	if md := ParseMethodDescriptor(desc); md != nil {
		for i := range md.Parameters {
			t := md.Parameters[i].NodeType()
			lt.params[slot] = t
			slot += t.Category()
		}
	}
	return lt
}

func compatible(t, want ast.Type) bool {
	switch {
	case want.IsReference():
		return t.IsReference()
	case want.Kind == ast.Int:
		return t.Dims == 0 && (t.Kind == ast.Int || t.Kind == ast.Boolean || t.Kind == ast.Byte ||
			t.Kind == ast.Char || t.Kind == ast.Short)
	}
	return t.Dims == 0 && t.Kind == want.Kind
}

// local builds the expression for slot n at the given code offsets, the
// first of which wins when the table has entries for several.
func (lt *localTable) local(n int, want ast.Type, pcs ...int) *ast.LocalExpr {
	for _, pc := range pcs {
		for _, e := range lt.entries {
			if int(e.Index) != n || pc < int(e.StartPC) || pc >= int(e.StartPC)+int(e.Length) {
				continue
			}
			name, ok := lt.cp.LookupUtf8(e.NameIndex)
			if !ok {
				continue
			}
			typ := want
			if desc, ok := lt.cp.LookupUtf8(e.DescriptorIndex); ok {
				if t := TypeOfDescriptor(desc); compatible(t, want) {
					typ = t
				}
			}
			return ast.NewLocal(n, name, typ)
		}
	}
	typ := want
	if t, ok := lt.params[n]; ok && compatible(t, want) {
		typ = t
	}
	if n == 0 && !lt.static {
		return ast.NewLocal(0, "this", typ)
	}
	return ast.NewLocal(n, fmt.Sprintf("local%d", n), typ)
}

// exceptionRanges groups the exception table by protected range, widest
// first among ranges starting at the same offset.
func (r *rebuilder) exceptionRanges() []*tryRange {
	var ranges []*tryRange
	index := make(map[[2]uint16]*tryRange)
	for _, e := range r.code.ExceptionTable {
		key := [2]uint16{e.StartPC, e.EndPC}
		tr, ok := index[key]
		if !ok {
			tr = &tryRange{start: int(e.StartPC), end: int(e.EndPC), next: int(e.StartPC)}
			index[key] = tr
			ranges = append(ranges, tr)
		}
		name, _ := r.catchType(e)
		tr.handlers = append(tr.handlers, handler{pc: int(e.HandlerPC), class: name})
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].start != ranges[j].start {
			return ranges[i].start < ranges[j].start
		}
		return ranges[i].end > ranges[j].end
	})
	return ranges
}

type handler struct {
	pc    int
	class string
}

// tryRange is one protected range with its handlers. next is the offset up
// to which the range has already been wrapped in try statements.
type tryRange struct {
	start, end int
	next       int
	handlers   []handler
}
