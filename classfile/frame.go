package classfile

import (
	"fmt"

	"github.com/dhamidi/rebuild/ast"
)

// slot is one operand stack entry. expr is nil for an object that has been
// allocated by new but whose constructor has not run yet; such slots carry
// the allocating instruction's offset in newPC.
type slot struct {
	expr  ast.Expr
	typ   ast.Type
	newPC int
}

func (s slot) category() int {
	if s.expr == nil {
		return 1
	}
	return s.expr.Type().Category()
}

// frame is the simulation state of one block. Values stay on the stack as
// unevaluated trees; before a statement is emitted, every entry whose value
// the statement could change or whose evaluation has effects is moved into
// a temporary so evaluation order is preserved.
type frame struct {
	r     *rebuilder
	b     *block
	stack []slot
	stmts []ast.Stmt
	pc    int
}

func (f *frame) fail(err error) error {
	return f.r.fail(f.pc, err)
}

func (f *frame) push(e ast.Expr) {
	f.stack = append(f.stack, slot{expr: e, newPC: -1})
}

func (f *frame) pop() (slot, error) {
	if len(f.stack) == 0 {
		return slot{}, f.fail(ErrStackUnderflow)
	}
	s := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return s, nil
}

func (f *frame) popExpr() (ast.Expr, error) {
	s, err := f.pop()
	if err != nil {
		return nil, err
	}
	if s.expr == nil {
		return nil, f.fail(fmt.Errorf("%w: uninitialized %s used as a value", ErrInconsistent, s.typ))
	}
	return s.expr, nil
}

// popN pops n values and returns them in the order they were pushed.
func (f *frame) popN(n int) ([]ast.Expr, error) {
	if len(f.stack) < n {
		return nil, f.fail(ErrStackUnderflow)
	}
	out := make([]ast.Expr, n)
	for i := n - 1; i >= 0; i-- {
		e, err := f.popExpr()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (f *frame) emit(s ast.Stmt) {
	f.stmts = append(f.stmts, s)
}

func simple(e ast.Expr) bool {
	switch e.(type) {
	case *ast.ConstExpr, *ast.LocalExpr, *ast.StackVarExpr, *ast.CaughtExceptionExpr:
		return true
	}
	return false
}

func clone(e ast.Expr) ast.Expr {
	switch x := e.(type) {
	case *ast.ConstExpr:
		return ast.NewConst(x.Value, x.Type())
	case *ast.LocalExpr:
		return ast.NewLocal(x.Slot, x.Name, x.Type())
	case *ast.StackVarExpr:
		return ast.NewStackVar(x.Name, x.Type())
	case *ast.CaughtExceptionExpr:
		return ast.NewCaughtException(x.Type())
	}
	panic(fmt.Sprintf("classfile: clone of %T", e))
}

func readsLocal(e ast.Expr, n int) bool {
	found := false
	ast.Inspect(e, func(node ast.CodeNode) {
		if l, ok := node.(*ast.LocalExpr); ok && l.Slot == n {
			found = true
		}
	})
	return found
}

// spillAt moves stack entry i into a fresh temporary.
func (f *frame) spillAt(i int) {
	e := f.stack[i].expr
	name := f.r.newTemp()
	f.emit(&ast.AssignStmt{Target: ast.NewStackVar(name, e.Type()), Value: e})
	f.stack[i].expr = ast.NewStackVar(name, e.Type())
}

func (f *frame) spill(pred func(ast.Expr) bool) {
	for i := range f.stack {
		if e := f.stack[i].expr; e != nil && !simple(e) && pred(e) {
			f.spillAt(i)
		}
	}
}

// flush evaluates every pending entry that has side effects or reads
// mutable state.
func (f *frame) flush() {
	f.spill(func(e ast.Expr) bool { return !ast.IsPure(e) })
}

func (f *frame) flushLocal(n int) {
	f.spill(func(e ast.Expr) bool { return !ast.IsPure(e) || readsLocal(e, n) })
}

// materialize makes entry i safe to copy.
func (f *frame) materialize(i int) {
	e := f.stack[i].expr
	if e == nil || simple(e) {
		return
	}
	if !ast.IsPure(e) {
		for j := 0; j < i; j++ {
			if below := f.stack[j].expr; below != nil && !simple(below) && !ast.IsPure(below) {
				f.spillAt(j)
			}
		}
	}
	f.spillAt(i)
}

func (s slot) copy() slot {
	if s.expr == nil {
		return s
	}
	return slot{expr: clone(s.expr), newPC: -1}
}

// groupSize is the number of top slots that make up the given number of
// stack words.
func (f *frame) groupSize(from, words int) (int, error) {
	n, w := 0, 0
	for w < words {
		i := from - 1 - n
		if i < 0 {
			return 0, f.fail(ErrStackUnderflow)
		}
		w += f.stack[i].category()
		n++
	}
	if w != words {
		return 0, f.fail(fmt.Errorf("%w: category 2 value split by stack operation", ErrInconsistent))
	}
	return n, nil
}

// dup copies the top words and inserts the copy below the skip words
// underneath them.
func (f *frame) dup(words, skip int) error {
	top, err := f.groupSize(len(f.stack), words)
	if err != nil {
		return err
	}
	below := 0
	if skip > 0 {
		if below, err = f.groupSize(len(f.stack)-top, skip); err != nil {
			return err
		}
	}
	base := len(f.stack) - top - below
	for i := len(f.stack) - top; i < len(f.stack); i++ {
		f.materialize(i)
	}
	if below > 0 {
		for i := len(f.stack) - top; i < len(f.stack); i++ {
			if e := f.stack[i].expr; e != nil && !simple(e) {
				f.spillAt(i)
			}
		}
	}
	topSlots := append([]slot(nil), f.stack[len(f.stack)-top:]...)
	belowSlots := append([]slot(nil), f.stack[base:len(f.stack)-top]...)
	f.stack = f.stack[:base]
	for _, s := range topSlots {
		f.stack = append(f.stack, s.copy())
	}
	f.stack = append(f.stack, belowSlots...)
	f.stack = append(f.stack, topSlots...)
	return nil
}

// assignOutgoing stores the values left on the stack into the stack
// variables the successor blocks read. extra is the branch condition or
// switch key, evaluated after the stores; it is returned rewritten if the
// stores would clobber a variable it reads.
func (f *frame) assignOutgoing(extra ast.Expr) ast.Expr {
	type pending struct {
		index int
		name  string
		e     ast.Expr
	}
	var assigns []pending
	for i, s := range f.stack {
		if s.expr == nil {
			continue
		}
		name := stackVarName(i)
		if sv, ok := s.expr.(*ast.StackVarExpr); ok && sv.Name == name {
			continue
		}
		assigns = append(assigns, pending{index: i, name: name, e: s.expr})
	}
	if len(assigns) == 0 {
		return extra
	}

	conflict := false
	for k, a := range assigns {
		for _, prev := range assigns[:k] {
			conflict = conflict || ast.References(a.e, prev.name)
		}
		conflict = conflict || (extra != nil && ast.References(extra, a.name))
	}

	if conflict {
		for k := range assigns {
			name := f.r.newTemp()
			f.emit(&ast.AssignStmt{Target: ast.NewStackVar(name, assigns[k].e.Type()), Value: assigns[k].e})
			assigns[k].e = ast.NewStackVar(name, assigns[k].e.Type())
		}
		extra = f.settle(extra)
	}
	for _, a := range assigns {
		f.emit(&ast.AssignStmt{Target: ast.NewStackVar(a.name, a.e.Type()), Value: a.e})
		f.stack[a.index].expr = ast.NewStackVar(a.name, a.e.Type())
	}
	return extra
}

// settle evaluates the operands of a branch condition, or a switch key,
// into temporaries.
func (f *frame) settle(e ast.Expr) ast.Expr {
	temp := func(x ast.Expr) ast.Expr {
		if _, ok := x.(*ast.ConstExpr); ok {
			return x
		}
		name := f.r.newTemp()
		f.emit(&ast.AssignStmt{Target: ast.NewStackVar(name, x.Type()), Value: x})
		return ast.NewStackVar(name, x.Type())
	}
	switch x := e.(type) {
	case nil:
		return nil
	case *ast.CondExpr:
		return &ast.CondExpr{Op: x.Op, Left: temp(x.Left), Right: temp(x.Right)}
	}
	return temp(e)
}

var (
	loadTypes   = [...]ast.Type{ast.IntType, ast.LongType, ast.FloatType, ast.DoubleType, ast.ObjectType}
	arrayTypes  = [...]ast.Type{ast.IntType, ast.LongType, ast.FloatType, ast.DoubleType, ast.ObjectType, ast.ByteType, ast.CharType, ast.ShortType}
	numTypes    = [...]ast.Type{ast.IntType, ast.LongType, ast.FloatType, ast.DoubleType}
	arithOps    = [...]ast.ArithOp{ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpRem}
	shiftOps    = [...]ast.ArithOp{ast.OpShl, ast.OpShr, ast.OpUshr}
	logicOps    = [...]ast.ArithOp{ast.OpAnd, ast.OpIor, ast.OpXor}
	condOps     = [...]ast.CondOp{ast.CondEQ, ast.CondNE, ast.CondLT, ast.CondGE, ast.CondGT, ast.CondLE}
	convertType = [...]ast.Type{
		ast.LongType, ast.FloatType, ast.DoubleType,
		ast.IntType, ast.FloatType, ast.DoubleType,
		ast.IntType, ast.LongType, ast.DoubleType,
		ast.IntType, ast.LongType, ast.FloatType,
		ast.ByteType, ast.CharType, ast.ShortType,
	}
	newarrayTypes = map[int]ast.Type{
		4: ast.BooleanType, 5: ast.CharType, 6: ast.FloatType, 7: ast.DoubleType,
		8: ast.ByteType, 9: ast.ShortType, 10: ast.IntType, 11: ast.LongType,
	}
)

func zero() ast.Expr {
	return ast.NewConst(int32(0), ast.IntType)
}

// condition builds the test of a conditional branch. A three-way compare
// tested against zero folds into a direct comparison of its operands.
func condition(op ast.CondOp, left, right ast.Expr) ast.Expr {
	if cmp, ok := left.(*ast.ArithExpr); ok && cmp.Op.IsCompare() {
		if c, ok := right.(*ast.ConstExpr); ok && c.Value == int32(0) {
			// Folding fcmpl and fcmpg alike drops which way NaN compares.
			return &ast.CondExpr{Op: op, Left: cmp.Left, Right: cmp.Right}
		}
	}
	return &ast.CondExpr{Op: op, Left: left, Right: right}
}

func (f *frame) exec(in *Instruction, next int) error {
	op := in.Op
	lt := f.r.locals
	switch {
	case op == OpNop:

	case op == OpAconstNull:
		f.push(ast.NewConst(nil, ast.ObjectType))
	case op >= OpIconstM1 && op <= OpIconst5:
		f.push(ast.NewConst(int32(op)-int32(OpIconst0), ast.IntType))
	case op == OpLconst0 || op == OpLconst1:
		f.push(ast.NewConst(int64(op-OpLconst0), ast.LongType))
	case op >= OpFconst0 && op <= OpFconst2:
		f.push(ast.NewConst(float32(op-OpFconst0), ast.FloatType))
	case op == OpDconst0 || op == OpDconst1:
		f.push(ast.NewConst(float64(op-OpDconst0), ast.DoubleType))
	case op == OpBipush || op == OpSipush:
		f.push(ast.NewConst(in.Value, ast.IntType))
	case op == OpLdc || op == OpLdcW || op == OpLdc2W:
		return f.ldc(in)

	case op >= OpIload && op <= OpAload:
		f.push(lt.local(in.Index, loadTypes[op-OpIload], in.PC))
	case op >= OpIload0 && op <= OpAload3:
		k := int(op - OpIload0)
		f.push(lt.local(k%4, loadTypes[k/4], in.PC))
	case op >= OpIaload && op <= OpSaload:
		idx, err := f.popExpr()
		if err != nil {
			return err
		}
		arr, err := f.popExpr()
		if err != nil {
			return err
		}
		typ := arrayTypes[op-OpIaload]
		if at := arr.Type(); at.IsArray() && (op == OpAaload || op == OpBaload) {
			typ = at.Elem()
		}
		f.push(ast.NewArrayLoad(arr, idx, typ))

	case op >= OpIstore && op <= OpAstore:
		return f.store(in.Index, loadTypes[op-OpIstore], in.PC, next)
	case op >= OpIstore0 && op <= OpAstore3:
		k := int(op - OpIstore0)
		return f.store(k%4, loadTypes[k/4], in.PC, next)
	case op >= OpIastore && op <= OpSastore:
		vals, err := f.popN(3)
		if err != nil {
			return err
		}
		typ := arrayTypes[op-OpIastore]
		if at := vals[0].Type(); at.IsArray() {
			typ = at.Elem()
		}
		f.flush()
		f.emit(&ast.AssignStmt{Target: ast.NewArrayLoad(vals[0], vals[1], typ), Value: vals[2]})

	case op == OpPop:
		return f.discard(1)
	case op == OpPop2:
		if len(f.stack) > 0 && f.stack[len(f.stack)-1].category() == 2 {
			return f.discard(1)
		}
		return f.discard(2)
	case op == OpDup:
		return f.dup(1, 0)
	case op == OpDupX1:
		return f.dup(1, 1)
	case op == OpDupX2:
		return f.dup(1, 2)
	case op == OpDup2:
		return f.dup(2, 0)
	case op == OpDup2X1:
		return f.dup(2, 1)
	case op == OpDup2X2:
		return f.dup(2, 2)
	case op == OpSwap:
		if len(f.stack) < 2 {
			return f.fail(ErrStackUnderflow)
		}
		n := len(f.stack)
		if f.stack[n-1].category() != 1 || f.stack[n-2].category() != 1 {
			return f.fail(fmt.Errorf("%w: swap of a category 2 value", ErrInconsistent))
		}
		for _, i := range []int{n - 2, n - 1} {
			if e := f.stack[i].expr; e != nil && !simple(e) {
				f.materialize(i)
			}
		}
		f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

	case op >= OpIadd && op <= OpDrem:
		k := int(op - OpIadd)
		return f.binary(arithOps[k/4], numTypes[k%4])
	case op >= OpIneg && op <= OpDneg:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		f.push(&ast.NegExpr{Operand: v})
	case op >= OpIshl && op <= OpLushr:
		k := int(op - OpIshl)
		return f.binary(shiftOps[k/2], numTypes[k%2])
	case op >= OpIand && op <= OpLxor:
		k := int(op - OpIand)
		return f.binary(logicOps[k/2], numTypes[k%2])
	case op == OpIinc:
		f.flushLocal(in.Index)
		f.emit(&ast.IncStmt{Local: lt.local(in.Index, ast.IntType, in.PC), Delta: in.Value})
	case op >= OpI2l && op <= OpI2s:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		f.push(&ast.ConvertExpr{Operand: v, To: convertType[op-OpI2l]})
	case op == OpLcmp:
		return f.binary(ast.OpCmp, ast.IntType)
	case op == OpFcmpl || op == OpDcmpl:
		return f.binary(ast.OpCmpL, ast.IntType)
	case op == OpFcmpg || op == OpDcmpg:
		return f.binary(ast.OpCmpG, ast.IntType)

	case op >= OpIfeq && op <= OpIfle:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		f.b.term.cond = condition(condOps[op-OpIfeq], v, zero())
	case op >= OpIfIcmpeq && op <= OpIfAcmpne:
		vals, err := f.popN(2)
		if err != nil {
			return err
		}
		cop := ast.CondEQ
		if op <= OpIfIcmple {
			cop = condOps[op-OpIfIcmpeq]
		} else if op == OpIfAcmpne {
			cop = ast.CondNE
		}
		f.b.term.cond = &ast.CondExpr{Op: cop, Left: vals[0], Right: vals[1]}
	case op == OpIfnull || op == OpIfnonnull:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		cop := ast.CondEQ
		if op == OpIfnonnull {
			cop = ast.CondNE
		}
		f.b.term.cond = &ast.CondExpr{Op: cop, Left: v, Right: ast.NewConst(nil, ast.ObjectType)}
	case op == OpGoto || op == OpGotoW:

	case op == OpTableswitch || op == OpLookupswitch:
		key, err := f.popExpr()
		if err != nil {
			return err
		}
		f.b.term.key = key

	case op >= OpIreturn && op <= OpAreturn:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		f.flush()
		f.emit(&ast.ReturnStmt{Value: v})
	case op == OpReturn:
		f.flush()
		f.emit(&ast.ReturnStmt{})

	case op >= OpGetstatic && op <= OpPutfield:
		return f.field(in)
	case op >= OpInvokevirtual && op <= OpInvokedynamic:
		return f.invoke(in)

	case op == OpNew:
		name, ok := f.r.className(uint16(in.Index))
		if !ok {
			return f.fail(fmt.Errorf("%w: new operand %d", ErrBadIndex, in.Index))
		}
		f.stack = append(f.stack, slot{typ: ast.ClassOf(name), newPC: in.PC})
	case op == OpNewarray:
		elem, ok := newarrayTypes[in.Index]
		if !ok {
			return f.fail(fmt.Errorf("%w: newarray type %d", ErrBadOpcode, in.Index))
		}
		n, err := f.popExpr()
		if err != nil {
			return err
		}
		f.push(ast.NewNewArray(elem, []ast.Expr{n}, ast.ArrayOf(elem)))
	case op == OpAnewarray:
		name, ok := f.r.className(uint16(in.Index))
		if !ok {
			return f.fail(fmt.Errorf("%w: anewarray operand %d", ErrBadIndex, in.Index))
		}
		n, err := f.popExpr()
		if err != nil {
			return err
		}
		elem := TypeOfClassRef(name)
		f.push(ast.NewNewArray(elem, []ast.Expr{n}, ast.ArrayOf(elem)))
	case op == OpMultianewarray:
		name, ok := f.r.className(uint16(in.Index))
		typ := TypeOfClassRef(name)
		if !ok || in.Value < 1 || int(in.Value) > typ.Dims {
			return f.fail(fmt.Errorf("%w: multianewarray operand %d", ErrBadIndex, in.Index))
		}
		dims, err := f.popN(int(in.Value))
		if err != nil {
			return err
		}
		elem := typ
		elem.Dims -= len(dims)
		f.push(ast.NewNewArray(elem, dims, typ))
	case op == OpArraylength:
		arr, err := f.popExpr()
		if err != nil {
			return err
		}
		f.push(&ast.ArrayLengthExpr{Array: arr})
	case op == OpAthrow:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		f.flush()
		f.emit(&ast.ThrowStmt{Value: v})
	case op == OpCheckcast || op == OpInstanceof:
		name, ok := f.r.className(uint16(in.Index))
		if !ok {
			return f.fail(fmt.Errorf("%w: %s operand %d", ErrBadIndex, op, in.Index))
		}
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		if op == OpCheckcast {
			f.push(&ast.CastExpr{Operand: v, To: TypeOfClassRef(name)})
		} else {
			f.push(&ast.InstanceOfExpr{Operand: v, Class: TypeOfClassRef(name)})
		}
	case op == OpMonitorenter || op == OpMonitorexit:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		f.flush()
		f.emit(&ast.MonitorStmt{Enter: op == OpMonitorenter, Object: v})

	default:
		return f.fail(fmt.Errorf("%w: %s", ErrBadOpcode, op))
	}
	return nil
}

func (f *frame) binary(op ast.ArithOp, typ ast.Type) error {
	vals, err := f.popN(2)
	if err != nil {
		return err
	}
	f.push(ast.NewArith(op, vals[0], vals[1], typ))
	return nil
}

func (f *frame) store(n int, want ast.Type, pc, next int) error {
	v, err := f.popExpr()
	if err != nil {
		return err
	}
	if want.IsReference() && v.Type().IsReference() {
		want = v.Type()
	}
	f.flushLocal(n)
	f.emit(&ast.AssignStmt{Target: f.r.locals.local(n, want, next, pc), Value: v})
	return nil
}

// discard pops n slots, keeping the evaluation of any with side effects.
func (f *frame) discard(n int) error {
	if len(f.stack) < n {
		return f.fail(ErrStackUnderflow)
	}
	popped := append([]slot(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]
	for _, s := range popped {
		if s.expr == nil || ast.IsPure(s.expr) {
			continue
		}
		f.flush()
		f.emit(&ast.ExprStmt{X: s.expr})
	}
	return nil
}

func (f *frame) ldc(in *Instruction) error {
	cp := f.r.cp
	var c ast.Expr
	switch e := cp.Get(uint16(in.Index)).(type) {
	case *ConstantIntegerInfo:
		c = ast.NewConst(e.Value, ast.IntType)
	case *ConstantFloatInfo:
		c = ast.NewConst(e.Value, ast.FloatType)
	case *ConstantLongInfo:
		c = ast.NewConst(e.Value, ast.LongType)
	case *ConstantDoubleInfo:
		c = ast.NewConst(e.Value, ast.DoubleType)
	case *ConstantStringInfo:
		if s, ok := cp.LookupUtf8(e.StringIndex); ok {
			c = ast.NewConst(s, ast.StringType)
		}
	case *ConstantClassInfo:
		if s, ok := cp.LookupUtf8(e.NameIndex); ok {
			c = ast.NewConst(ast.ClassLiteral(s), ast.ClassType)
		}
	case *ConstantSkippedInfo:
		c = ast.NewConst(ast.SymbolicConst(e.Kind.String()), ast.ObjectType)
	}
	if c == nil {
		return f.fail(fmt.Errorf("%w: %s operand %d", ErrBadIndex, in.Op, in.Index))
	}
	f.push(c)
	return nil
}

func (f *frame) field(in *Instruction) error {
	owner, name, desc, err := f.r.memberRef(in)
	if err != nil {
		return err
	}
	typ := TypeOfDescriptor(desc)
	switch in.Op {
	case OpGetstatic:
		f.push(ast.NewField(owner, name, desc, nil, typ))
	case OpGetfield:
		obj, err := f.popExpr()
		if err != nil {
			return err
		}
		f.push(ast.NewField(owner, name, desc, obj, typ))
	case OpPutstatic:
		v, err := f.popExpr()
		if err != nil {
			return err
		}
		f.flush()
		f.emit(&ast.AssignStmt{Target: ast.NewField(owner, name, desc, nil, typ), Value: v})
	case OpPutfield:
		vals, err := f.popN(2)
		if err != nil {
			return err
		}
		f.flush()
		f.emit(&ast.AssignStmt{Target: ast.NewField(owner, name, desc, vals[0], typ), Value: vals[1]})
	}
	return nil
}

var invokeKinds = map[Opcode]ast.InvokeKind{
	OpInvokevirtual:   ast.InvokeVirtual,
	OpInvokespecial:   ast.InvokeSpecial,
	OpInvokestatic:    ast.InvokeStatic,
	OpInvokeinterface: ast.InvokeInterface,
	OpInvokedynamic:   ast.InvokeDynamic,
}

func (f *frame) invoke(in *Instruction) error {
	kind := invokeKinds[in.Op]
	var owner, name, desc string
	if in.Op == OpInvokedynamic {
		nt, ok := f.r.cp.CallSite(uint16(in.Index))
		if ok {
			var okName, okDesc bool
			name, okName = f.r.cp.LookupUtf8(nt.NameIndex)
			desc, okDesc = f.r.cp.LookupUtf8(nt.DescriptorIndex)
			ok = okName && okDesc
		}
		if !ok {
			return f.fail(fmt.Errorf("%w: invokedynamic operand %d", ErrBadIndex, in.Index))
		}
	} else {
		var err error
		if owner, name, desc, err = f.r.memberRef(in); err != nil {
			return err
		}
	}
	md := ParseMethodDescriptor(desc)
	if md == nil {
		return f.fail(fmt.Errorf("%w: malformed descriptor %q", ErrBadIndex, desc))
	}

	args, err := f.popN(len(md.Parameters))
	if err != nil {
		return err
	}
	var recv slot
	if kind != ast.InvokeStatic && kind != ast.InvokeDynamic {
		if recv, err = f.pop(); err != nil {
			return err
		}
		if recv.expr == nil {
			if in.Op != OpInvokespecial || name != "<init>" {
				return f.fail(fmt.Errorf("%w: %s called on uninitialized %s", ErrInconsistent, name, recv.typ))
			}
			f.construct(recv, desc, args)
			return nil
		}
	}

	ret := md.ReturnType.NodeType()
	call := ast.NewInvoke(kind, owner, name, desc, recv.expr, args, ret)
	if ret.Kind == ast.Void && !ret.IsArray() {
		f.flush()
		f.emit(&ast.ExprStmt{X: call})
		return nil
	}
	f.push(call)
	return nil
}

// construct completes a new/dup/<init> sequence: the uninitialized slots
// for the same allocation become the constructed object.
func (f *frame) construct(recv slot, desc string, args []ast.Expr) {
	obj := &ast.NewExpr{Class: recv.typ.Class, Descriptor: desc, Args: args}
	var copies []int
	for i, s := range f.stack {
		if s.expr == nil && s.newPC == recv.newPC {
			copies = append(copies, i)
		}
	}
	switch len(copies) {
	case 0:
		f.flush()
		f.emit(&ast.ExprStmt{X: obj})
	case 1:
		f.stack[copies[0]] = slot{expr: obj, newPC: -1}
	default:
		f.flush()
		name := f.r.newTemp()
		f.emit(&ast.AssignStmt{Target: ast.NewStackVar(name, obj.Type()), Value: obj})
		for _, i := range copies {
			f.stack[i] = slot{expr: ast.NewStackVar(name, obj.Type()), newPC: -1}
		}
	}
}
