package ast

// CodeNode is either an Expr or a Stmt. Accept walks the node's children
// before reporting the node itself to the visitor.
type CodeNode interface {
	Accept(v CodeVisitor)
}

type Expr interface {
	CodeNode
	Type() Type
	exprNode()
}

type ArithOp uint8

const (
	OpAdd ArithOp = iota
	OpAnd
	OpCmp
	OpCmpG
	OpCmpL
	OpDiv
	OpIor
	OpMul
	OpRem
	OpSub
	OpXor
	OpShl
	OpShr
	OpUshr
)

var arithSymbols = [...]string{
	OpAdd:  "+",
	OpAnd:  "&",
	OpCmp:  "cmp",
	OpCmpG: "cmpg",
	OpCmpL: "cmpl",
	OpDiv:  "/",
	OpIor:  "|",
	OpMul:  "*",
	OpRem:  "%",
	OpSub:  "-",
	OpXor:  "^",
	OpShl:  "<<",
	OpShr:  ">>",
	OpUshr: ">>>",
}

var arithNames = [...]string{
	OpAdd:  "add",
	OpAnd:  "and",
	OpCmp:  "cmp",
	OpCmpG: "cmpg",
	OpCmpL: "cmpl",
	OpDiv:  "div",
	OpIor:  "ior",
	OpMul:  "mul",
	OpRem:  "rem",
	OpSub:  "sub",
	OpXor:  "xor",
	OpShl:  "shl",
	OpShr:  "shr",
	OpUshr: "ushr",
}

func (op ArithOp) String() string {
	if int(op) < len(arithNames) {
		return arithNames[op]
	}
	return "invalid"
}

// Symbol is the source-level spelling; comparisons have none and use
// their mnemonic.
func (op ArithOp) Symbol() string {
	if int(op) < len(arithSymbols) {
		return arithSymbols[op]
	}
	return "?"
}

// IsCompare reports whether op is one of the three-way comparisons.
func (op ArithOp) IsCompare() bool {
	return op == OpCmp || op == OpCmpG || op == OpCmpL
}

type CondOp uint8

const (
	CondEQ CondOp = iota
	CondNE
	CondLT
	CondGE
	CondGT
	CondLE
)

var condSymbols = [...]string{
	CondEQ: "==",
	CondNE: "!=",
	CondLT: "<",
	CondGE: ">=",
	CondGT: ">",
	CondLE: "<=",
}

func (op CondOp) String() string {
	if int(op) < len(condSymbols) {
		return condSymbols[op]
	}
	return "?"
}

func (op CondOp) Negate() CondOp {
	return op ^ 1
}

type InvokeKind uint8

const (
	InvokeVirtual InvokeKind = iota
	InvokeSpecial
	InvokeStatic
	InvokeInterface
	InvokeDynamic
)

var invokeNames = [...]string{
	InvokeVirtual:   "virtual",
	InvokeSpecial:   "special",
	InvokeStatic:    "static",
	InvokeInterface: "interface",
	InvokeDynamic:   "dynamic",
}

func (k InvokeKind) String() string {
	if int(k) < len(invokeNames) {
		return invokeNames[k]
	}
	return "invalid"
}

// ClassLiteral is the value of a constant naming a class (Foo.class).
type ClassLiteral string

// SymbolicConst is the value of a loaded constant whose payload is not
// modeled, such as a method handle; it holds the constant's kind.
type SymbolicConst string

// ConstExpr is a literal. Value is nil for the null reference, or one of
// int32, int64, float32, float64, string, ClassLiteral, SymbolicConst.
type ConstExpr struct {
	Value any
	typ   Type
}

func NewConst(value any, typ Type) *ConstExpr {
	return &ConstExpr{Value: value, typ: typ}
}

type LocalExpr struct {
	Slot int
	Name string
	typ  Type
}

func NewLocal(slot int, name string, typ Type) *LocalExpr {
	return &LocalExpr{Slot: slot, Name: name, typ: typ}
}

// StackVarExpr names a value that was live on the operand stack across an
// instruction boundary the tree could not nest through.
type StackVarExpr struct {
	Name string
	typ  Type
}

func NewStackVar(name string, typ Type) *StackVarExpr {
	return &StackVarExpr{Name: name, typ: typ}
}

// CaughtExceptionExpr is the exception object a handler starts with.
type CaughtExceptionExpr struct {
	typ Type
}

func NewCaughtException(typ Type) *CaughtExceptionExpr {
	return &CaughtExceptionExpr{typ: typ}
}

type ArithExpr struct {
	Op    ArithOp
	Left  Expr
	Right Expr
	typ   Type
}

func NewArith(op ArithOp, left, right Expr, typ Type) *ArithExpr {
	return &ArithExpr{Op: op, Left: left, Right: right, typ: typ}
}

type NegExpr struct {
	Operand Expr
}

type ConvertExpr struct {
	Operand Expr
	To      Type
}

// CondExpr is a boolean comparison taken from a conditional branch.
// Comparisons against zero or null carry an explicit constant Right.
type CondExpr struct {
	Op    CondOp
	Left  Expr
	Right Expr
}

// FieldExpr reads a field. Object is nil for static fields.
type FieldExpr struct {
	Owner      string
	Name       string
	Descriptor string
	Object     Expr
	typ        Type
}

func NewField(owner, name, desc string, object Expr, typ Type) *FieldExpr {
	return &FieldExpr{Owner: owner, Name: name, Descriptor: desc, Object: object, typ: typ}
}

// InvokeExpr calls a method. Receiver is nil for static and dynamic calls.
type InvokeExpr struct {
	Kind       InvokeKind
	Owner      string
	Name       string
	Descriptor string
	Receiver   Expr
	Args       []Expr
	typ        Type
}

func NewInvoke(kind InvokeKind, owner, name, desc string, receiver Expr, args []Expr, typ Type) *InvokeExpr {
	return &InvokeExpr{Kind: kind, Owner: owner, Name: name, Descriptor: desc, Receiver: receiver, Args: args, typ: typ}
}

// NewExpr allocates and initializes an object in one step.
type NewExpr struct {
	Class      string
	Descriptor string
	Args       []Expr
}

type NewArrayExpr struct {
	Elem Type
	Dims []Expr
	typ  Type
}

func NewNewArray(elem Type, dims []Expr, typ Type) *NewArrayExpr {
	return &NewArrayExpr{Elem: elem, Dims: dims, typ: typ}
}

type ArrayLoadExpr struct {
	Array Expr
	Index Expr
	typ   Type
}

func NewArrayLoad(array, index Expr, typ Type) *ArrayLoadExpr {
	return &ArrayLoadExpr{Array: array, Index: index, typ: typ}
}

type ArrayLengthExpr struct {
	Array Expr
}

type CastExpr struct {
	Operand Expr
	To      Type
}

type InstanceOfExpr struct {
	Operand Expr
	Class   Type
}

func (e *ConstExpr) Type() Type           { return e.typ }
func (e *LocalExpr) Type() Type           { return e.typ }
func (e *StackVarExpr) Type() Type        { return e.typ }
func (e *CaughtExceptionExpr) Type() Type { return e.typ }
func (e *ArithExpr) Type() Type           { return e.typ }
func (e *NegExpr) Type() Type             { return e.Operand.Type() }
func (e *ConvertExpr) Type() Type         { return e.To }
func (e *CondExpr) Type() Type            { return BooleanType }
func (e *FieldExpr) Type() Type           { return e.typ }
func (e *InvokeExpr) Type() Type          { return e.typ }
func (e *NewExpr) Type() Type             { return ClassOf(e.Class) }
func (e *NewArrayExpr) Type() Type        { return e.typ }
func (e *ArrayLoadExpr) Type() Type       { return e.typ }
func (e *ArrayLengthExpr) Type() Type     { return IntType }
func (e *CastExpr) Type() Type            { return e.To }
func (e *InstanceOfExpr) Type() Type      { return BooleanType }

func (*ConstExpr) exprNode()           {}
func (*LocalExpr) exprNode()           {}
func (*StackVarExpr) exprNode()        {}
func (*CaughtExceptionExpr) exprNode() {}
func (*ArithExpr) exprNode()           {}
func (*NegExpr) exprNode()             {}
func (*ConvertExpr) exprNode()         {}
func (*CondExpr) exprNode()            {}
func (*FieldExpr) exprNode()           {}
func (*InvokeExpr) exprNode()          {}
func (*NewExpr) exprNode()             {}
func (*NewArrayExpr) exprNode()        {}
func (*ArrayLoadExpr) exprNode()       {}
func (*ArrayLengthExpr) exprNode()     {}
func (*CastExpr) exprNode()            {}
func (*InstanceOfExpr) exprNode()      {}

func (e *ConstExpr) Accept(v CodeVisitor) {
	v.VisitConst(e)
	v.EnterExpression(e)
}

func (e *LocalExpr) Accept(v CodeVisitor) {
	v.VisitLocal(e)
	v.EnterExpression(e)
}

func (e *StackVarExpr) Accept(v CodeVisitor) {
	v.VisitStackVar(e)
	v.EnterExpression(e)
}

func (e *CaughtExceptionExpr) Accept(v CodeVisitor) {
	v.VisitCaughtException(e)
	v.EnterExpression(e)
}

func (e *ArithExpr) Accept(v CodeVisitor) {
	e.Left.Accept(v)
	e.Right.Accept(v)
	v.VisitArith(e)
	v.EnterExpression(e)
}

func (e *NegExpr) Accept(v CodeVisitor) {
	e.Operand.Accept(v)
	v.VisitNeg(e)
	v.EnterExpression(e)
}

func (e *ConvertExpr) Accept(v CodeVisitor) {
	e.Operand.Accept(v)
	v.VisitConvert(e)
	v.EnterExpression(e)
}

func (e *CondExpr) Accept(v CodeVisitor) {
	e.Left.Accept(v)
	e.Right.Accept(v)
	v.VisitCond(e)
	v.EnterExpression(e)
}

func (e *FieldExpr) Accept(v CodeVisitor) {
	if e.Object != nil {
		e.Object.Accept(v)
	}
	v.VisitField(e)
	v.EnterExpression(e)
}

func (e *InvokeExpr) Accept(v CodeVisitor) {
	if e.Receiver != nil {
		e.Receiver.Accept(v)
	}
	for _, arg := range e.Args {
		arg.Accept(v)
	}
	v.VisitInvoke(e)
	v.EnterExpression(e)
}

func (e *NewExpr) Accept(v CodeVisitor) {
	for _, arg := range e.Args {
		arg.Accept(v)
	}
	v.VisitNew(e)
	v.EnterExpression(e)
}

func (e *NewArrayExpr) Accept(v CodeVisitor) {
	for _, dim := range e.Dims {
		dim.Accept(v)
	}
	v.VisitNewArray(e)
	v.EnterExpression(e)
}

func (e *ArrayLoadExpr) Accept(v CodeVisitor) {
	e.Array.Accept(v)
	e.Index.Accept(v)
	v.VisitArrayLoad(e)
	v.EnterExpression(e)
}

func (e *ArrayLengthExpr) Accept(v CodeVisitor) {
	e.Array.Accept(v)
	v.VisitArrayLength(e)
	v.EnterExpression(e)
}

func (e *CastExpr) Accept(v CodeVisitor) {
	e.Operand.Accept(v)
	v.VisitCast(e)
	v.EnterExpression(e)
}

func (e *InstanceOfExpr) Accept(v CodeVisitor) {
	e.Operand.Accept(v)
	v.VisitInstanceOf(e)
	v.EnterExpression(e)
}
