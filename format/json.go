package format

import (
	"encoding/json"
	"io"
	"math"

	"github.com/dhamidi/rebuild/ast"
	"github.com/dhamidi/rebuild/classfile"
)

type JSONEncoder struct {
	w     io.Writer
	opts  options
	class *classfile.ClassFile
}

func NewJSONEncoder(w io.Writer, opts ...Option) *JSONEncoder {
	e := &JSONEncoder{w: w}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

func (e *JSONEncoder) Encode(class *classfile.ClassFile) error {
	e.class = class
	return write(e.w, e)
}

func (e *JSONEncoder) MarshalText() ([]byte, error) {
	data, err := json.MarshalIndent(e.buildClassData(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

type jsonClass struct {
	Name       string       `json:"name"`
	SuperClass string       `json:"superClass,omitempty"`
	Interfaces []string     `json:"interfaces,omitempty"`
	SourceFile string       `json:"sourceFile,omitempty"`
	Kind       string       `json:"kind"`
	Visibility string       `json:"visibility"`
	Modifiers  []string     `json:"modifiers,omitempty"`
	Version    jsonVersion  `json:"version"`
	Fields     []jsonField  `json:"fields,omitempty"`
	Methods    []jsonMethod `json:"methods,omitempty"`
}

type jsonVersion struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

type jsonField struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Visibility string   `json:"visibility"`
	Modifiers  []string `json:"modifiers,omitempty"`
	Constant   any      `json:"constant,omitempty"`
}

type jsonMethod struct {
	Name       string    `json:"name"`
	Descriptor string    `json:"descriptor"`
	Visibility string    `json:"visibility"`
	Modifiers  []string  `json:"modifiers,omitempty"`
	Body       *jsonNode `json:"body,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// jsonNode is one tree node. Only the fields meaningful for Kind are set.
type jsonNode struct {
	Kind       string      `json:"kind"`
	Type       string      `json:"type,omitempty"`
	Op         string      `json:"op,omitempty"`
	Name       string      `json:"name,omitempty"`
	Owner      string      `json:"owner,omitempty"`
	Descriptor string      `json:"descriptor,omitempty"`
	Label      string      `json:"label,omitempty"`
	Value      any         `json:"value,omitempty"`
	Values     []int32     `json:"values,omitempty"`
	Default    bool        `json:"default,omitempty"`
	Children   []*jsonNode `json:"children,omitempty"`
}

func (e *JSONEncoder) buildClassData() jsonClass {
	c := e.class
	data := jsonClass{
		Name:       sourceName(c.ClassName()),
		SourceFile: c.SourceFile(),
		Kind:       classKind(c),
		Visibility: visibility(c.AccessFlags),
		Modifiers:  classModifiers(c.AccessFlags),
		Version:    jsonVersion{Major: c.MajorVersion, Minor: c.MinorVersion},
	}
	if super := c.SuperClassName(); super != "" {
		data.SuperClass = sourceName(super)
	}
	for _, iface := range c.InterfaceNames() {
		data.Interfaces = append(data.Interfaces, sourceName(iface))
	}
	if e.opts.method == "" {
		data.Fields = e.buildFields()
	}
	data.Methods = e.buildMethods()
	return data
}

func (e *JSONEncoder) buildFields() []jsonField {
	cp := e.class.ConstantPool
	result := make([]jsonField, len(e.class.Fields))
	for i := range e.class.Fields {
		f := &e.class.Fields[i]
		result[i] = jsonField{
			Name:       f.Name(cp),
			Type:       classfile.TypeOfDescriptor(f.Descriptor(cp)).String(),
			Visibility: visibility(f.AccessFlags),
			Modifiers:  fieldModifiers(f.AccessFlags),
		}
		if v, ok := f.ConstantValue(cp); ok {
			result[i].Constant = jsonValue(v)
		}
	}
	return result
}

func (e *JSONEncoder) buildMethods() []jsonMethod {
	cp := e.class.ConstantPool
	var result []jsonMethod
	for _, m := range e.opts.methods(e.class) {
		jm := jsonMethod{
			Name:       m.Name(cp),
			Descriptor: m.Descriptor(cp),
			Visibility: visibility(m.AccessFlags),
			Modifiers:  methodModifiers(m.AccessFlags),
		}
		if m.BodyErr != nil {
			jm.Error = m.BodyErr.Error()
		} else if body := m.Body(); body != nil {
			jm.Body = buildJSONTree(body)
		}
		result = append(result, jm)
	}
	return result
}

// buildJSONTree converts a tree into its JSON form. The conversion is a
// single visitor pass: children are visited first and left on a stack for
// their parent to collect.
func buildJSONTree(root ast.CodeNode) *jsonNode {
	b := &treeBuilder{}
	ast.Walk(b, root)
	if len(b.stack) != 1 {
		return nil
	}
	return b.stack[0]
}

type treeBuilder struct {
	ast.BaseVisitor
	stack []*jsonNode
}

func (b *treeBuilder) push(n *jsonNode) {
	b.stack = append(b.stack, n)
}

// pop removes the last n nodes and returns them in visiting order.
func (b *treeBuilder) pop(n int) []*jsonNode {
	if n == 0 {
		return nil
	}
	at := len(b.stack) - n
	out := make([]*jsonNode, n)
	copy(out, b.stack[at:])
	b.stack = b.stack[:at]
	return out
}

func (b *treeBuilder) expr(kind string, e ast.Expr, children int) *jsonNode {
	n := &jsonNode{Kind: kind, Type: e.Type().String(), Children: b.pop(children)}
	b.push(n)
	return n
}

func (b *treeBuilder) stmt(kind string, children int) *jsonNode {
	n := &jsonNode{Kind: kind, Children: b.pop(children)}
	b.push(n)
	return n
}

func optional(e ast.Expr) int {
	if e == nil {
		return 0
	}
	return 1
}

func (b *treeBuilder) VisitConst(e *ast.ConstExpr) {
	b.expr("const", e, 0).Value = jsonValue(e.Value)
}

func (b *treeBuilder) VisitLocal(e *ast.LocalExpr) {
	n := b.expr("local", e, 0)
	n.Name = e.Name
	n.Value = e.Slot
}

func (b *treeBuilder) VisitStackVar(e *ast.StackVarExpr) {
	b.expr("stackvar", e, 0).Name = e.Name
}

func (b *treeBuilder) VisitCaughtException(e *ast.CaughtExceptionExpr) {
	b.expr("caught", e, 0)
}

func (b *treeBuilder) VisitArith(e *ast.ArithExpr) {
	b.expr("arith", e, 2).Op = e.Op.String()
}

func (b *treeBuilder) VisitNeg(e *ast.NegExpr) {
	b.expr("neg", e, 1)
}

func (b *treeBuilder) VisitConvert(e *ast.ConvertExpr) {
	b.expr("convert", e, 1)
}

func (b *treeBuilder) VisitCond(e *ast.CondExpr) {
	b.expr("cond", e, 2).Op = e.Op.String()
}

func (b *treeBuilder) VisitField(e *ast.FieldExpr) {
	n := b.expr("field", e, optional(e.Object))
	n.Owner = e.Owner
	n.Name = e.Name
	n.Descriptor = e.Descriptor
}

func (b *treeBuilder) VisitInvoke(e *ast.InvokeExpr) {
	n := b.expr("invoke", e, optional(e.Receiver)+len(e.Args))
	n.Op = e.Kind.String()
	n.Owner = e.Owner
	n.Name = e.Name
	n.Descriptor = e.Descriptor
}

func (b *treeBuilder) VisitNew(e *ast.NewExpr) {
	b.expr("new", e, len(e.Args)).Descriptor = e.Descriptor
}

func (b *treeBuilder) VisitNewArray(e *ast.NewArrayExpr) {
	b.expr("newarray", e, len(e.Dims))
}

func (b *treeBuilder) VisitArrayLoad(e *ast.ArrayLoadExpr) {
	b.expr("arrayload", e, 2)
}

func (b *treeBuilder) VisitArrayLength(e *ast.ArrayLengthExpr) {
	b.expr("arraylength", e, 1)
}

func (b *treeBuilder) VisitCast(e *ast.CastExpr) {
	b.expr("cast", e, 1)
}

func (b *treeBuilder) VisitInstanceOf(e *ast.InstanceOfExpr) {
	b.expr("instanceof", e, 1).Name = e.Class.String()
}

func (b *treeBuilder) VisitBlock(s *ast.BlockStmt) {
	b.stmt("block", len(s.Stmts))
}

func (b *treeBuilder) VisitExprStmt(*ast.ExprStmt) {
	b.stmt("expr", 1)
}

func (b *treeBuilder) VisitAssign(*ast.AssignStmt) {
	b.stmt("assign", 2)
}

func (b *treeBuilder) VisitInc(s *ast.IncStmt) {
	b.stmt("inc", 1).Value = s.Delta
}

func (b *treeBuilder) VisitReturn(s *ast.ReturnStmt) {
	b.stmt("return", optional(s.Value))
}

func (b *treeBuilder) VisitThrow(*ast.ThrowStmt) {
	b.stmt("throw", 1)
}

func (b *treeBuilder) VisitIf(s *ast.IfStmt) {
	n := 2
	if s.Else != nil {
		n++
	}
	b.stmt("if", n)
}

func (b *treeBuilder) VisitWhile(s *ast.WhileStmt) {
	b.stmt("while", optional(s.Cond)+1).Label = s.Label
}

func (b *treeBuilder) VisitDoWhile(s *ast.DoWhileStmt) {
	b.stmt("dowhile", 2).Label = s.Label
}

func (b *treeBuilder) VisitBreak(s *ast.BreakStmt) {
	b.stmt("break", 0).Label = s.Label
}

func (b *treeBuilder) VisitContinue(s *ast.ContinueStmt) {
	b.stmt("continue", 0).Label = s.Label
}

func (b *treeBuilder) VisitSwitch(s *ast.SwitchStmt) {
	bodies := b.pop(len(s.Cases))
	n := b.stmt("switch", 1)
	n.Label = s.Label
	for i, c := range s.Cases {
		n.Children = append(n.Children, &jsonNode{
			Kind:     "case",
			Values:   c.Values,
			Default:  c.Default,
			Children: []*jsonNode{bodies[i]},
		})
	}
}

func (b *treeBuilder) VisitTry(s *ast.TryStmt) {
	handlers := b.pop(len(s.Catches))
	n := b.stmt("try", 1)
	for i, c := range s.Catches {
		catch := &jsonNode{Kind: "catch", Children: []*jsonNode{handlers[i]}}
		if c.Type != "" {
			catch.Name = sourceName(c.Type)
		}
		n.Children = append(n.Children, catch)
	}
}

func (b *treeBuilder) VisitMonitor(s *ast.MonitorStmt) {
	n := b.stmt("monitor", 1)
	n.Op = "exit"
	if s.Enter {
		n.Op = "enter"
	}
}

func (b *treeBuilder) VisitLabel(s *ast.LabelStmt) {
	b.stmt("label", 0).Label = s.Name
}

func (b *treeBuilder) VisitGoto(s *ast.GotoStmt) {
	b.stmt("goto", 0).Label = s.Label
}

// jsonValue maps constant values onto what encoding/json can represent.
// Non-finite floats become their Java spelling.
func jsonValue(v any) any {
	switch x := v.(type) {
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return floatWord(f)
		}
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return floatWord(x)
		}
	case ast.ClassLiteral:
		return classfile.TypeOfClassRef(string(x)).String() + ".class"
	case ast.SymbolicConst:
		return string(x)
	}
	return v
}

func floatWord(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f > 0:
		return "Infinity"
	}
	return "-Infinity"
}
