package format

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dhamidi/rebuild/ast"
	"github.com/dhamidi/rebuild/classfile"
)

// JavaEncoder prints a class as Java-like source. Bodies are printed from
// the rebuilt trees; labels and gotos that could not be structured are
// kept as they are, so the output is not always valid Java.
type JavaEncoder struct {
	w     io.Writer
	opts  options
	class *classfile.ClassFile
}

func NewJavaEncoder(w io.Writer, opts ...Option) *JavaEncoder {
	e := &JavaEncoder{w: w}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

func (e *JavaEncoder) Encode(class *classfile.ClassFile) error {
	e.class = class
	return write(e.w, e)
}

func (e *JavaEncoder) MarshalText() ([]byte, error) {
	c := e.class
	p := &javaPrinter{class: c.ClassName(), super: c.SuperClassName()}

	name := c.ClassName()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		p.printf("package %s;\n\n", sourceName(name[:i]))
		name = name[i+1:]
	}
	if src := c.SourceFile(); src != "" {
		p.printf("// %s\n", src)
	}
	e.writeClassDeclaration(p, name)
	p.printf(" {\n")
	p.indent++

	if e.opts.method == "" {
		e.writeFields(p)
	}
	for i, m := range e.opts.methods(c) {
		if i > 0 {
			p.newline()
		}
		e.writeMethod(p, m)
	}

	p.indent--
	p.printf("}\n")
	return []byte(p.sb.String()), nil
}

func (e *JavaEncoder) writeClassDeclaration(p *javaPrinter, name string) {
	c := e.class
	if vis := visibility(c.AccessFlags); vis != "package" {
		p.printf("%s ", vis)
	}
	for _, mod := range classModifiers(c.AccessFlags) {
		if mod != "synthetic" {
			p.printf("%s ", mod)
		}
	}
	switch classKind(c) {
	case "annotation":
		p.printf("@interface ")
	case "enum":
		p.printf("enum ")
	case "interface":
		p.printf("interface ")
	default:
		p.printf("class ")
	}
	p.printf("%s", name)

	if super := c.SuperClassName(); super != "" && super != "java/lang/Object" && !c.AccessFlags.IsEnum() {
		p.printf(" extends %s", sourceName(super))
	}
	if ifaces := c.InterfaceNames(); len(ifaces) > 0 {
		names := make([]string, len(ifaces))
		for i, iface := range ifaces {
			names[i] = sourceName(iface)
		}
		keyword := " implements "
		if c.IsInterface() {
			keyword = " extends "
		}
		p.printf("%s%s", keyword, strings.Join(names, ", "))
	}
}

func (e *JavaEncoder) writeFields(p *javaPrinter) {
	cp := e.class.ConstantPool
	written := 0
	for i := range e.class.Fields {
		f := &e.class.Fields[i]
		if f.AccessFlags.IsSynthetic() {
			continue
		}
		p.line()
		writeModifiers(p, f.AccessFlags, fieldModifiers(f.AccessFlags))
		p.printf("%s %s", classfile.TypeOfDescriptor(f.Descriptor(cp)), f.Name(cp))
		if v, ok := f.ConstantValue(cp); ok {
			p.printf(" = %s", literal(v, classfile.TypeOfDescriptor(f.Descriptor(cp))))
		}
		p.printf(";\n")
		written++
	}
	if written > 0 && len(e.opts.methods(e.class)) > 0 {
		p.newline()
	}
}

func writeModifiers(p *javaPrinter, flags classfile.AccessFlags, mods []string) {
	if vis := visibility(flags); vis != "package" {
		p.printf("%s ", vis)
	}
	for _, mod := range mods {
		switch mod {
		case "synthetic", "bridge", "varargs", "enum":
			continue
		}
		p.printf("%s ", mod)
	}
}

func (e *JavaEncoder) writeMethod(p *javaPrinter, m *classfile.MethodInfo) {
	cp := e.class.ConstantPool
	name := m.Name(cp)
	desc := m.ParsedDescriptor(cp)

	p.line()
	if name == "<clinit>" {
		p.printf("static")
	} else {
		writeModifiers(p, m.AccessFlags, methodModifiers(m.AccessFlags))
		if name == "<init>" {
			p.printf("%s", simpleName(e.class.ClassName()))
		} else {
			ret := "void"
			if desc != nil && desc.ReturnType != nil {
				ret = desc.ReturnType.String()
			}
			p.printf("%s %s", ret, name)
		}
		p.printf("(%s)", strings.Join(parameters(m, cp, desc), ", "))
	}

	switch {
	case m.BodyErr != nil:
		p.printf(" {\n")
		p.indent++
		p.line()
		p.printf("// %s\n", m.BodyErr)
		p.indent--
		p.line()
		p.printf("}\n")
	case m.Body() == nil:
		p.printf(";\n")
	default:
		p.printf(" ")
		p.block(m.Body())
		p.printf("\n")
	}
}

// parameters names each parameter the way the rebuilt body refers to it:
// by the local variable table when present, by slot otherwise.
func parameters(m *classfile.MethodInfo, cp *classfile.ConstantPool, desc *classfile.MethodDescriptor) []string {
	if desc == nil {
		return nil
	}
	names := make(map[int]string)
	if m.Code != nil {
		for _, a := range m.Code.Attributes {
			lvt, ok := a.(*classfile.LocalVariableTableAttribute)
			if !ok {
				continue
			}
			for _, v := range lvt.LocalVariableTable {
				if v.StartPC != 0 {
					continue
				}
				if name, ok := cp.LookupUtf8(v.NameIndex); ok {
					names[int(v.Index)] = name
				}
			}
		}
	}
	slot := 1
	if m.IsStatic() {
		slot = 0
	}
	out := make([]string, len(desc.Parameters))
	for i := range desc.Parameters {
		t := desc.Parameters[i].NodeType()
		name, ok := names[slot]
		if !ok {
			name = "local" + strconv.Itoa(slot)
		}
		out[i] = t.String() + " " + name
		slot += t.Category()
	}
	return out
}

func simpleName(internal string) string {
	if i := strings.LastIndexAny(internal, "/$"); i >= 0 {
		return internal[i+1:]
	}
	return internal
}

type javaPrinter struct {
	sb     strings.Builder
	indent int

	class string
	super string
}

func (p *javaPrinter) printf(format string, args ...any) {
	fmt.Fprintf(&p.sb, format, args...)
}

func (p *javaPrinter) line() {
	p.sb.WriteString(strings.Repeat("    ", p.indent))
}

func (p *javaPrinter) newline() {
	p.sb.WriteByte('\n')
}

// block prints "{ ... }" without a trailing newline.
func (p *javaPrinter) block(b *ast.BlockStmt) {
	p.printf("{\n")
	p.indent++
	if b != nil {
		for _, s := range b.Stmts {
			p.stmt(s)
		}
	}
	p.indent--
	p.line()
	p.printf("}")
}

func labelPrefix(label string) string {
	if label == "" {
		return ""
	}
	return label + ": "
}

func labelSuffix(label string) string {
	if label == "" {
		return ""
	}
	return " " + label
}

func (p *javaPrinter) stmt(s ast.Stmt) {
	if l, ok := s.(*ast.LabelStmt); ok {
		p.indent--
		p.line()
		p.indent++
		p.printf("%s:\n", l.Name)
		return
	}
	p.line()
	switch s := s.(type) {
	case *ast.BlockStmt:
		p.block(s)
	case *ast.ExprStmt:
		p.printf("%s;", p.expr(s.X))
	case *ast.AssignStmt:
		if a, ok := s.Value.(*ast.ArithExpr); ok && sameTarget(a.Left, s.Target) && !a.Op.IsCompare() {
			p.printf("%s %s= %s;", p.expr(s.Target), a.Op.Symbol(), p.expr(a.Right))
		} else {
			p.printf("%s = %s;", p.expr(s.Target), p.expr(s.Value))
		}
	case *ast.IncStmt:
		switch s.Delta {
		case 1:
			p.printf("%s++;", s.Local.Name)
		case -1:
			p.printf("%s--;", s.Local.Name)
		default:
			if s.Delta < 0 {
				p.printf("%s -= %d;", s.Local.Name, -int64(s.Delta))
			} else {
				p.printf("%s += %d;", s.Local.Name, s.Delta)
			}
		}
	case *ast.ReturnStmt:
		if s.Value == nil {
			p.printf("return;")
		} else {
			p.printf("return %s;", p.expr(s.Value))
		}
	case *ast.ThrowStmt:
		p.printf("throw %s;", p.expr(s.Value))
	case *ast.IfStmt:
		p.printf("if (%s) ", p.expr(s.Cond))
		p.block(s.Then)
		if s.Else != nil {
			p.printf(" else ")
			if len(s.Else.Stmts) == 1 {
				if inner, ok := s.Else.Stmts[0].(*ast.IfStmt); ok {
					p.elseIf(inner)
					break
				}
			}
			p.block(s.Else)
		}
	case *ast.WhileStmt:
		cond := "true"
		if s.Cond != nil {
			cond = p.expr(s.Cond)
		}
		p.printf("%swhile (%s) ", labelPrefix(s.Label), cond)
		p.block(s.Body)
	case *ast.DoWhileStmt:
		p.printf("%sdo ", labelPrefix(s.Label))
		p.block(s.Body)
		p.printf(" while (%s);", p.expr(s.Cond))
	case *ast.BreakStmt:
		p.printf("break%s;", labelSuffix(s.Label))
	case *ast.ContinueStmt:
		p.printf("continue%s;", labelSuffix(s.Label))
	case *ast.SwitchStmt:
		p.printf("%sswitch (%s) {\n", labelPrefix(s.Label), p.expr(s.Tag))
		for _, c := range s.Cases {
			for _, v := range c.Values {
				p.line()
				p.printf("case %d:\n", v)
			}
			if c.Default {
				p.line()
				p.printf("default:\n")
			}
			p.indent++
			for _, st := range c.Body.Stmts {
				p.stmt(st)
			}
			p.indent--
		}
		p.line()
		p.printf("}")
	case *ast.TryStmt:
		p.printf("try ")
		p.block(s.Body)
		for _, c := range s.Catches {
			if c.Type == "" {
				p.printf(" finally ")
			} else {
				p.printf(" catch (%s) ", sourceName(c.Type))
			}
			p.block(c.Body)
		}
	case *ast.MonitorStmt:
		if s.Enter {
			p.printf("monitorenter(%s);", p.expr(s.Object))
		} else {
			p.printf("monitorexit(%s);", p.expr(s.Object))
		}
	case *ast.GotoStmt:
		p.printf("goto %s;", s.Label)
	default:
		p.printf("/* %T */", s)
	}
	p.newline()
}

func (p *javaPrinter) elseIf(s *ast.IfStmt) {
	p.printf("if (%s) ", p.expr(s.Cond))
	p.block(s.Then)
	if s.Else != nil {
		p.printf(" else ")
		if len(s.Else.Stmts) == 1 {
			if inner, ok := s.Else.Stmts[0].(*ast.IfStmt); ok {
				p.elseIf(inner)
				return
			}
		}
		p.block(s.Else)
	}
}

func sameTarget(a, b ast.Expr) bool {
	switch x := a.(type) {
	case *ast.LocalExpr:
		y, ok := b.(*ast.LocalExpr)
		return ok && x.Slot == y.Slot
	case *ast.FieldExpr:
		y, ok := b.(*ast.FieldExpr)
		return ok && x.Object == nil && y.Object == nil && x.Owner == y.Owner && x.Name == y.Name
	}
	return false
}

func (p *javaPrinter) expr(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.ConstExpr:
		return literal(e.Value, e.Type())
	case *ast.LocalExpr:
		return e.Name
	case *ast.StackVarExpr:
		return e.Name
	case *ast.CaughtExceptionExpr:
		return "$exception"
	case *ast.ArithExpr:
		if e.Op.IsCompare() {
			return fmt.Sprintf("%s(%s, %s)", e.Op, p.expr(e.Left), p.expr(e.Right))
		}
		return fmt.Sprintf("%s %s %s", p.operand(e.Left), e.Op.Symbol(), p.operand(e.Right))
	case *ast.NegExpr:
		return "-" + p.operand(e.Operand)
	case *ast.ConvertExpr:
		return fmt.Sprintf("(%s) %s", e.To, p.operand(e.Operand))
	case *ast.CondExpr:
		return fmt.Sprintf("%s %s %s", p.operand(e.Left), e.Op, p.operand(e.Right))
	case *ast.FieldExpr:
		return p.qualifier(e.Object, e.Owner) + "." + e.Name
	case *ast.InvokeExpr:
		return p.invoke(e)
	case *ast.NewExpr:
		return fmt.Sprintf("new %s(%s)", sourceName(e.Class), p.list(e.Args))
	case *ast.NewArrayExpr:
		var sb strings.Builder
		sb.WriteString("new ")
		sb.WriteString(e.Elem.String())
		for _, d := range e.Dims {
			sb.WriteString("[" + p.expr(d) + "]")
		}
		for i := len(e.Dims); i < e.Type().Dims; i++ {
			sb.WriteString("[]")
		}
		return sb.String()
	case *ast.ArrayLoadExpr:
		return fmt.Sprintf("%s[%s]", p.operand(e.Array), p.expr(e.Index))
	case *ast.ArrayLengthExpr:
		return p.operand(e.Array) + ".length"
	case *ast.CastExpr:
		return fmt.Sprintf("(%s) %s", e.To, p.operand(e.Operand))
	case *ast.InstanceOfExpr:
		return fmt.Sprintf("%s instanceof %s", p.operand(e.Operand), e.Class)
	}
	return fmt.Sprintf("/* %T */", e)
}

// operand prints e, parenthesized unless it is a leaf or a postfix form.
func (p *javaPrinter) operand(e ast.Expr) string {
	switch e.(type) {
	case *ast.ConstExpr, *ast.LocalExpr, *ast.StackVarExpr, *ast.CaughtExceptionExpr,
		*ast.FieldExpr, *ast.InvokeExpr, *ast.ArrayLoadExpr, *ast.ArrayLengthExpr:
		return p.expr(e)
	}
	return "(" + p.expr(e) + ")"
}

func (p *javaPrinter) qualifier(object ast.Expr, owner string) string {
	if object == nil {
		return sourceName(owner)
	}
	return p.operand(object)
}

func (p *javaPrinter) invoke(e *ast.InvokeExpr) string {
	args := p.list(e.Args)
	switch {
	case e.Kind == ast.InvokeDynamic:
		return fmt.Sprintf("invokedynamic %s(%s)", e.Name, args)
	case e.Name == "<init>":
		if e.Owner == p.class {
			return "this(" + args + ")"
		}
		return "super(" + args + ")"
	case e.Kind == ast.InvokeSpecial && e.Owner == p.super && e.Owner != p.class:
		return fmt.Sprintf("super.%s(%s)", e.Name, args)
	}
	return fmt.Sprintf("%s.%s(%s)", p.qualifier(e.Receiver, e.Owner), e.Name, args)
}

func (p *javaPrinter) list(exprs []ast.Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = p.expr(e)
	}
	return strings.Join(parts, ", ")
}

// literal spells a constant value of type t in Java syntax.
func literal(v any, t ast.Type) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case int32:
		switch t.Kind {
		case ast.Boolean:
			return strconv.FormatBool(x != 0)
		case ast.Char:
			return strconv.QuoteRune(rune(x))
		}
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10) + "L"
	case float32:
		return floatLiteral(float64(x), 32, "f")
	case float64:
		return floatLiteral(x, 64, "")
	case string:
		return strconv.Quote(x)
	case ast.ClassLiteral:
		return classfile.TypeOfClassRef(string(x)).String() + ".class"
	case ast.SymbolicConst:
		return "<" + string(x) + ">"
	}
	return fmt.Sprint(v)
}

func floatLiteral(f float64, bits int, suffix string) string {
	box := "Double"
	if bits == 32 {
		box = "Float"
	}
	switch {
	case math.IsNaN(f):
		return box + ".NaN"
	case math.IsInf(f, 1):
		return box + ".POSITIVE_INFINITY"
	case math.IsInf(f, -1):
		return box + ".NEGATIVE_INFINITY"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s + suffix
}
