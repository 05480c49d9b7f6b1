package classfile

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dhamidi/rebuild/ast"
)

func parseClass(t *testing.T, p *poolBuilder, def classDef) *ClassFile {
	t.Helper()
	cf, err := ParseBytes(p.build(def), nil)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	return cf
}

func TestParseClassFile(t *testing.T) {
	p := newPool()
	value := p.integer(9)
	constant := p.attr("ConstantValue", u2(value))
	init := p.method("java/lang/Object", "<init>", "()V")
	code := p.code(1, 1, cat([]byte{0x2a, 0xb7}, u2(init), []byte{0xb1}), nil)
	data := p.build(classDef{
		name:  "pkg/Sample",
		super: "java/lang/Object",
		fields: []memberDef{
			{flags: AccPublic | AccStatic | AccFinal, name: "LIMIT", desc: "I", attrs: [][]byte{constant}},
			{flags: AccPrivate, name: "name", desc: "Ljava/lang/String;"},
		},
		methods: []memberDef{
			{flags: AccPublic, name: "<init>", desc: "()V", attrs: [][]byte{code}},
			{flags: AccPublic | AccAbstract, name: "run", desc: "()V"},
		},
	})

	cf, err := Parse(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	t.Run("class name", func(t *testing.T) {
		if got := cf.ClassName(); got != "pkg/Sample" {
			t.Errorf("ClassName() = %q", got)
		}
		if got := cf.SuperClassName(); got != "java/lang/Object" {
			t.Errorf("SuperClassName() = %q", got)
		}
		if len(cf.InterfaceNames()) != 0 {
			t.Errorf("InterfaceNames() = %v", cf.InterfaceNames())
		}
	})

	t.Run("access flags", func(t *testing.T) {
		if !cf.AccessFlags.IsPublic() || cf.IsInterface() {
			t.Errorf("AccessFlags = %#x", uint16(cf.AccessFlags))
		}
	})

	t.Run("fields", func(t *testing.T) {
		if len(cf.Fields) != 2 {
			t.Fatalf("len(Fields) = %d", len(cf.Fields))
		}
		f := cf.GetField("LIMIT")
		if f == nil || !f.IsStatic() || !f.IsFinal() {
			t.Fatalf("GetField(LIMIT) = %+v", f)
		}
		if v, ok := f.ConstantValue(cf.ConstantPool); !ok || v != int32(9) {
			t.Errorf("ConstantValue() = %v, %v", v, ok)
		}
		if ft := cf.GetField("name").ParsedDescriptor(cf.ConstantPool); ft.ClassName != "java/lang/String" {
			t.Errorf("ParsedDescriptor() = %+v", ft)
		}
	})

	t.Run("methods", func(t *testing.T) {
		m := cf.GetMethod("<init>", "()V")
		if m == nil || !m.IsConstructor(cf.ConstantPool) {
			t.Fatal("GetMethod(<init>) not found")
		}
		if m.BodyErr != nil {
			t.Fatalf("BodyErr = %v", m.BodyErr)
		}
		want := []ast.Stmt{
			&ast.ExprStmt{X: ast.NewInvoke(ast.InvokeSpecial, "java/lang/Object", "<init>", "()V",
				ast.NewLocal(0, "this", ast.ClassOf("pkg/Sample")), []ast.Expr{}, ast.VoidType)},
			&ast.ReturnStmt{},
		}
		assertStmts(t, m.Body().Stmts, want)

		run := cf.GetMethod("run", "")
		if run == nil || !run.IsAbstract() || run.Body() != nil {
			t.Errorf("GetMethod(run) = %+v", run)
		}
		if got := run.Signature(cf.ConstantPool); got != "pkg/Sample.run()V" {
			t.Errorf("Signature() = %q", got)
		}
	})
}

func TestParseBadMagic(t *testing.T) {
	_, err := ParseBytes([]byte{0xca, 0xfe, 0xd0, 0x0d, 0, 0, 0, 52}, nil)
	if !errors.Is(err, ErrBadMagic) {
		t.Errorf("error = %v, want ErrBadMagic", err)
	}
}

func TestParseTruncatedClass(t *testing.T) {
	p := newPool()
	data := p.build(classDef{
		name:    "pkg/Cut",
		super:   "java/lang/Object",
		methods: []memberDef{{flags: AccPublic, name: "run", desc: "()V"}},
	})
	for _, n := range []int{4, 12, len(data) - 3} {
		_, err := ParseBytes(data[:n], nil)
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("ParseBytes(%d bytes) error = %v, want ErrTruncated", n, err)
		}
	}
}

func TestParseBadClassIndex(t *testing.T) {
	p := newPool()
	data := p.build(classDef{name: "pkg/Bad", super: "java/lang/Object"})
	// this_class follows the pool and access flags
	at := 8 + len(p.encoded()) + 2
	data[at], data[at+1] = 0, 1
	_, err := ParseBytes(data, nil)
	if !errors.Is(err, ErrBadIndex) {
		t.Errorf("error = %v, want ErrBadIndex", err)
	}
}

func TestParseUnitIsolation(t *testing.T) {
	p := newPool()
	bad := p.code(2, 0, []byte{0x60, 0xac}, nil)
	good := p.code(1, 0, []byte{0x04, 0xac}, nil)
	cf := parseClass(t, p, classDef{
		name:  "pkg/Iso",
		super: "java/lang/Object",
		methods: []memberDef{
			{flags: AccStatic, name: "bad", desc: "()I", attrs: [][]byte{bad}},
			{flags: AccStatic, name: "good", desc: "()I", attrs: [][]byte{good}},
		},
	})

	m := &cf.Methods[0]
	if !errors.Is(m.BodyErr, ErrStackUnderflow) {
		t.Fatalf("BodyErr = %v, want ErrStackUnderflow", m.BodyErr)
	}
	var de *DecodeError
	if !errors.As(m.BodyErr, &de) {
		t.Fatalf("BodyErr is %T", m.BodyErr)
	}
	if de.Unit != "pkg/Iso.bad()I" {
		t.Errorf("Unit = %q", de.Unit)
	}
	if de.Offset != m.Code.CodeOffset {
		t.Errorf("Offset = %d, want %d", de.Offset, m.Code.CodeOffset)
	}
	if m.Body() != nil {
		t.Error("failed method has a body")
	}
	if len(cf.BodyErrors()) != 1 {
		t.Errorf("BodyErrors() = %v", cf.BodyErrors())
	}

	g := &cf.Methods[1]
	if g.BodyErr != nil {
		t.Fatalf("sibling BodyErr = %v", g.BodyErr)
	}
	assertStmts(t, g.Body().Stmts, []ast.Stmt{&ast.ReturnStmt{Value: ast.NewConst(int32(1), ast.IntType)}})
}

func TestParseMethodAttributeLengthMismatch(t *testing.T) {
	p := newPool()
	sig := p.attr("Signature", []byte{0, 1, 0})
	cf := parseClass(t, p, classDef{
		name:    "pkg/Len",
		super:   "java/lang/Object",
		methods: []memberDef{{flags: AccPublic | AccAbstract, name: "run", desc: "()V", attrs: [][]byte{sig}}},
	})
	m := &cf.Methods[0]
	if !errors.Is(m.BodyErr, ErrLengthMismatch) {
		t.Errorf("BodyErr = %v, want ErrLengthMismatch", m.BodyErr)
	}
	if !strings.Contains(m.BodyErr.Error(), "Signature attribute") {
		t.Errorf("BodyErr = %q", m.BodyErr)
	}
}

func TestParseMethodKeepsFirstAttributeError(t *testing.T) {
	p := newPool()
	sig := p.attr("Signature", []byte{0, 1, 0})
	bad := p.code(2, 0, []byte{0x60, 0xac}, nil)
	cf := parseClass(t, p, classDef{
		name:    "pkg/Two",
		super:   "java/lang/Object",
		methods: []memberDef{{flags: AccStatic, name: "m", desc: "()I", attrs: [][]byte{sig, bad}}},
	})
	m := &cf.Methods[0]
	if !errors.Is(m.BodyErr, ErrLengthMismatch) {
		t.Errorf("BodyErr = %v, want ErrLengthMismatch", m.BodyErr)
	}
	if errors.Is(m.BodyErr, ErrStackUnderflow) {
		t.Errorf("BodyErr = %v, later error replaced the first", m.BodyErr)
	}
}
