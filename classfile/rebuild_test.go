package classfile

import (
	"errors"
	"reflect"
	"testing"

	"github.com/dhamidi/rebuild/ast"
)

func assertStmts(t *testing.T, got, want []ast.Stmt) {
	t.Helper()
	if reflect.DeepEqual(got, want) {
		return
	}
	t.Errorf("got %d statements, want %d", len(got), len(want))
	for i := 0; i < max(len(got), len(want)); i++ {
		var g, w ast.Stmt
		if i < len(got) {
			g = got[i]
		}
		if i < len(want) {
			w = want[i]
		}
		if !reflect.DeepEqual(g, w) {
			t.Errorf("statement %d:\n got %#v\nwant %#v", i, g, w)
		}
	}
}

// rebuildMethod compiles a class pkg/T holding one static method m with the
// given code and returns it after parsing.
func rebuildMethod(t *testing.T, p *poolBuilder, desc string, insns []byte, handlers []handlerRow, nested ...[]byte) *MethodInfo {
	t.Helper()
	code := p.code(4, 4, insns, handlers, nested...)
	cf := parseClass(t, p, classDef{
		name:    "pkg/T",
		super:   "java/lang/Object",
		methods: []memberDef{{flags: AccStatic, name: "m", desc: desc, attrs: [][]byte{code}}},
	})
	return &cf.Methods[0]
}

func rebuilt(t *testing.T, m *MethodInfo) []ast.Stmt {
	t.Helper()
	if m.BodyErr != nil {
		t.Fatalf("BodyErr = %v", m.BodyErr)
	}
	if m.Body() == nil {
		t.Fatal("Body() = nil")
	}
	return m.Body().Stmts
}

func local(n int, typ ast.Type) *ast.LocalExpr {
	return ast.NewLocal(n, "local"+string(rune('0'+n)), typ)
}

func intConst(v int32) *ast.ConstExpr {
	return ast.NewConst(v, ast.IntType)
}

func blockOf(stmts ...ast.Stmt) *ast.BlockStmt {
	return &ast.BlockStmt{Stmts: stmts}
}

func TestRebuildStraightLine(t *testing.T) {
	t.Run("arithmetic", func(t *testing.T) {
		m := rebuildMethod(t, newPool(), "(II)I", []byte{0x1a, 0x1b, 0x60, 0xac}, nil)
		assertStmts(t, rebuilt(t, m), []ast.Stmt{
			&ast.ReturnStmt{Value: ast.NewArith(ast.OpAdd, local(0, ast.IntType), local(1, ast.IntType), ast.IntType)},
		})
	})

	t.Run("static field update", func(t *testing.T) {
		p := newPool()
		ref := p.field("pkg/T", "n", "I")
		insns := cat([]byte{0xb2}, u2(ref), []byte{0x04, 0x60, 0xb3}, u2(ref), []byte{0xb1})
		m := rebuildMethod(t, p, "()V", insns, nil)
		field := func() ast.Expr { return ast.NewField("pkg/T", "n", "I", nil, ast.IntType) }
		assertStmts(t, rebuilt(t, m), []ast.Stmt{
			&ast.AssignStmt{Target: field(), Value: ast.NewArith(ast.OpAdd, field(), intConst(1), ast.IntType)},
			&ast.ReturnStmt{},
		})
	})

	t.Run("side effects keep their order", func(t *testing.T) {
		p := newPool()
		f := p.method("pkg/T", "f", "()I")
		g := p.method("pkg/T", "g", "()V")
		insns := cat([]byte{0xb8}, u2(f), []byte{0xb8}, u2(g), []byte{0xac})
		m := rebuildMethod(t, p, "()I", insns, nil)
		call := ast.NewInvoke(ast.InvokeStatic, "pkg/T", "f", "()I", nil, []ast.Expr{}, ast.IntType)
		assertStmts(t, rebuilt(t, m), []ast.Stmt{
			&ast.AssignStmt{Target: ast.NewStackVar("$t0", ast.IntType), Value: call},
			&ast.ExprStmt{X: ast.NewInvoke(ast.InvokeStatic, "pkg/T", "g", "()V", nil, []ast.Expr{}, ast.VoidType)},
			&ast.ReturnStmt{Value: ast.NewStackVar("$t0", ast.IntType)},
		})
	})

	t.Run("object construction", func(t *testing.T) {
		p := newPool()
		class := p.class("pkg/Foo")
		init := p.method("pkg/Foo", "<init>", "()V")
		insns := cat([]byte{0xbb}, u2(class), []byte{0x59, 0xb7}, u2(init), []byte{0xb0})
		m := rebuildMethod(t, p, "()Ljava/lang/Object;", insns, nil)
		assertStmts(t, rebuilt(t, m), []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.NewExpr{Class: "pkg/Foo", Descriptor: "()V", Args: []ast.Expr{}}},
		})
	})

	t.Run("invokedynamic", func(t *testing.T) {
		p := newPool()
		nt := p.nameType("run", "()Ljava/lang/Runnable;")
		indy := p.add(ConstantInvokeDynamic, cat(u2(0), u2(nt)))
		insns := cat([]byte{0xba}, u2(indy), []byte{0, 0, 0xb0})
		m := rebuildMethod(t, p, "()Ljava/lang/Runnable;", insns, nil)
		call := ast.NewInvoke(ast.InvokeDynamic, "", "run", "()Ljava/lang/Runnable;", nil, []ast.Expr{}, ast.ClassOf("java/lang/Runnable"))
		assertStmts(t, rebuilt(t, m), []ast.Stmt{&ast.ReturnStmt{Value: call}})
	})

	t.Run("local variable names", func(t *testing.T) {
		p := newPool()
		lvt := p.attr("LocalVariableTable", cat(u2(1), u2(0), u2(2), u2(p.utf8("count")), u2(p.utf8("I")), u2(0)))
		m := rebuildMethod(t, p, "(I)I", []byte{0x1a, 0xac}, nil, lvt)
		assertStmts(t, rebuilt(t, m), []ast.Stmt{
			&ast.ReturnStmt{Value: ast.NewLocal(0, "count", ast.IntType)},
		})
	})
}

func TestRebuildControlFlow(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		insns []byte
		want  []ast.Stmt
	}{
		{
			name:  "if",
			desc:  "(I)I",
			insns: []byte{0x1a, 0x99, 0x00, 0x05, 0x04, 0xac, 0x03, 0xac},
			want: []ast.Stmt{
				&ast.IfStmt{
					Cond: &ast.CondExpr{Op: ast.CondNE, Left: local(0, ast.IntType), Right: intConst(0)},
					Then: blockOf(&ast.ReturnStmt{Value: intConst(1)}),
				},
				&ast.ReturnStmt{Value: intConst(0)},
			},
		},
		{
			name:  "conditional value",
			desc:  "(I)I",
			insns: []byte{0x1a, 0x99, 0x00, 0x07, 0x04, 0xa7, 0x00, 0x04, 0x05, 0xac},
			want: []ast.Stmt{
				&ast.IfStmt{
					Cond: &ast.CondExpr{Op: ast.CondNE, Left: local(0, ast.IntType), Right: intConst(0)},
					Then: blockOf(&ast.AssignStmt{Target: ast.NewStackVar("$s0", ast.IntType), Value: intConst(1)}),
					Else: blockOf(&ast.AssignStmt{Target: ast.NewStackVar("$s0", ast.IntType), Value: intConst(2)}),
				},
				&ast.ReturnStmt{Value: ast.NewStackVar("$s0", ast.IntType)},
			},
		},
		{
			name:  "while",
			desc:  "(I)V",
			insns: []byte{0x03, 0x3c, 0x1b, 0x1a, 0xa2, 0x00, 0x09, 0x84, 0x01, 0x01, 0xa7, 0xff, 0xf8, 0xb1},
			want: []ast.Stmt{
				&ast.AssignStmt{Target: local(1, ast.IntType), Value: intConst(0)},
				&ast.WhileStmt{
					Cond: &ast.CondExpr{Op: ast.CondLT, Left: local(1, ast.IntType), Right: local(0, ast.IntType)},
					Body: blockOf(&ast.IncStmt{Local: local(1, ast.IntType), Delta: 1}),
				},
				&ast.ReturnStmt{},
			},
		},
		{
			name:  "do while",
			desc:  "(I)V",
			insns: []byte{0x84, 0x00, 0xff, 0x1a, 0x9d, 0xff, 0xfc, 0xb1},
			want: []ast.Stmt{
				&ast.DoWhileStmt{
					Body: blockOf(&ast.IncStmt{Local: local(0, ast.IntType), Delta: -1}),
					Cond: &ast.CondExpr{Op: ast.CondGT, Left: local(0, ast.IntType), Right: intConst(0)},
				},
				&ast.ReturnStmt{},
			},
		},
		{
			name:  "infinite loop",
			desc:  "()V",
			insns: []byte{0xa7, 0x00, 0x00},
			want:  []ast.Stmt{&ast.WhileStmt{Body: &ast.BlockStmt{}}},
		},
		{
			name: "tableswitch",
			desc: "(I)I",
			insns: cat(
				[]byte{0x1a, 0xaa, 0, 0},
				u4(27), u4(1), u4(2), u4(23), u4(25),
				[]byte{0x04, 0xac, 0x05, 0xac, 0x03, 0xac},
			),
			want: []ast.Stmt{
				&ast.SwitchStmt{
					Tag: local(0, ast.IntType),
					Cases: []*ast.SwitchCase{
						{Values: []int32{1}, Body: blockOf(&ast.ReturnStmt{Value: intConst(1)})},
						{Values: []int32{2}, Body: blockOf(&ast.ReturnStmt{Value: intConst(2)})},
					},
				},
				&ast.ReturnStmt{Value: intConst(0)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := rebuildMethod(t, newPool(), tt.desc, tt.insns, nil)
			assertStmts(t, rebuilt(t, m), tt.want)
		})
	}
}

func TestRebuildTryCatch(t *testing.T) {
	p := newPool()
	f := p.method("pkg/T", "f", "()V")
	insns := cat(
		[]byte{0xb8}, u2(f),
		[]byte{0xa7, 0x00, 0x07},
		[]byte{0x4b, 0xb8}, u2(f),
		[]byte{0xb1},
	)
	m := rebuildMethod(t, p, "()V", insns, []handlerRow{{start: 0, end: 3, handler: 6, class: "java/lang/Exception"}})

	call := func() ast.Stmt {
		return &ast.ExprStmt{X: ast.NewInvoke(ast.InvokeStatic, "pkg/T", "f", "()V", nil, []ast.Expr{}, ast.VoidType)}
	}
	exc := ast.ClassOf("java/lang/Exception")
	assertStmts(t, rebuilt(t, m), []ast.Stmt{
		&ast.TryStmt{
			Body: blockOf(call()),
			Catches: []*ast.CatchClause{{
				Type: "java/lang/Exception",
				Body: blockOf(
					&ast.AssignStmt{Target: local(0, exc), Value: ast.NewCaughtException(exc)},
					call(),
				),
			}},
		},
		&ast.ReturnStmt{},
	})
}

func TestRebuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		insns []byte
		want  error
		pc    int
	}{
		{"stack underflow", "()I", []byte{0x60, 0xac}, ErrStackUnderflow, 0},
		{"inconsistent merge", "(I)V", []byte{0x1a, 0x99, 0x00, 0x04, 0x04, 0xb1}, ErrInconsistent, -1},
		{"subroutine", "()V", []byte{0xa8, 0x00, 0x03, 0xb1}, ErrBadOpcode, 0},
		{"branch outside code", "()V", []byte{0xa7, 0x00, 0x10}, ErrBadBranch, 0},
		{"branch into instruction", "()V", []byte{0x10, 0x05, 0xa7, 0xff, 0xff, 0xb1}, ErrBadBranch, 2},
		{"falls off the end", "()V", []byte{0x00}, ErrBadBranch, 0},
		{"undefined opcode", "()V", []byte{0xcb}, ErrBadOpcode, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := rebuildMethod(t, newPool(), tt.desc, tt.insns, nil)
			if !errors.Is(m.BodyErr, tt.want) {
				t.Fatalf("BodyErr = %v, want %v", m.BodyErr, tt.want)
			}
			if m.Body() != nil {
				t.Error("failed method has a body")
			}
			var de *DecodeError
			if !errors.As(m.BodyErr, &de) {
				t.Fatalf("BodyErr is %T", m.BodyErr)
			}
			if de.Unit != "pkg/T.m"+tt.desc {
				t.Errorf("Unit = %q", de.Unit)
			}
			if tt.pc >= 0 && de.Offset != m.Code.CodeOffset+tt.pc {
				t.Errorf("Offset = %d, want %d", de.Offset, m.Code.CodeOffset+tt.pc)
			}
		})
	}
}
