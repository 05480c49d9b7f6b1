package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/rebuild/ast"
	"github.com/dhamidi/rebuild/classfile"
)

// LineEncoder writes one tab-separated line per class, field and method.
// Method lines end with the statement count of the rebuilt body, "-" for
// methods without one, or the error that stopped reconstruction.
type LineEncoder struct {
	w     io.Writer
	opts  options
	class *classfile.ClassFile
}

func NewLineEncoder(w io.Writer, opts ...Option) *LineEncoder {
	e := &LineEncoder{w: w}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

func (e *LineEncoder) Encode(class *classfile.ClassFile) error {
	e.class = class
	return write(e.w, e)
}

func (e *LineEncoder) MarshalText() ([]byte, error) {
	var sb strings.Builder
	c := e.class
	cp := c.ConstantPool

	fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\n",
		classKind(c),
		sourceName(c.ClassName()),
		visibility(c.AccessFlags),
		joinModifiers(classModifiers(c.AccessFlags)),
	)

	if e.opts.method == "" {
		for i := range c.Fields {
			f := &c.Fields[i]
			fmt.Fprintf(&sb, "field\t%s\t%s\t%s\t%s\n",
				f.Name(cp),
				classfile.TypeOfDescriptor(f.Descriptor(cp)),
				visibility(f.AccessFlags),
				joinModifiers(fieldModifiers(f.AccessFlags)),
			)
		}
	}

	for _, m := range e.opts.methods(c) {
		fmt.Fprintf(&sb, "method\t%s\t%s\t%s\t%s\t%s\n",
			m.Name(cp),
			m.Descriptor(cp),
			visibility(m.AccessFlags),
			joinModifiers(methodModifiers(m.AccessFlags)),
			bodySummary(m),
		)
	}

	return []byte(sb.String()), nil
}

func joinModifiers(mods []string) string {
	if len(mods) == 0 {
		return "-"
	}
	return strings.Join(mods, ",")
}

func bodySummary(m *classfile.MethodInfo) string {
	if m.BodyErr != nil {
		return "error=" + strings.ReplaceAll(m.BodyErr.Error(), "\t", " ")
	}
	body := m.Body()
	if body == nil {
		return "-"
	}
	return fmt.Sprintf("stmts=%d", CountStatements(body))
}

// CountStatements counts the statements under root, nested ones included,
// blocks excluded.
func CountStatements(root ast.Stmt) int {
	n := 0
	ast.Inspect(root, func(node ast.CodeNode) {
		switch node.(type) {
		case *ast.BlockStmt:
		case ast.Stmt:
			n++
		}
	})
	return n
}
