package classfile

import (
	"strings"

	"github.com/dhamidi/rebuild/ast"
)

// FieldType is a parsed field descriptor. Exactly one of BaseType and
// ClassName is set.
type FieldType struct {
	BaseType   string
	ClassName  string
	ArrayDepth int
}

func (ft *FieldType) String() string {
	return ft.NodeType().String()
}

var baseKinds = map[string]ast.Kind{
	"boolean": ast.Boolean,
	"byte":    ast.Byte,
	"char":    ast.Char,
	"short":   ast.Short,
	"int":     ast.Int,
	"long":    ast.Long,
	"float":   ast.Float,
	"double":  ast.Double,
}

// NodeType converts the descriptor to the type attached to tree nodes. A
// nil FieldType is void.
func (ft *FieldType) NodeType() ast.Type {
	if ft == nil {
		return ast.VoidType
	}
	t := ast.Type{Kind: ast.Reference, Class: ft.ClassName, Dims: ft.ArrayDepth}
	if kind, ok := baseKinds[ft.BaseType]; ok {
		t.Kind = kind
		t.Class = ""
	}
	return t
}

func (ft *FieldType) IsArray() bool {
	return ft.ArrayDepth > 0
}

func (ft *FieldType) IsPrimitive() bool {
	return ft.BaseType != "" && ft.ClassName == ""
}

func (ft *FieldType) IsReference() bool {
	return ft.ClassName != "" || ft.ArrayDepth > 0
}

// MethodDescriptor is a parsed method descriptor. ReturnType is nil for
// void methods.
type MethodDescriptor struct {
	Parameters []FieldType
	ReturnType *FieldType
}

func (md *MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, p := range md.Parameters {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")")
	if md.ReturnType != nil {
		sb.WriteString(" ")
		sb.WriteString(md.ReturnType.String())
	} else {
		sb.WriteString(" void")
	}
	return sb.String()
}

// ArgSlots is the number of local variable slots the parameters occupy,
// not counting the receiver.
func (md *MethodDescriptor) ArgSlots() int {
	n := 0
	for i := range md.Parameters {
		n += md.Parameters[i].NodeType().Category()
	}
	return n
}

// TypeOfDescriptor parses a field descriptor straight into a node type.
// Malformed descriptors yield an untyped reference.
func TypeOfDescriptor(desc string) ast.Type {
	ft := ParseFieldDescriptor(desc)
	if ft == nil {
		return ast.ObjectType
	}
	return ft.NodeType()
}

// TypeOfClassRef converts the operand of new, checkcast, instanceof and
// anewarray, which is either an internal class name or, for arrays, a
// descriptor.
func TypeOfClassRef(name string) ast.Type {
	if strings.HasPrefix(name, "[") {
		return TypeOfDescriptor(name)
	}
	return ast.ClassOf(name)
}

// ParseFieldDescriptor returns nil for malformed input.
func ParseFieldDescriptor(desc string) *FieldType {
	ft, n := parseFieldType(desc, 0)
	if ft == nil || n != len(desc) {
		return nil
	}
	return ft
}

func ParseMethodDescriptor(desc string) *MethodDescriptor {
	if len(desc) == 0 || desc[0] != '(' {
		return nil
	}

	md := &MethodDescriptor{}
	i := 1

	for i < len(desc) && desc[i] != ')' {
		ft, consumed := parseFieldType(desc, i)
		if ft == nil {
			return nil
		}
		md.Parameters = append(md.Parameters, *ft)
		i += consumed
	}

	if i >= len(desc) || desc[i] != ')' {
		return nil
	}
	i++

	if desc[i:] == "V" {
		return md
	}
	ret, n := parseFieldType(desc, i)
	if ret == nil || i+n != len(desc) {
		return nil
	}
	md.ReturnType = ret
	return md
}

func parseFieldType(desc string, start int) (*FieldType, int) {
	if start >= len(desc) {
		return nil, 0
	}

	ft := &FieldType{}
	i := start

	for i < len(desc) && desc[i] == '[' {
		ft.ArrayDepth++
		i++
	}

	if i >= len(desc) {
		return nil, 0
	}

	switch desc[i] {
	case 'B':
		ft.BaseType = "byte"
		return ft, i - start + 1
	case 'C':
		ft.BaseType = "char"
		return ft, i - start + 1
	case 'D':
		ft.BaseType = "double"
		return ft, i - start + 1
	case 'F':
		ft.BaseType = "float"
		return ft, i - start + 1
	case 'I':
		ft.BaseType = "int"
		return ft, i - start + 1
	case 'J':
		ft.BaseType = "long"
		return ft, i - start + 1
	case 'S':
		ft.BaseType = "short"
		return ft, i - start + 1
	case 'Z':
		ft.BaseType = "boolean"
		return ft, i - start + 1
	case 'L':
		semicolon := strings.IndexByte(desc[i:], ';')
		if semicolon == -1 {
			return nil, 0
		}
		ft.ClassName = desc[i+1 : i+semicolon]
		return ft, i - start + semicolon + 1
	default:
		return nil, 0
	}
}

func InternalToSourceName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

func SourceToInternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}
