// Package ast is the tree that method bodies are rebuilt into: expressions
// that produce typed values, statements that sequence effects, and the
// CodeVisitor protocol used to walk them.
package ast

import "strings"

type Kind uint8

const (
	Void Kind = iota
	Boolean
	Byte
	Char
	Short
	Int
	Long
	Float
	Double
	Reference
)

var kindNames = [...]string{
	Void:      "void",
	Boolean:   "boolean",
	Byte:      "byte",
	Char:      "char",
	Short:     "short",
	Int:       "int",
	Long:      "long",
	Float:     "float",
	Double:    "double",
	Reference: "reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Type is the resolved type attached to an expression. Class is set for
// reference kinds and may be empty when only "some object" is known.
// Dims counts array dimensions over the element type.
type Type struct {
	Kind  Kind
	Class string
	Dims  int
}

var (
	VoidType    = Type{Kind: Void}
	BooleanType = Type{Kind: Boolean}
	ByteType    = Type{Kind: Byte}
	CharType    = Type{Kind: Char}
	ShortType   = Type{Kind: Short}
	IntType     = Type{Kind: Int}
	LongType    = Type{Kind: Long}
	FloatType   = Type{Kind: Float}
	DoubleType  = Type{Kind: Double}
	ObjectType  = Type{Kind: Reference}
	StringType  = Type{Kind: Reference, Class: "java/lang/String"}
	ClassType   = Type{Kind: Reference, Class: "java/lang/Class"}
)

func ClassOf(name string) Type {
	return Type{Kind: Reference, Class: name}
}

func ArrayOf(elem Type) Type {
	elem.Dims++
	return elem
}

func (t Type) IsArray() bool {
	return t.Dims > 0
}

func (t Type) IsReference() bool {
	return t.Kind == Reference || t.Dims > 0
}

// Elem is the element type of an array type. For non-arrays it returns an
// untyped reference.
func (t Type) Elem() Type {
	if t.Dims == 0 {
		return ObjectType
	}
	t.Dims--
	return t
}

// Category is the number of operand stack slots a value of this type uses.
func (t Type) Category() int {
	if t.Dims == 0 && (t.Kind == Long || t.Kind == Double) {
		return 2
	}
	return 1
}

func (t Type) String() string {
	var sb strings.Builder
	if t.Kind == Reference {
		if t.Class == "" {
			sb.WriteString("java.lang.Object")
		} else {
			sb.WriteString(strings.ReplaceAll(t.Class, "/", "."))
		}
	} else {
		sb.WriteString(t.Kind.String())
	}
	for i := 0; i < t.Dims; i++ {
		sb.WriteString("[]")
	}
	return sb.String()
}
