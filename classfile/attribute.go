package classfile

import (
	"fmt"

	"github.com/dhamidi/rebuild/ast"
)

// Attribute is a decoded attribute. The concrete types are the ones in
// this file; attributes with names this package does not know decode to
// *OpaqueAttribute.
type Attribute interface {
	AttributeName() string
}

// Member owns attributes: *ClassFile, *FieldInfo, *MethodInfo, or
// *CodeAttribute for the attributes nested in a method body.
type Member interface {
	isMember()
}

func (*ClassFile) isMember()     {}
func (*FieldInfo) isMember()     {}
func (*MethodInfo) isMember()    {}
func (*CodeAttribute) isMember() {}

// OpaqueAttribute records the presence of an attribute whose content is not
// interpreted.
type OpaqueAttribute struct {
	Name   string
	Length int
}

type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	CodeOffset     int
	ExceptionTable []ExceptionTableEntry
	Attributes     []Attribute
	Body           *ast.BlockStmt
}

// ExceptionTableEntry covers [StartPC, EndPC). CatchType 0 catches
// everything.
type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

type ConstantValueAttribute struct {
	ValueIndex uint16
}

type SourceFileAttribute struct {
	SourceFileIndex uint16
}

type SignatureAttribute struct {
	SignatureIndex uint16
}

type ExceptionsAttribute struct {
	ExceptionIndexTable []uint16
}

type InnerClassesAttribute struct {
	Classes []InnerClassEntry
}

// InnerClassEntry mirrors one row of an InnerClasses table. Outer and name
// indices are 0 for local and anonymous classes.
type InnerClassEntry struct {
	InnerClassInfoIndex   uint16
	OuterClassInfoIndex   uint16
	InnerNameIndex        uint16
	InnerClassAccessFlags AccessFlags
}

type LineNumberTableAttribute struct {
	LineNumberTable []LineNumberEntry
}

type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

type LocalVariableTableAttribute struct {
	LocalVariableTable []LocalVariableEntry
}

type LocalVariableEntry struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

type SyntheticAttribute struct{}

type DeprecatedAttribute struct{}

func (a *OpaqueAttribute) AttributeName() string           { return a.Name }
func (*CodeAttribute) AttributeName() string               { return "Code" }
func (*ConstantValueAttribute) AttributeName() string      { return "ConstantValue" }
func (*SourceFileAttribute) AttributeName() string         { return "SourceFile" }
func (*SignatureAttribute) AttributeName() string          { return "Signature" }
func (*ExceptionsAttribute) AttributeName() string         { return "Exceptions" }
func (*InnerClassesAttribute) AttributeName() string       { return "InnerClasses" }
func (*LineNumberTableAttribute) AttributeName() string    { return "LineNumberTable" }
func (*LocalVariableTableAttribute) AttributeName() string { return "LocalVariableTable" }
func (*SyntheticAttribute) AttributeName() string          { return "Synthetic" }
func (*DeprecatedAttribute) AttributeName() string         { return "Deprecated" }

// ReadAttribute reads one attribute owned by owner. The outer cursor always
// advances by the 6 header bytes plus the declared length, whatever the
// payload decoder does; a decoder that leaves payload bytes unread fails
// with ErrLengthMismatch.
//
// A Code attribute whose body cannot be rebuilt is returned together with
// the error, so callers can keep the structural part.
func ReadAttribute(owner Member, cp *ConstantPool, c *Cursor) (Attribute, error) {
	start := c.Offset()
	nameIndex := c.U2()
	length := c.U4()
	payload := c.Sub(int(length))
	if err := c.Err(); err != nil {
		return nil, err
	}
	name, ok := cp.LookupUtf8(nameIndex)
	if !ok {
		return nil, &DecodeError{Offset: start, Err: fmt.Errorf("%w: attribute name index %d", ErrBadIndex, nameIndex)}
	}

	var (
		attr Attribute
		err  error
	)
	switch name {
	case "Code":
		var code *CodeAttribute
		if code, err = readCode(owner, cp, payload); code != nil {
			attr = code
		}
	case "ConstantValue":
		attr = &ConstantValueAttribute{ValueIndex: payload.U2()}
	case "SourceFile":
		attr = &SourceFileAttribute{SourceFileIndex: payload.U2()}
	case "Signature":
		attr = &SignatureAttribute{SignatureIndex: payload.U2()}
	case "Exceptions":
		attr = readExceptions(payload)
	case "InnerClasses":
		attr = readInnerClasses(payload)
	case "LineNumberTable":
		attr = readLineNumberTable(payload)
	case "LocalVariableTable":
		attr = readLocalVariableTable(payload)
	case "Synthetic":
		attr = &SyntheticAttribute{}
	case "Deprecated":
		attr = &DeprecatedAttribute{}
	default:
		log.Debugf("attribute %s (%d bytes) kept opaque", name, length)
		return &OpaqueAttribute{Name: name, Length: int(length)}, nil
	}

	if err == nil {
		err = payload.Err()
	}
	if err == nil && payload.Remaining() != 0 {
		err = &DecodeError{
			Offset: payload.Offset(),
			Err:    fmt.Errorf("%w: %d of %d bytes unread", ErrLengthMismatch, payload.Remaining(), length),
		}
	}
	if err != nil {
		return attr, fmt.Errorf("%s attribute: %w", name, err)
	}
	return attr, nil
}

func readAttributes(owner Member, cp *ConstantPool, c *Cursor) ([]Attribute, error) {
	count := c.U2()
	if err := c.Err(); err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		attr, err := ReadAttribute(owner, cp, c)
		if err != nil {
			return attrs, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func readCode(owner Member, cp *ConstantPool, c *Cursor) (*CodeAttribute, error) {
	m, ok := owner.(*MethodInfo)
	if !ok {
		return nil, &DecodeError{Offset: c.Offset(), Err: fmt.Errorf("%w: owner is %T", ErrNotMethod, owner)}
	}

	code := &CodeAttribute{
		MaxStack:  c.U2(),
		MaxLocals: c.U2(),
	}
	codeLength := c.U4()
	code.CodeOffset = c.Offset()
	code.Code = c.Bytes(int(codeLength))

	tableLength := c.U2()
	if err := c.Err(); err != nil {
		return nil, err
	}
	code.ExceptionTable = make([]ExceptionTableEntry, 0, tableLength)
	for i := 0; i < int(tableLength); i++ {
		code.ExceptionTable = append(code.ExceptionTable, ExceptionTableEntry{
			StartPC:   c.U2(),
			EndPC:     c.U2(),
			HandlerPC: c.U2(),
			CatchType: c.U2(),
		})
	}

	attrs, err := readAttributes(code, cp, c)
	code.Attributes = attrs
	if err != nil {
		return nil, err
	}
	if c.Remaining() != 0 {
		return nil, &DecodeError{Offset: c.Offset(), Err: fmt.Errorf("%w: %d bytes after nested attributes", ErrLengthMismatch, c.Remaining())}
	}

	m.Code = code
	body, err := Rebuild(m, cp)
	if err != nil {
		return code, withUnit(err, m.Signature(cp))
	}
	code.Body = body
	return code, nil
}

func readExceptions(c *Cursor) *ExceptionsAttribute {
	count := c.U2()
	attr := &ExceptionsAttribute{ExceptionIndexTable: make([]uint16, 0, count)}
	for i := 0; i < int(count) && c.Err() == nil; i++ {
		attr.ExceptionIndexTable = append(attr.ExceptionIndexTable, c.U2())
	}
	return attr
}

func readInnerClasses(c *Cursor) *InnerClassesAttribute {
	count := c.U2()
	attr := &InnerClassesAttribute{Classes: make([]InnerClassEntry, 0, count)}
	for i := 0; i < int(count) && c.Err() == nil; i++ {
		attr.Classes = append(attr.Classes, InnerClassEntry{
			InnerClassInfoIndex:   c.U2(),
			OuterClassInfoIndex:   c.U2(),
			InnerNameIndex:        c.U2(),
			InnerClassAccessFlags: AccessFlags(c.U2()),
		})
	}
	return attr
}

func readLineNumberTable(c *Cursor) *LineNumberTableAttribute {
	count := c.U2()
	attr := &LineNumberTableAttribute{LineNumberTable: make([]LineNumberEntry, 0, count)}
	for i := 0; i < int(count) && c.Err() == nil; i++ {
		attr.LineNumberTable = append(attr.LineNumberTable, LineNumberEntry{
			StartPC:    c.U2(),
			LineNumber: c.U2(),
		})
	}
	return attr
}

func readLocalVariableTable(c *Cursor) *LocalVariableTableAttribute {
	count := c.U2()
	attr := &LocalVariableTableAttribute{LocalVariableTable: make([]LocalVariableEntry, 0, count)}
	for i := 0; i < int(count) && c.Err() == nil; i++ {
		attr.LocalVariableTable = append(attr.LocalVariableTable, LocalVariableEntry{
			StartPC:         c.U2(),
			Length:          c.U2(),
			NameIndex:       c.U2(),
			DescriptorIndex: c.U2(),
			Index:           c.U2(),
		})
	}
	return attr
}

// Value resolves the constant a ConstantValue attribute points at.
func (a *ConstantValueAttribute) Value(cp *ConstantPool) (any, bool) {
	switch e := cp.Get(a.ValueIndex).(type) {
	case *ConstantIntegerInfo:
		return e.Value, true
	case *ConstantFloatInfo:
		return e.Value, true
	case *ConstantLongInfo:
		return e.Value, true
	case *ConstantDoubleInfo:
		return e.Value, true
	case *ConstantStringInfo:
		return cp.LookupUtf8(e.StringIndex)
	}
	return nil, false
}

// LineNumber maps a code offset to the source line of the nearest entry at
// or before it.
func (a *LineNumberTableAttribute) LineNumber(pc int) (int, bool) {
	best, found := -1, false
	line := 0
	for _, e := range a.LineNumberTable {
		if int(e.StartPC) <= pc && int(e.StartPC) > best {
			best, line, found = int(e.StartPC), int(e.LineNumber), true
		}
	}
	return line, found
}

// Attribute returns the first nested attribute named name.
func (code *CodeAttribute) Attribute(name string) Attribute {
	return findAttribute(code.Attributes, name)
}

func findAttribute(attrs []Attribute, name string) Attribute {
	for _, a := range attrs {
		if a.AttributeName() == name {
			return a
		}
	}
	return nil
}
