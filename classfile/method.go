package classfile

import "github.com/dhamidi/rebuild/ast"

type MethodInfo struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute

	// Owner is the declaring class in internal form.
	Owner string
	// Code is set once the method's Code attribute has been read.
	Code *CodeAttribute
	// BodyErr records why the body could not be decoded or rebuilt. The
	// rest of the class is unaffected.
	BodyErr error
}

func (m *MethodInfo) Name(cp *ConstantPool) string {
	return cp.Utf8(m.NameIndex)
}

func (m *MethodInfo) Descriptor(cp *ConstantPool) string {
	return cp.Utf8(m.DescriptorIndex)
}

// Signature names the method for messages: owner.name(descriptor).
func (m *MethodInfo) Signature(cp *ConstantPool) string {
	name, _ := cp.LookupUtf8(m.NameIndex)
	desc, _ := cp.LookupUtf8(m.DescriptorIndex)
	if m.Owner == "" {
		return name + desc
	}
	return m.Owner + "." + name + desc
}

func (m *MethodInfo) GetAttribute(name string) Attribute {
	return findAttribute(m.Attributes, name)
}

// Body is the rebuilt method body, or nil for abstract and native methods
// and methods whose body failed to rebuild.
func (m *MethodInfo) Body() *ast.BlockStmt {
	if m.Code == nil {
		return nil
	}
	return m.Code.Body
}

func (m *MethodInfo) IsStatic() bool   { return m.AccessFlags.IsStatic() }
func (m *MethodInfo) IsAbstract() bool { return m.AccessFlags.IsAbstract() }
func (m *MethodInfo) IsNative() bool   { return m.AccessFlags.IsNative() }

func (m *MethodInfo) IsConstructor(cp *ConstantPool) bool {
	return m.Name(cp) == "<init>"
}

func (m *MethodInfo) ParsedDescriptor(cp *ConstantPool) *MethodDescriptor {
	return ParseMethodDescriptor(m.Descriptor(cp))
}
