package classfile

type FieldInfo struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

func (f *FieldInfo) Name(cp *ConstantPool) string {
	return cp.Utf8(f.NameIndex)
}

func (f *FieldInfo) Descriptor(cp *ConstantPool) string {
	return cp.Utf8(f.DescriptorIndex)
}

func (f *FieldInfo) GetAttribute(name string) Attribute {
	return findAttribute(f.Attributes, name)
}

// ConstantValue is the compile-time value of a static final field.
func (f *FieldInfo) ConstantValue(cp *ConstantPool) (any, bool) {
	if a, ok := f.GetAttribute("ConstantValue").(*ConstantValueAttribute); ok {
		return a.Value(cp)
	}
	return nil, false
}

func (f *FieldInfo) IsStatic() bool { return f.AccessFlags.IsStatic() }
func (f *FieldInfo) IsFinal() bool  { return f.AccessFlags.IsFinal() }

func (f *FieldInfo) ParsedDescriptor(cp *ConstantPool) *FieldType {
	return ParseFieldDescriptor(f.Descriptor(cp))
}
