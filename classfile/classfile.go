package classfile

type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool *ConstantPool
	AccessFlags  AccessFlags
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo
	Attributes   []Attribute
}

// ClassName is the class's own name in internal form.
func (cf *ClassFile) ClassName() string {
	return cf.ConstantPool.ClassName(cf.ThisClass).Name()
}

// SuperClassName is empty for java/lang/Object and module descriptors.
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	return cf.ConstantPool.ClassName(cf.SuperClass).Name()
}

func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, len(cf.Interfaces))
	for i, idx := range cf.Interfaces {
		names[i] = cf.ConstantPool.ClassName(idx).Name()
	}
	return names
}

func (cf *ClassFile) IsInterface() bool {
	return cf.AccessFlags.IsInterface() && !cf.AccessFlags.IsAnnotation()
}

func (cf *ClassFile) GetField(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name(cf.ConstantPool) == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// GetMethod finds a method by name, and by descriptor unless descriptor is
// empty.
func (cf *ClassFile) GetMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name(cf.ConstantPool) == name {
			if descriptor == "" || cf.Methods[i].Descriptor(cf.ConstantPool) == descriptor {
				return &cf.Methods[i]
			}
		}
	}
	return nil
}

func (cf *ClassFile) GetAttribute(name string) Attribute {
	return findAttribute(cf.Attributes, name)
}

// SourceFile is the name recorded in the SourceFile attribute, if any.
func (cf *ClassFile) SourceFile() string {
	if a, ok := cf.GetAttribute("SourceFile").(*SourceFileAttribute); ok {
		s, _ := cf.ConstantPool.LookupUtf8(a.SourceFileIndex)
		return s
	}
	return ""
}

// BodyErrors collects the methods whose bodies failed to rebuild.
func (cf *ClassFile) BodyErrors() []error {
	var errs []error
	for i := range cf.Methods {
		if err := cf.Methods[i].BodyErr; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
