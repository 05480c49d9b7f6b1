package classfile

import (
	"fmt"
	"io"
	"os"
)

func ParseFile(path string, resolver ClassResolver) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}
	return ParseBytes(data, resolver)
}

func Parse(rd io.Reader, resolver ClassResolver) (*ClassFile, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}
	return ParseBytes(data, resolver)
}

// ParseBytes decodes a whole class file. resolver is handed to the
// constant pool for class lookups and may be nil.
//
// Malformed class structure fails the class. A method whose body cannot be
// decoded or rebuilt is kept with BodyErr set, and decoding continues with
// the next method.
func ParseBytes(data []byte, resolver ClassResolver) (*ClassFile, error) {
	c := NewCursor(data)

	magic := c.U4()
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if magic != Magic {
		return nil, &DecodeError{Offset: 0, Err: fmt.Errorf("%w: magic 0x%08X", ErrBadMagic, magic)}
	}

	cf := &ClassFile{
		MinorVersion: c.U2(),
		MajorVersion: c.U2(),
	}
	count := c.U2()
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}

	cp, err := ReadConstantPool(resolver, count, c)
	if err != nil {
		return nil, err
	}
	cf.ConstantPool = cp

	cf.AccessFlags = AccessFlags(c.U2())
	cf.ThisClass = c.U2()
	cf.SuperClass = c.U2()
	interfaceCount := c.U2()
	for i := 0; i < int(interfaceCount) && c.Err() == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, c.U2())
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class info: %w", err)
	}
	if err := cf.checkClassRefs(); err != nil {
		return nil, err
	}
	unit := cf.ClassName()

	fieldCount := c.U2()
	if err := c.Err(); err != nil {
		return nil, withUnit(err, unit)
	}
	cf.Fields = make([]FieldInfo, fieldCount)
	for i := range cf.Fields {
		if err := readField(&cf.Fields[i], cp, c); err != nil {
			return nil, withUnit(fmt.Errorf("field %d: %w", i, err), unit)
		}
	}

	methodCount := c.U2()
	if err := c.Err(); err != nil {
		return nil, withUnit(err, unit)
	}
	cf.Methods = make([]MethodInfo, methodCount)
	for i := range cf.Methods {
		m := &cf.Methods[i]
		m.Owner = unit
		if err := readMethod(m, cp, c); err != nil {
			return nil, withUnit(fmt.Errorf("method %d: %w", i, err), unit)
		}
	}

	attrs, err := readAttributes(cf, cp, c)
	if err != nil {
		return nil, withUnit(err, unit)
	}
	cf.Attributes = attrs

	if c.Remaining() != 0 {
		log.Warningf("%s: %d trailing bytes after class file", unit, c.Remaining())
	}
	return cf, nil
}

func (cf *ClassFile) checkClassRefs() error {
	check := func(what string, index uint16) error {
		if class, ok := cf.ConstantPool.Get(index).(*ConstantClassInfo); ok {
			if _, ok := cf.ConstantPool.LookupUtf8(class.NameIndex); ok {
				return nil
			}
		}
		return &DecodeError{Err: fmt.Errorf("%w: %s class index %d", ErrBadIndex, what, index)}
	}
	if err := check("this", cf.ThisClass); err != nil {
		return err
	}
	if cf.SuperClass != 0 {
		if err := check("super", cf.SuperClass); err != nil {
			return err
		}
	}
	for _, idx := range cf.Interfaces {
		if err := check("interface", idx); err != nil {
			return err
		}
	}
	return nil
}

func readMemberHeader(cp *ConstantPool, c *Cursor) (AccessFlags, uint16, uint16, error) {
	start := c.Offset()
	flags := AccessFlags(c.U2())
	nameIndex := c.U2()
	descIndex := c.U2()
	if err := c.Err(); err != nil {
		return 0, 0, 0, err
	}
	_, okName := cp.LookupUtf8(nameIndex)
	_, okDesc := cp.LookupUtf8(descIndex)
	if !okName || !okDesc {
		return 0, 0, 0, &DecodeError{Offset: start, Err: fmt.Errorf("%w: member name %d, descriptor %d", ErrBadIndex, nameIndex, descIndex)}
	}
	return flags, nameIndex, descIndex, nil
}

func readField(f *FieldInfo, cp *ConstantPool, c *Cursor) error {
	var err error
	if f.AccessFlags, f.NameIndex, f.DescriptorIndex, err = readMemberHeader(cp, c); err != nil {
		return err
	}
	f.Attributes, err = readAttributes(f, cp, c)
	return err
}

// readMethod fails only when the class itself can no longer be read.
// Errors confined to one attribute's payload end up in m.BodyErr. The first
// one is kept.
func readMethod(m *MethodInfo, cp *ConstantPool, c *Cursor) error {
	var err error
	if m.AccessFlags, m.NameIndex, m.DescriptorIndex, err = readMemberHeader(cp, c); err != nil {
		return err
	}
	count := c.U2()
	if err := c.Err(); err != nil {
		return err
	}
	m.Attributes = make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		attr, err := ReadAttribute(m, cp, c)
		if c.Err() != nil {
			return c.Err()
		}
		if err != nil {
			err = withUnit(err, m.Signature(cp))
			log.Warningf("%s", err)
			if m.BodyErr == nil {
				m.BodyErr = err
			}
		}
		if attr != nil {
			m.Attributes = append(m.Attributes, attr)
		}
	}
	return nil
}
