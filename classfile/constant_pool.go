package classfile

import (
	"fmt"
	"math"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rebuild.classfile")

// ConstantPoolEntry is one slot of the pool. The set of implementations is
// closed; callers switch on the concrete type.
type ConstantPoolEntry interface {
	Tag() ConstantTag
	isConstant()
}

type ConstantUtf8Info struct {
	Value string
}

type ConstantIntegerInfo struct {
	Value int32
}

type ConstantFloatInfo struct {
	Value float32
}

type ConstantLongInfo struct {
	Value int64
}

type ConstantDoubleInfo struct {
	Value float64
}

type ConstantClassInfo struct {
	NameIndex uint16
}

type ConstantStringInfo struct {
	StringIndex uint16
}

// ConstantMemberrefInfo backs field, method and interface method
// references; Kind records which of the three tags it was read from.
type ConstantMemberrefInfo struct {
	Kind             ConstantTag
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantNameAndTypeInfo struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

// ConstantSkippedInfo stands in for tags whose payload is skipped rather
// than modeled (method handles, method types, dynamic call sites, modules,
// packages). Raw keeps the payload bytes uninterpreted.
type ConstantSkippedInfo struct {
	Kind ConstantTag
	Raw  []byte
}

func (c *ConstantUtf8Info) Tag() ConstantTag        { return ConstantUtf8 }
func (c *ConstantIntegerInfo) Tag() ConstantTag     { return ConstantInteger }
func (c *ConstantFloatInfo) Tag() ConstantTag       { return ConstantFloat }
func (c *ConstantLongInfo) Tag() ConstantTag        { return ConstantLong }
func (c *ConstantDoubleInfo) Tag() ConstantTag      { return ConstantDouble }
func (c *ConstantClassInfo) Tag() ConstantTag       { return ConstantClass }
func (c *ConstantStringInfo) Tag() ConstantTag      { return ConstantString }
func (c *ConstantMemberrefInfo) Tag() ConstantTag   { return c.Kind }
func (c *ConstantNameAndTypeInfo) Tag() ConstantTag { return ConstantNameAndType }
func (c *ConstantSkippedInfo) Tag() ConstantTag     { return c.Kind }

func (*ConstantUtf8Info) isConstant()        {}
func (*ConstantIntegerInfo) isConstant()     {}
func (*ConstantFloatInfo) isConstant()       {}
func (*ConstantLongInfo) isConstant()        {}
func (*ConstantDoubleInfo) isConstant()      {}
func (*ConstantClassInfo) isConstant()       {}
func (*ConstantStringInfo) isConstant()      {}
func (*ConstantMemberrefInfo) isConstant()   {}
func (*ConstantNameAndTypeInfo) isConstant() {}
func (*ConstantSkippedInfo) isConstant()     {}

// ClassResolver loads classes referenced from a pool. Names are given in
// dotted form. Implementations shared between goroutines must be safe for
// concurrent use.
type ClassResolver interface {
	ResolveClass(name string) (*ClassFile, error)
}

// ConstantPool is the decoded, 1-indexed constant table. Slot 0, the slot
// after a long or double, and nothing else are nil. Entries hold indices,
// never resolved values, so forward references need no fixup.
type ConstantPool struct {
	entries  []ConstantPoolEntry
	resolver ClassResolver
}

// ReadConstantPool reads count-1 entries from c. resolver may be nil, in
// which case every class lookup resolves to absent.
func ReadConstantPool(resolver ClassResolver, count uint16, c *Cursor) (*ConstantPool, error) {
	cp := &ConstantPool{
		entries:  make([]ConstantPoolEntry, count),
		resolver: resolver,
	}
	for i := 1; i < int(count); i++ {
		start := c.Offset()
		tag := ConstantTag(c.U1())
		entry := readConstant(tag, c)
		if err := c.Err(); err != nil {
			return nil, fmt.Errorf("constant pool entry %d: %w", i, err)
		}
		if entry == nil {
			return nil, fmt.Errorf("constant pool entry %d: %w", i,
				&DecodeError{Offset: start, Err: fmt.Errorf("%w: %d", ErrUnknownTag, uint8(tag))})
		}
		cp.entries[i] = entry
		if tag.wide() {
			i++
		}
	}
	return cp, nil
}

func readConstant(tag ConstantTag, c *Cursor) ConstantPoolEntry {
	if n := tag.skipSize(); n >= 0 {
		return &ConstantSkippedInfo{Kind: tag, Raw: c.Bytes(n)}
	}

	switch tag {
	case ConstantUtf8:
		length := c.U2()
		return &ConstantUtf8Info{Value: decodeModifiedUtf8(c.Bytes(int(length)))}
	case ConstantInteger:
		return &ConstantIntegerInfo{Value: int32(c.U4())}
	case ConstantFloat:
		return &ConstantFloatInfo{Value: math.Float32frombits(c.U4())}
	case ConstantLong:
		high := c.U4()
		low := c.U4()
		return &ConstantLongInfo{Value: int64(high)<<32 | int64(low)}
	case ConstantDouble:
		bits := c.U8()
		return &ConstantDoubleInfo{Value: math.Float64frombits(bits)}
	case ConstantClass:
		return &ConstantClassInfo{NameIndex: c.U2()}
	case ConstantString:
		return &ConstantStringInfo{StringIndex: c.U2()}
	case ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref:
		classIndex := c.U2()
		nameAndTypeIndex := c.U2()
		return &ConstantMemberrefInfo{
			Kind:             tag,
			ClassIndex:       classIndex,
			NameAndTypeIndex: nameAndTypeIndex,
		}
	case ConstantNameAndType:
		nameIndex := c.U2()
		descriptorIndex := c.U2()
		return &ConstantNameAndTypeInfo{
			NameIndex:       nameIndex,
			DescriptorIndex: descriptorIndex,
		}
	}
	return nil
}

// Size is the declared pool count, one more than the number of usable slots.
func (cp *ConstantPool) Size() int {
	return len(cp.entries)
}

func (cp *ConstantPool) Has(index uint16) bool {
	return int(index) < len(cp.entries) && cp.entries[index] != nil
}

// Get returns the entry at index, or nil for an unused or out-of-range slot.
func (cp *ConstantPool) Get(index uint16) ConstantPoolEntry {
	if int(index) >= len(cp.entries) {
		return nil
	}
	return cp.entries[index]
}

// Tag reports the tag of the entry at index; ok is false for unused slots.
func (cp *ConstantPool) Tag(index uint16) (ConstantTag, bool) {
	e := cp.Get(index)
	if e == nil {
		return 0, false
	}
	return e.Tag(), true
}

func (cp *ConstantPool) mismatch(index uint16, want ConstantTag) string {
	got := "empty slot"
	if e := cp.Get(index); e != nil {
		got = e.Tag().String()
	}
	return fmt.Sprintf("classfile: constant pool index %d holds %s, not %s", index, got, want)
}

// Utf8 returns the text at index. It panics if the slot is not a Utf8
// entry.
func (cp *ConstantPool) Utf8(index uint16) string {
	entry, ok := cp.Get(index).(*ConstantUtf8Info)
	if !ok {
		panic(cp.mismatch(index, ConstantUtf8))
	}
	return entry.Value
}

// LookupUtf8 is Utf8 for indices taken straight from untrusted input.
func (cp *ConstantPool) LookupUtf8(index uint16) (string, bool) {
	entry, ok := cp.Get(index).(*ConstantUtf8Info)
	if !ok {
		return "", false
	}
	return entry.Value, true
}

// ClassName returns the class reference at index. It panics if the slot is
// not a Class entry.
func (cp *ConstantPool) ClassName(index uint16) ClassName {
	entry, ok := cp.Get(index).(*ConstantClassInfo)
	if !ok {
		panic(cp.mismatch(index, ConstantClass))
	}
	return ClassName{pool: cp, NameIndex: entry.NameIndex}
}

// Class resolves the class referenced at index. An empty slot and a class
// the resolver cannot load both yield false.
func (cp *ConstantPool) Class(index uint16) (*ClassFile, bool) {
	if cp.Get(index) == nil {
		return nil, false
	}
	return cp.ClassName(index).Get()
}

// NameType returns the name-and-type pair at index. It panics if the slot
// is not a NameAndType entry.
func (cp *ConstantPool) NameType(index uint16) NameType {
	entry, ok := cp.Get(index).(*ConstantNameAndTypeInfo)
	if !ok {
		panic(cp.mismatch(index, ConstantNameAndType))
	}
	return NameType{pool: cp, NameIndex: entry.NameIndex, DescriptorIndex: entry.DescriptorIndex}
}

// MemberRef returns the field, method or interface method reference at
// index. It panics for any other entry.
func (cp *ConstantPool) MemberRef(index uint16) MemberRef {
	entry, ok := cp.Get(index).(*ConstantMemberrefInfo)
	if !ok {
		panic(cp.mismatch(index, ConstantMethodref))
	}
	return MemberRef{
		pool:             cp,
		Index:            index,
		Kind:             entry.Kind,
		ClassIndex:       entry.ClassIndex,
		NameAndTypeIndex: entry.NameAndTypeIndex,
	}
}

func (cp *ConstantPool) Integer(index uint16) (int32, bool) {
	if entry, ok := cp.Get(index).(*ConstantIntegerInfo); ok {
		return entry.Value, true
	}
	return 0, false
}

func (cp *ConstantPool) Float(index uint16) (float32, bool) {
	if entry, ok := cp.Get(index).(*ConstantFloatInfo); ok {
		return entry.Value, true
	}
	return 0, false
}

func (cp *ConstantPool) Long(index uint16) (int64, bool) {
	if entry, ok := cp.Get(index).(*ConstantLongInfo); ok {
		return entry.Value, true
	}
	return 0, false
}

func (cp *ConstantPool) Double(index uint16) (float64, bool) {
	if entry, ok := cp.Get(index).(*ConstantDoubleInfo); ok {
		return entry.Value, true
	}
	return 0, false
}

// StringLiteral resolves a String entry through the Utf8 entry it names.
func (cp *ConstantPool) StringLiteral(index uint16) (string, bool) {
	entry, ok := cp.Get(index).(*ConstantStringInfo)
	if !ok {
		return "", false
	}
	return cp.LookupUtf8(entry.StringIndex)
}

// CallSite returns the name and descriptor of a dynamic constant or call
// site entry. The bootstrap half of the entry is left unread.
func (cp *ConstantPool) CallSite(index uint16) (NameType, bool) {
	entry, ok := cp.Get(index).(*ConstantSkippedInfo)
	if !ok || len(entry.Raw) != 4 || (entry.Kind != ConstantInvokeDynamic && entry.Kind != ConstantDynamic) {
		return NameType{}, false
	}
	natIndex := uint16(entry.Raw[2])<<8 | uint16(entry.Raw[3])
	nat, ok := cp.Get(natIndex).(*ConstantNameAndTypeInfo)
	if !ok {
		return NameType{}, false
	}
	return NameType{pool: cp, NameIndex: nat.NameIndex, DescriptorIndex: nat.DescriptorIndex}, true
}

func (cp *ConstantPool) resolve(internalName string) (*ClassFile, bool) {
	if cp.resolver == nil {
		return nil, false
	}
	dotted := InternalToSourceName(internalName)
	cf, err := cp.resolver.ResolveClass(dotted)
	if err != nil {
		log.Debugf("class %s not resolved: %s", dotted, err)
		return nil, false
	}
	return cf, cf != nil
}

// ClassName is a lazily resolved class reference.
type ClassName struct {
	pool      *ConstantPool
	NameIndex uint16
}

// Name is the referenced class in internal (slash-separated) form.
func (n ClassName) Name() string {
	return n.pool.Utf8(n.NameIndex)
}

// Get loads the referenced class through the pool's resolver. Load
// failures are not errors: the class is reported absent.
func (n ClassName) Get() (*ClassFile, bool) {
	return n.pool.resolve(n.Name())
}

type NameType struct {
	pool            *ConstantPool
	NameIndex       uint16
	DescriptorIndex uint16
}

func (nt NameType) Name() string {
	return nt.pool.Utf8(nt.NameIndex)
}

func (nt NameType) Descriptor() string {
	return nt.pool.Utf8(nt.DescriptorIndex)
}

func (nt NameType) FieldType() *FieldType {
	return ParseFieldDescriptor(nt.Descriptor())
}

func (nt NameType) MethodDescriptor() *MethodDescriptor {
	return ParseMethodDescriptor(nt.Descriptor())
}

// MemberRef is a view over a field, method or interface method reference.
type MemberRef struct {
	pool             *ConstantPool
	Index            uint16
	Kind             ConstantTag
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (r MemberRef) IsField() bool {
	return r.Kind == ConstantFieldref
}

func (r MemberRef) ClassOwner() (*ClassFile, bool) {
	return r.pool.Class(r.ClassIndex)
}

// OwnerName is the owning class in internal form.
func (r MemberRef) OwnerName() string {
	return r.pool.ClassName(r.ClassIndex).Name()
}

func (r MemberRef) NameType() NameType {
	return r.pool.NameType(r.NameAndTypeIndex)
}

func (r MemberRef) String() string {
	nt := r.NameType()
	return r.OwnerName() + "." + nt.Name() + ":" + nt.Descriptor()
}

// ResolvedField is a field declaration together with the class declaring it.
type ResolvedField struct {
	Owner *ClassFile
	*FieldInfo
}

// Field finds the declaration this reference names, searching the owning
// class and then its superclasses in order. It reports false when no class
// in the loadable part of the chain declares a field with the same name and
// descriptor.
func (r MemberRef) Field() (ResolvedField, bool) {
	cf, ok := r.ClassOwner()
	if !ok {
		return ResolvedField{}, false
	}
	nt := r.NameType()
	name, desc := nt.Name(), nt.Descriptor()

	seen := make(map[*ClassFile]bool)
	for cf != nil && !seen[cf] {
		seen[cf] = true
		for i := range cf.Fields {
			f := &cf.Fields[i]
			if f.Name(cf.ConstantPool) == name && f.Descriptor(cf.ConstantPool) == desc {
				return ResolvedField{Owner: cf, FieldInfo: f}, true
			}
		}
		super := cf.SuperClassName()
		if super == "" {
			break
		}
		if cf, ok = r.pool.resolve(super); !ok {
			break
		}
	}
	return ResolvedField{}, false
}

// MemberRefIterator walks the member references of a pool once, in index
// order. It cannot be rewound.
type MemberRefIterator struct {
	pool    *ConstantPool
	index   int
	pending bool
}

func (cp *ConstantPool) MemberRefs() *MemberRefIterator {
	return &MemberRefIterator{pool: cp}
}

// HasNext positions the iterator on the next member reference and reports
// whether there is one.
func (it *MemberRefIterator) HasNext() bool {
	if it.pending {
		return true
	}
	for it.index < len(it.pool.entries) {
		if _, ok := it.pool.entries[it.index].(*ConstantMemberrefInfo); ok {
			it.pending = true
			return true
		}
		it.index++
	}
	return false
}

// Next returns the reference found by the preceding HasNext. Without one it
// returns false.
func (it *MemberRefIterator) Next() (MemberRef, bool) {
	if !it.pending {
		return MemberRef{}, false
	}
	it.pending = false
	ref := it.pool.MemberRef(uint16(it.index))
	it.index++
	return ref, true
}

// Describe renders the entry at index for listings. It never panics.
func (cp *ConstantPool) Describe(index uint16) string {
	switch e := cp.Get(index).(type) {
	case nil:
		return ""
	case *ConstantUtf8Info:
		return e.Value
	case *ConstantIntegerInfo:
		return fmt.Sprint(e.Value)
	case *ConstantFloatInfo:
		return fmt.Sprint(e.Value)
	case *ConstantLongInfo:
		return fmt.Sprint(e.Value)
	case *ConstantDoubleInfo:
		return fmt.Sprint(e.Value)
	case *ConstantClassInfo:
		s, _ := cp.LookupUtf8(e.NameIndex)
		return s
	case *ConstantStringInfo:
		s, _ := cp.LookupUtf8(e.StringIndex)
		return fmt.Sprintf("%q", s)
	case *ConstantNameAndTypeInfo:
		name, _ := cp.LookupUtf8(e.NameIndex)
		desc, _ := cp.LookupUtf8(e.DescriptorIndex)
		return name + ":" + desc
	case *ConstantMemberrefInfo:
		var sb strings.Builder
		if class, ok := cp.Get(e.ClassIndex).(*ConstantClassInfo); ok {
			s, _ := cp.LookupUtf8(class.NameIndex)
			sb.WriteString(s)
		}
		sb.WriteString(".")
		if nt, ok := cp.Get(e.NameAndTypeIndex).(*ConstantNameAndTypeInfo); ok {
			name, _ := cp.LookupUtf8(nt.NameIndex)
			desc, _ := cp.LookupUtf8(nt.DescriptorIndex)
			sb.WriteString(name + ":" + desc)
		}
		return sb.String()
	case *ConstantSkippedInfo:
		return "<" + e.Kind.String() + ">"
	}
	return ""
}
