package classfile

import (
	"errors"
	"strings"
	"testing"
)

var errNotFound = errors.New("class not found")

func readPool(t *testing.T, p *poolBuilder, resolver ClassResolver) *ConstantPool {
	t.Helper()
	data := p.encoded()
	c := NewCursor(data[2:])
	cp, err := ReadConstantPool(resolver, p.next, c)
	if err != nil {
		t.Fatalf("ReadConstantPool() error = %v", err)
	}
	if c.Remaining() != 0 {
		t.Fatalf("ReadConstantPool() left %d bytes", c.Remaining())
	}
	return cp
}

func TestConstantPoolWideEntries(t *testing.T) {
	p := newPool()
	a := p.utf8("a")
	l := p.long(-2)
	d := p.double(1.5)
	i := p.integer(42)
	cp := readPool(t, p, nil)

	if a != 1 || l != 2 || d != 4 || i != 6 {
		t.Fatalf("indices = %d %d %d %d, want 1 2 4 6", a, l, d, i)
	}
	if cp.Size() != 7 {
		t.Errorf("Size() = %d, want 7", cp.Size())
	}
	for _, idx := range []uint16{0, 3, 5, 7} {
		if cp.Has(idx) {
			t.Errorf("Has(%d) = true, want false", idx)
		}
	}
	if v, ok := cp.Long(l); !ok || v != -2 {
		t.Errorf("Long(%d) = %d, %v", l, v, ok)
	}
	if v, ok := cp.Double(d); !ok || v != 1.5 {
		t.Errorf("Double(%d) = %v, %v", d, v, ok)
	}
	if v, ok := cp.Integer(i); !ok || v != 42 {
		t.Errorf("Integer(%d) = %d, %v", i, v, ok)
	}
	if tag, ok := cp.Tag(l); !ok || tag != ConstantLong {
		t.Errorf("Tag(%d) = %v, %v", l, tag, ok)
	}
	if _, ok := cp.Tag(3); ok {
		t.Error("Tag(3) reported an entry for the slot after a long")
	}
}

func TestConstantPoolUtf8RoundTrip(t *testing.T) {
	tests := []string{"hello", "", "java/lang/Object", "héllo", "nul\x00byte", "日本", "\U0001F600"}
	p := newPool()
	indices := make([]uint16, len(tests))
	for k, s := range tests {
		indices[k] = p.utf8(s)
	}
	cp := readPool(t, p, nil)
	for k, want := range tests {
		if got := cp.Utf8(indices[k]); got != want {
			t.Errorf("Utf8(%d) = %q, want %q", indices[k], got, want)
		}
	}
}

func TestConstantPoolSkippedTags(t *testing.T) {
	p := newPool()
	nt := p.nameType("run", "()Ljava/lang/Runnable;")
	p.add(ConstantMethodHandle, []byte{6, 0, 1})
	p.add(ConstantMethodType, u2(1))
	p.add(ConstantDynamic, cat(u2(0), u2(nt)))
	indy := p.add(ConstantInvokeDynamic, cat(u2(0), u2(nt)))
	p.add(ConstantModule, u2(1))
	p.add(ConstantPackage, u2(1))
	last := p.integer(7)
	cp := readPool(t, p, nil)

	if v, ok := cp.Integer(last); !ok || v != 7 {
		t.Fatalf("entry after skipped tags = %d, %v", v, ok)
	}
	site, ok := cp.CallSite(indy)
	if !ok {
		t.Fatal("CallSite() = false")
	}
	if site.Name() != "run" || site.Descriptor() != "()Ljava/lang/Runnable;" {
		t.Errorf("CallSite() = %s %s", site.Name(), site.Descriptor())
	}
	if got := cp.Describe(indy); got != "<InvokeDynamic>" {
		t.Errorf("Describe(%d) = %q", indy, got)
	}
}

func TestConstantPoolUnknownTag(t *testing.T) {
	p := newPool()
	p.utf8("x")
	p.bytes = append(p.bytes, 2, 0, 0)
	p.next++
	data := p.encoded()
	_, err := ReadConstantPool(nil, p.next, NewCursor(data[2:]))
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("error = %v, want ErrUnknownTag", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Offset != 4 {
		t.Errorf("error = %#v, want offset 4", err)
	}
}

func TestConstantPoolTruncated(t *testing.T) {
	p := newPool()
	p.utf8("truncated")
	data := p.encoded()
	_, err := ReadConstantPool(nil, p.next, NewCursor(data[2:len(data)-3]))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}
}

func TestConstantPoolAccessorMismatchPanics(t *testing.T) {
	p := newPool()
	i := p.integer(1)
	cp := readPool(t, p, nil)

	tests := []struct {
		name string
		call func()
	}{
		{"Utf8", func() { cp.Utf8(i) }},
		{"ClassName", func() { cp.ClassName(i) }},
		{"NameType", func() { cp.NameType(i) }},
		{"MemberRef", func() { cp.MemberRef(i) }},
		{"out of range", func() { cp.Utf8(99) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("expected a panic")
				}
				if msg, ok := r.(string); !ok || !strings.Contains(msg, "constant pool index") {
					t.Errorf("panic = %v", r)
				}
			}()
			tt.call()
		})
	}
}

func TestConstantPoolLiterals(t *testing.T) {
	p := newPool()
	s := p.str("text")
	i := p.integer(3)
	cp := readPool(t, p, nil)

	if v, ok := cp.StringLiteral(s); !ok || v != "text" {
		t.Errorf("StringLiteral(%d) = %q, %v", s, v, ok)
	}
	if _, ok := cp.StringLiteral(i); ok {
		t.Error("StringLiteral() accepted an Integer entry")
	}
	if _, ok := cp.Long(i); ok {
		t.Error("Long() accepted an Integer entry")
	}
	if cp.Get(0) != nil || cp.Get(1000) != nil {
		t.Error("Get() returned an entry for an unused index")
	}
}

func TestMemberRef(t *testing.T) {
	p := newPool()
	ref := p.field("pkg/Owner", "count", "I")
	m := p.method("pkg/Owner", "run", "()V")
	cp := readPool(t, p, nil)

	r := cp.MemberRef(ref)
	if !r.IsField() || r.Kind != ConstantFieldref {
		t.Errorf("Kind = %v", r.Kind)
	}
	if r.OwnerName() != "pkg/Owner" {
		t.Errorf("OwnerName() = %q", r.OwnerName())
	}
	nt := r.NameType()
	if nt.Name() != "count" || nt.Descriptor() != "I" {
		t.Errorf("NameType() = %s %s", nt.Name(), nt.Descriptor())
	}
	if got := r.String(); got != "pkg/Owner.count:I" {
		t.Errorf("String() = %q", got)
	}
	if mr := cp.MemberRef(m); mr.IsField() || mr.Kind != ConstantMethodref {
		t.Errorf("method ref Kind = %v", mr.Kind)
	}

	if _, ok := r.ClassOwner(); ok {
		t.Error("ClassOwner() resolved without a resolver")
	}
	if _, ok := r.Field(); ok {
		t.Error("Field() resolved without a resolver")
	}
}

func TestMemberRefFieldInSuperclass(t *testing.T) {
	base := parseClass(t, newPool(), classDef{
		name:   "pkg/Base",
		super:  "java/lang/Object",
		fields: []memberDef{{flags: AccProtected, name: "count", desc: "I"}},
	})
	child := parseClass(t, newPool(), classDef{name: "pkg/Child", super: "pkg/Base"})
	resolver := stubResolver{"pkg.Base": base, "pkg.Child": child}

	p := newPool()
	ref := p.field("pkg/Child", "count", "I")
	missing := p.field("pkg/Child", "count", "J")
	cp := readPool(t, p, resolver)

	f, ok := cp.MemberRef(ref).Field()
	if !ok {
		t.Fatal("Field() = false")
	}
	if f.Owner != base {
		t.Errorf("Field().Owner = %s, want pkg/Base", f.Owner.ClassName())
	}
	if f.Name(base.ConstantPool) != "count" {
		t.Errorf("Field().Name = %q", f.Name(base.ConstantPool))
	}
	if _, ok := cp.MemberRef(missing).Field(); ok {
		t.Error("Field() matched a field with another descriptor")
	}
}

func TestMemberRefFieldCyclicSuperclass(t *testing.T) {
	a := parseClass(t, newPool(), classDef{name: "pkg/A", super: "pkg/B"})
	b := parseClass(t, newPool(), classDef{name: "pkg/B", super: "pkg/A"})
	resolver := stubResolver{"pkg.A": a, "pkg.B": b}

	p := newPool()
	ref := p.field("pkg/A", "x", "I")
	cp := readPool(t, p, resolver)
	if _, ok := cp.MemberRef(ref).Field(); ok {
		t.Error("Field() found a field in a cyclic chain")
	}
}

func TestMemberRefIterator(t *testing.T) {
	p := newPool()
	p.utf8("pad")
	p.field("A", "f", "I")
	p.method("A", "m", "()V")
	cp := readPool(t, p, nil)

	var want []uint16
	for i := 1; i < cp.Size(); i++ {
		if _, ok := cp.Get(uint16(i)).(*ConstantMemberrefInfo); ok {
			want = append(want, uint16(i))
		}
	}
	if len(want) != 2 {
		t.Fatalf("fixture has %d member refs", len(want))
	}

	t.Run("in order", func(t *testing.T) {
		it := cp.MemberRefs()
		var got []uint16
		for it.HasNext() {
			if !it.HasNext() {
				t.Fatal("HasNext() is not idempotent")
			}
			ref, ok := it.Next()
			if !ok {
				t.Fatal("Next() = false after HasNext()")
			}
			got = append(got, ref.Index)
		}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("indices = %v, want %v", got, want)
		}
	})

	t.Run("next without has next", func(t *testing.T) {
		it := cp.MemberRefs()
		if _, ok := it.Next(); ok {
			t.Error("Next() before HasNext() returned a reference")
		}
	})
}

func TestMemberRefIteratorIndices(t *testing.T) {
	p := newPool()
	p.utf8("a")
	p.add(ConstantMethodref, cat(u2(0), u2(0)))
	p.utf8("b")
	p.utf8("c")
	p.add(ConstantFieldref, cat(u2(0), u2(0)))
	p.utf8("d")
	p.add(ConstantInterfaceMethodref, cat(u2(0), u2(0)))
	cp := readPool(t, p, nil)

	it := cp.MemberRefs()
	var got []uint16
	for it.HasNext() {
		ref, _ := it.Next()
		got = append(got, ref.Index)
	}
	want := []uint16{2, 5, 7}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("indices = %v, want %v", got, want)
	}
}
