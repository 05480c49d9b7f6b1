package classfile

import (
	"encoding/binary"
	"math"
)

// poolBuilder assembles constant pool bytes for tests, handing out indices
// the way a compiler would.
type poolBuilder struct {
	next  uint16
	bytes []byte
	utf8s map[string]uint16
}

func newPool() *poolBuilder {
	return &poolBuilder{next: 1, utf8s: make(map[string]uint16)}
}

func (p *poolBuilder) add(tag ConstantTag, payload []byte) uint16 {
	idx := p.next
	p.bytes = append(p.bytes, byte(tag))
	p.bytes = append(p.bytes, payload...)
	p.next++
	if tag.wide() {
		p.next++
	}
	return idx
}

func (p *poolBuilder) utf8(s string) uint16 {
	if idx, ok := p.utf8s[s]; ok {
		return idx
	}
	enc := encodeModifiedUtf8(s)
	idx := p.add(ConstantUtf8, append(u2(uint16(len(enc))), enc...))
	p.utf8s[s] = idx
	return idx
}

func (p *poolBuilder) class(name string) uint16 {
	return p.add(ConstantClass, u2(p.utf8(name)))
}

func (p *poolBuilder) nameType(name, desc string) uint16 {
	n, d := p.utf8(name), p.utf8(desc)
	return p.add(ConstantNameAndType, append(u2(n), u2(d)...))
}

func (p *poolBuilder) ref(tag ConstantTag, owner, name, desc string) uint16 {
	c := p.class(owner)
	nt := p.nameType(name, desc)
	return p.add(tag, append(u2(c), u2(nt)...))
}

func (p *poolBuilder) field(owner, name, desc string) uint16 {
	return p.ref(ConstantFieldref, owner, name, desc)
}

func (p *poolBuilder) method(owner, name, desc string) uint16 {
	return p.ref(ConstantMethodref, owner, name, desc)
}

func (p *poolBuilder) integer(v int32) uint16 {
	return p.add(ConstantInteger, u4(uint32(v)))
}

func (p *poolBuilder) long(v int64) uint16 {
	return p.add(ConstantLong, binary.BigEndian.AppendUint64(nil, uint64(v)))
}

func (p *poolBuilder) double(v float64) uint16 {
	return p.add(ConstantDouble, binary.BigEndian.AppendUint64(nil, math.Float64bits(v)))
}

func (p *poolBuilder) str(s string) uint16 {
	return p.add(ConstantString, u2(p.utf8(s)))
}

// encoded is the pool as it appears in a class file, count included.
func (p *poolBuilder) encoded() []byte {
	return append(u2(p.next), p.bytes...)
}

func u2(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func u4(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func encodeModifiedUtf8(s string) []byte {
	var out []byte
	put := func(c uint16) {
		switch {
		case c != 0 && c < 0x80:
			out = append(out, byte(c))
		case c < 0x800:
			out = append(out, 0xc0|byte(c>>6), 0x80|byte(c&0x3f))
		default:
			out = append(out, 0xe0|byte(c>>12), 0x80|byte((c>>6)&0x3f), 0x80|byte(c&0x3f))
		}
	}
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			put(uint16(0xd800 + (r >> 10)))
			put(uint16(0xdc00 + (r & 0x3ff)))
			continue
		}
		put(uint16(r))
	}
	return out
}

// attr encodes an attribute with its header.
func (p *poolBuilder) attr(name string, payload []byte) []byte {
	return cat(u2(p.utf8(name)), u4(uint32(len(payload))), payload)
}

type handlerRow struct {
	start, end, handler uint16
	class               string
}

// code encodes a Code attribute.
func (p *poolBuilder) code(maxStack, maxLocals uint16, insns []byte, handlers []handlerRow, nested ...[]byte) []byte {
	body := cat(u2(maxStack), u2(maxLocals), u4(uint32(len(insns))), insns, u2(uint16(len(handlers))))
	for _, h := range handlers {
		var ct uint16
		if h.class != "" {
			ct = p.class(h.class)
		}
		body = cat(body, u2(h.start), u2(h.end), u2(h.handler), u2(ct))
	}
	body = cat(body, u2(uint16(len(nested))))
	for _, n := range nested {
		body = append(body, n...)
	}
	return p.attr("Code", body)
}

type memberDef struct {
	flags      AccessFlags
	name, desc string
	attrs      [][]byte
}

type classDef struct {
	name, super string
	fields      []memberDef
	methods     []memberDef
}

// build encodes a whole class file. Attributes must have been encoded with
// the same pool beforehand.
func (p *poolBuilder) build(def classDef) []byte {
	this := p.class(def.name)
	var super uint16
	if def.super != "" {
		super = p.class(def.super)
	}
	members := func(ms []memberDef) []byte {
		out := u2(uint16(len(ms)))
		for _, m := range ms {
			out = cat(out, u2(uint16(m.flags)), u2(p.utf8(m.name)), u2(p.utf8(m.desc)), u2(uint16(len(m.attrs))))
			for _, a := range m.attrs {
				out = append(out, a...)
			}
		}
		return out
	}
	fields := members(def.fields)
	methods := members(def.methods)
	return cat(
		u4(Magic), u2(0), u2(52),
		p.encoded(),
		u2(uint16(AccPublic|AccSuper)), u2(this), u2(super), u2(0),
		fields, methods, u2(0),
	)
}

// stubResolver serves classes from a map keyed by dotted name.
type stubResolver map[string]*ClassFile

func (s stubResolver) ResolveClass(name string) (*ClassFile, error) {
	if cf, ok := s[name]; ok {
		return cf, nil
	}
	return nil, errNotFound
}
