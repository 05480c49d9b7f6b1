// Package format renders decoded classes and the method bodies rebuilt from
// them.
package format

import (
	"encoding"
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/rebuild/classfile"
)

type Encoder interface {
	encoding.TextMarshaler
	Encode(class *classfile.ClassFile) error
}

// Names lists the encoders New accepts.
var Names = []string{"java", "json", "line"}

type options struct {
	method string
}

type Option func(*options)

// WithMethod restricts output to the methods with the given name.
func WithMethod(name string) Option {
	return func(o *options) { o.method = name }
}

// New returns the encoder called name writing to w.
func New(name string, w io.Writer, opts ...Option) (Encoder, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	switch name {
	case "java":
		return &JavaEncoder{w: w, opts: o}, nil
	case "json":
		return &JSONEncoder{w: w, opts: o}, nil
	case "line":
		return &LineEncoder{w: w, opts: o}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want one of %s)", name, strings.Join(Names, ", "))
}

// methods returns the methods of class selected by o, in class order.
func (o options) methods(class *classfile.ClassFile) []*classfile.MethodInfo {
	var out []*classfile.MethodInfo
	for i := range class.Methods {
		m := &class.Methods[i]
		if o.method != "" && m.Name(class.ConstantPool) != o.method {
			continue
		}
		out = append(out, m)
	}
	return out
}

func write(w io.Writer, m encoding.TextMarshaler) error {
	text, err := m.MarshalText()
	if err != nil {
		return err
	}
	_, err = w.Write(text)
	return err
}

func visibility(flags classfile.AccessFlags) string {
	switch {
	case flags.IsPublic():
		return "public"
	case flags.IsProtected():
		return "protected"
	case flags.IsPrivate():
		return "private"
	}
	return "package"
}

func classKind(class *classfile.ClassFile) string {
	f := class.AccessFlags
	switch {
	case f.IsAnnotation():
		return "annotation"
	case f.IsEnum():
		return "enum"
	case f.IsModule():
		return "module"
	case f.IsInterface():
		return "interface"
	}
	return "class"
}

func classModifiers(f classfile.AccessFlags) []string {
	var mods []string
	if f.IsAbstract() && !f.IsInterface() {
		mods = append(mods, "abstract")
	}
	if f.IsFinal() {
		mods = append(mods, "final")
	}
	if f.IsSynthetic() {
		mods = append(mods, "synthetic")
	}
	return mods
}

func fieldModifiers(f classfile.AccessFlags) []string {
	var mods []string
	if f.IsStatic() {
		mods = append(mods, "static")
	}
	if f.IsFinal() {
		mods = append(mods, "final")
	}
	if f.IsVolatile() {
		mods = append(mods, "volatile")
	}
	if f.IsTransient() {
		mods = append(mods, "transient")
	}
	if f.IsSynthetic() {
		mods = append(mods, "synthetic")
	}
	if f.IsEnum() {
		mods = append(mods, "enum")
	}
	return mods
}

func methodModifiers(f classfile.AccessFlags) []string {
	var mods []string
	if f.IsStatic() {
		mods = append(mods, "static")
	}
	if f.IsFinal() {
		mods = append(mods, "final")
	}
	if f.IsAbstract() {
		mods = append(mods, "abstract")
	}
	if f.IsSynchronized() {
		mods = append(mods, "synchronized")
	}
	if f.IsNative() {
		mods = append(mods, "native")
	}
	if f.IsBridge() {
		mods = append(mods, "bridge")
	}
	if f.IsVarargs() {
		mods = append(mods, "varargs")
	}
	if f.IsSynthetic() {
		mods = append(mods, "synthetic")
	}
	return mods
}

func sourceName(internal string) string {
	return classfile.InternalToSourceName(internal)
}
