package classpath

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dhamidi/rebuild/classfile"
	"github.com/stretchr/testify/require"
)

// classBytes encodes an empty class with the given internal name, extending
// super.
func classBytes(name, super string) []byte {
	u2 := func(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }
	utf8 := func(b []byte, s string) []byte {
		b = append(b, 1)
		b = u2(b, uint16(len(s)))
		return append(b, s...)
	}
	b := binary.BigEndian.AppendUint32(nil, classfile.Magic)
	b = u2(b, 0)
	b = u2(b, 52)
	b = u2(b, 5)
	b = utf8(b, name)
	b = append(b, 7, 0, 1)
	b = utf8(b, super)
	b = append(b, 7, 0, 3)
	b = u2(b, 0x21)
	b = u2(b, 2)
	b = u2(b, 4)
	for i := 0; i < 4; i++ {
		b = u2(b, 0)
	}
	return b
}

func writeClass(t *testing.T, root, name string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name)+".class")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writeJar(t *testing.T, path string, classes map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	_, err = w.Create("META-INF/")
	require.NoError(t, err)
	for name, data := range classes {
		fw, err := w.Create(name + ".class")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestResolveFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "pkg/A", classBytes("pkg/A", "java/lang/Object"))

	p, err := New(dir)
	require.NoError(t, err)
	defer p.Close()

	cf, err := p.ResolveClass("pkg.A")
	require.NoError(t, err)
	require.Equal(t, "pkg/A", cf.ClassName())
	require.Equal(t, "java/lang/Object", cf.SuperClassName())

	again, err := p.ResolveClass("pkg.A")
	require.NoError(t, err)
	require.Same(t, cf, again)

	_, err = p.ResolveClass("pkg.Missing")
	require.ErrorIs(t, err, ErrClassNotFound)
}

func TestResolveFromJar(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	writeJar(t, jar, map[string][]byte{
		"pkg/B":       classBytes("pkg/B", "java/lang/Object"),
		"pkg/inner/C": classBytes("pkg/inner/C", "pkg/B"),
	})

	p, err := New(jar)
	require.NoError(t, err)
	defer p.Close()

	cf, err := p.ResolveClass("pkg.inner.C")
	require.NoError(t, err)
	require.Equal(t, "pkg/B", cf.SuperClassName())

	super, ok := cf.ConstantPool.Class(cf.SuperClass)
	require.True(t, ok, "superclass resolves through the same path")
	require.Equal(t, "pkg/B", super.ClassName())

	names, err := p.Classes()
	require.NoError(t, err)
	require.Equal(t, []string{"pkg/B", "pkg/inner/C"}, names)
}

func TestSearchOrder(t *testing.T) {
	first := t.TempDir()
	writeClass(t, first, "pkg/A", classBytes("pkg/A", "pkg/First"))
	jar := filepath.Join(t.TempDir(), "second.jar")
	writeJar(t, jar, map[string][]byte{
		"pkg/A": classBytes("pkg/A", "pkg/Second"),
		"pkg/Z": classBytes("pkg/Z", "java/lang/Object"),
	})

	p, err := New(first, filepath.Join(first, "missing"), jar)
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, []string{first, jar}, p.Entries())

	cf, err := p.ResolveClass("pkg.A")
	require.NoError(t, err)
	require.Equal(t, "pkg/First", cf.SuperClassName())

	_, source, err := p.ReadClass("pkg/Z")
	require.NoError(t, err)
	require.Equal(t, jar, source)

	names, err := p.Classes()
	require.NoError(t, err)
	require.Equal(t, []string{"pkg/A", "pkg/Z"}, names)
}

func TestNewRejectsUnknownFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := New(path)
	require.Error(t, err)
}

func TestResolveParseFailure(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "pkg/Bad", []byte{0xca, 0xfe})
	p, err := New(dir)
	require.NoError(t, err)

	_, err = p.ResolveClass("pkg.Bad")
	require.ErrorIs(t, err, classfile.ErrTruncated)
}

func TestFingerprintAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	data := classBytes("pkg/A", "java/lang/Object")
	writeClass(t, dir, "pkg/A", data)
	writeClass(t, dir, "pkg/B", classBytes("pkg/B", "java/lang/Object"))
	jar := filepath.Join(t.TempDir(), "copy.jar")
	writeJar(t, jar, map[string][]byte{"pkg/A": data})

	p, err := New(dir, jar)
	require.NoError(t, err)
	defer p.Close()

	a, err := p.Fingerprint("pkg/A")
	require.NoError(t, err)
	b, err := p.Fingerprint("pkg/B")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 16)

	direct, err := Fingerprint(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Equal(t, a, direct)

	dups, err := p.Duplicates()
	require.NoError(t, err)
	require.Len(t, dups, 1)
	require.Equal(t, a, dups[0].Fingerprint)
	require.Equal(t, []Location{{Entry: dir, Name: "pkg/A"}, {Entry: jar, Name: "pkg/A"}}, dups[0].Locations)
}

func TestDecodeAll(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"pkg/A", "pkg/B", "pkg/C", "pkg/D"} {
		writeClass(t, dir, name, classBytes(name, "java/lang/Object"))
	}
	writeClass(t, dir, "pkg/Broken", []byte{0, 1, 2, 3})

	p, err := New(dir)
	require.NoError(t, err)

	var mu sync.Mutex
	decoded := make(map[string]bool)
	var failed []string
	err = p.DecodeAll(context.Background(), 2, func(name string, cf *classfile.ClassFile, err error) error {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed = append(failed, name)
			return nil
		}
		decoded[cf.ClassName()] = true
		return nil
	})
	require.NoError(t, err)
	require.Len(t, decoded, 4)
	require.Equal(t, []string{"pkg/Broken"}, failed)
	require.Empty(t, p.classes, "DecodeAll filled the resolver cache")

	stop := errors.New("stop")
	err = p.DecodeAll(context.Background(), 1, func(string, *classfile.ClassFile, error) error {
		return stop
	})
	require.ErrorIs(t, err, stop)
}

func TestDecodeAllCanceled(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "pkg/A", classBytes("pkg/A", "java/lang/Object"))
	p, err := New(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.DecodeAll(ctx, 0, func(string, *classfile.ClassFile, error) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentResolve(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "pkg/A", classBytes("pkg/A", "java/lang/Object"))
	p, err := New(dir)
	require.NoError(t, err)

	results := make([]*classfile.ClassFile, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cf, err := p.ResolveClass("pkg.A")
			if err == nil {
				results[i] = cf
			}
		}()
	}
	wg.Wait()
	for _, cf := range results {
		require.Same(t, results[0], cf)
	}
}

func TestSplit(t *testing.T) {
	sep := string(os.PathListSeparator)
	require.Equal(t, []string{"a", "b.jar"}, Split("a"+sep+sep+"b.jar"))
	require.Nil(t, Split(""))
}
