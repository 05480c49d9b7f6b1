// Package classpath is the class-loading context the constant pool resolves
// class references through: an ordered list of directories and jar or zip
// archives, searched first to last, with a cache of parsed classes that is
// safe for concurrent lookup.
package classpath

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dhamidi/rebuild/classfile"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rebuild.classpath")

var ErrClassNotFound = errors.New("class not found")

// entry is one element of the path. Names are internal class names
// without the .class suffix.
type entry interface {
	read(name string) ([]byte, error)
	names() ([]string, error)
	String() string
	Close() error
}

type dirEntry struct {
	root string
}

func (d *dirEntry) read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(name)+".class"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrClassNotFound
	}
	return data, err
}

func (d *dirEntry) names() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() || filepath.Ext(p) != ".class" {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), ".class"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	return names, nil
}

func (d *dirEntry) String() string { return d.root }
func (d *dirEntry) Close() error   { return nil }

type zipEntry struct {
	path  string
	r     *zip.ReadCloser
	files map[string]*zip.File
}

func openZip(path string) (*zipEntry, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	z := &zipEntry{path: path, r: r, files: make(map[string]*zip.File)}
	for _, f := range r.File {
		if f.FileInfo().IsDir() || filepath.Ext(f.Name) != ".class" {
			continue
		}
		name := strings.TrimSuffix(f.Name, ".class")
		if _, dup := z.files[name]; !dup {
			z.files[name] = f
		}
	}
	return z, nil
}

func (z *zipEntry) read(name string) ([]byte, error) {
	f, ok := z.files[name]
	if !ok {
		return nil, ErrClassNotFound
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", f.Name, z.path, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (z *zipEntry) names() ([]string, error) {
	names := make([]string, 0, len(z.files))
	for name := range z.files {
		names = append(names, name)
	}
	return names, nil
}

func (z *zipEntry) String() string { return z.path }
func (z *zipEntry) Close() error   { return z.r.Close() }

// Path resolves classes against its entries in order. The first entry
// holding a class wins; later copies are shadowed.
type Path struct {
	entries []entry

	mu      sync.RWMutex
	classes map[string]*classfile.ClassFile
}

// New opens every element of paths. Directories are class roots, files
// ending in .jar or .zip are archives. Elements that do not exist are
// skipped with a warning, the way a JVM ignores them.
func New(paths ...string) (*Path, error) {
	p := &Path{classes: make(map[string]*classfile.ClassFile)}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			log.Warningf("classpath element %s skipped: %s", path, err)
			continue
		}
		if info.IsDir() {
			p.entries = append(p.entries, &dirEntry{root: path})
			continue
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jar", ".zip":
			z, err := openZip(path)
			if err != nil {
				p.Close()
				return nil, err
			}
			p.entries = append(p.entries, z)
		default:
			p.Close()
			return nil, fmt.Errorf("unsupported classpath element: %s", path)
		}
	}
	return p, nil
}

// Split breaks a platform classpath string into its elements.
func Split(s string) []string {
	var out []string
	for _, part := range filepath.SplitList(s) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *Path) Close() error {
	var errs []error
	for _, e := range p.entries {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Entries lists the path's elements in search order.
func (p *Path) Entries() []string {
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.String()
	}
	return out
}

// ReadClass returns the bytes of a class given its internal name, and the
// element they were found in.
func (p *Path) ReadClass(name string) ([]byte, string, error) {
	for _, e := range p.entries {
		data, err := e.read(name)
		if errors.Is(err, ErrClassNotFound) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return data, e.String(), nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

// ResolveClass implements classfile.ClassResolver. name is in dotted form.
// Parsed classes are cached, failures are not.
func (p *Path) ResolveClass(name string) (*classfile.ClassFile, error) {
	return p.load(classfile.SourceToInternalName(name))
}

func (p *Path) load(internal string) (*classfile.ClassFile, error) {
	cf, hit, err := p.decode(internal)
	if err != nil || hit {
		return cf, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.classes[internal]; ok {
		return cached, nil
	}
	p.classes[internal] = cf
	return cf, nil
}

// decode returns the cached class, or parses it without storing the result.
func (p *Path) decode(internal string) (cf *classfile.ClassFile, cached bool, err error) {
	p.mu.RLock()
	cf, ok := p.classes[internal]
	p.mu.RUnlock()
	if ok {
		return cf, true, nil
	}

	data, source, err := p.ReadClass(internal)
	if err != nil {
		return nil, false, err
	}
	cf, err = classfile.ParseBytes(data, p)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s from %s: %w", internal, source, err)
	}
	return cf, false, nil
}

// Classes lists the internal names of every class visible on the path,
// sorted.
func (p *Path) Classes() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, e := range p.entries {
		names, err := e.names()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
