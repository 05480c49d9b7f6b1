package classpath

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"runtime"
	"sort"

	"github.com/dhamidi/rebuild/classfile"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

// Fingerprint hashes class bytes. Equal fingerprints mean equal content.
func Fingerprint(r io.Reader) (string, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint hashes the visible copy of a class given its internal name.
func (p *Path) Fingerprint(name string) (string, error) {
	data, _, err := p.ReadClass(name)
	if err != nil {
		return "", err
	}
	return Fingerprint(bytes.NewReader(data))
}

// Location is one copy of a class on the path.
type Location struct {
	Entry string
	Name  string
}

func (l Location) String() string {
	return l.Entry + "!" + l.Name
}

// Duplicate is a class body found more than once, under one name or
// several.
type Duplicate struct {
	Fingerprint string
	Locations   []Location
}

// Duplicates hashes every copy of every class, shadowed ones included, and
// reports the contents that occur more than once.
func (p *Path) Duplicates() ([]Duplicate, error) {
	groups := make(map[string][]Location)
	for _, e := range p.entries {
		names, err := e.names()
		if err != nil {
			return nil, err
		}
		sort.Strings(names)
		for _, n := range names {
			data, err := e.read(n)
			if err != nil {
				return nil, fmt.Errorf("read %s from %s: %w", n, e, err)
			}
			sum, err := Fingerprint(bytes.NewReader(data))
			if err != nil {
				return nil, err
			}
			groups[sum] = append(groups[sum], Location{Entry: e.String(), Name: n})
		}
	}

	var out []Duplicate
	for sum, locs := range groups {
		if len(locs) > 1 {
			out = append(out, Duplicate{Fingerprint: sum, Locations: locs})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Locations[0].String() < out[j].Locations[0].String()
	})
	return out, nil
}

// DecodeFunc receives each decoded class, or the error that stopped it from
// decoding. It is called from several goroutines at once. Returning an
// error stops the remaining work.
type DecodeFunc func(name string, cf *classfile.ClassFile, err error) error

// DecodeAll parses every class visible on the path with at most workers
// classes in flight; workers <= 0 means one per CPU. Each class is decoded
// independently. Classes already cached are reused, but newly decoded ones
// are not added to the cache, so memory stays bounded by what fn retains.
func (p *Path) DecodeAll(ctx context.Context, workers int, fn DecodeFunc) error {
	names, err := p.Classes()
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, name := range names {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cf, _, err := p.decode(name)
			return fn(name, cf, err)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
