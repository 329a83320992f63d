package dclass

import "fmt"

// Registry is the in-process stand-in for the external DC schema
// loader: it resolves class definitions by name and by numeric index.
// A production deployment would populate this from a compiled .dc
// file; the core only ever calls the lookup methods below.
type Registry struct {
	byName  map[string]*Class
	byIndex map[int]*Class
}

// NewRegistry builds a Registry from a fixed set of classes.
func NewRegistry(classes ...*Class) *Registry {
	r := &Registry{
		byName:  make(map[string]*Class, len(classes)),
		byIndex: make(map[int]*Class, len(classes)),
	}
	for _, c := range classes {
		r.byName[c.Name] = c
		r.byIndex[c.Number] = c
	}
	return r
}

// ClassByName resolves a class by its schema name.
func (r *Registry) ClassByName(name string) (*Class, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("dclass: unknown class %q", name)
	}
	return c, nil
}

// ClassByNumber resolves a class by its stable numeric index.
func (r *Registry) ClassByNumber(n int) (*Class, error) {
	c, ok := r.byIndex[n]
	if !ok {
		return nil, fmt.Errorf("dclass: unknown class number %d", n)
	}
	return c, nil
}

// Classes returns every registered class, for callers that need to
// walk the whole schema once at boot (e.g. the relational backend
// provisioning one table per class).
func (r *Registry) Classes() []*Class {
	classes := make([]*Class, 0, len(r.byName))
	for _, c := range r.byName {
		classes = append(classes, c)
	}
	return classes
}
