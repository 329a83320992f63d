// Package dclass implements the DC (Distributed Class) schema contract
// the core assumes an external loader provides: class definitions,
// inherited field lists, and per-field attribute flags, plus the typed
// pack/unpack primitives used to serialize field arguments.
//
// A real cluster would generate this from a .dc file; here classes are
// registered in-process by whatever embeds the cluster (see Registry).
package dclass

// Kind distinguishes the three field shapes the schema can declare.
type Kind uint8

const (
	KindAtomic Kind = iota
	KindParameter
	KindMolecular
)

// Flag is a bitset of field attributes (spec.md GLOSSARY).
type Flag uint16

const (
	FlagRequired Flag = 1 << iota
	FlagDB
	FlagBroadcast
	FlagOwnSend
	FlagClSend
	FlagOwnRecv
	FlagAIRecv
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Field describes one inherited field of a class.
type Field struct {
	Number int
	Name   string
	Kind   Kind
	Flags  Flag

	// Atomics is only populated for KindMolecular: the atomic fields it
	// aggregates, in declaration order.
	Atomics []*Field

	// Default is the value packed when a required field has never been
	// set (packRequired) or used to initialize a newly created db object.
	Default Value
}

func (f *Field) IsRequired() bool  { return f.Flags.Has(FlagRequired) }
func (f *Field) IsDB() bool        { return f.Flags.Has(FlagDB) }
func (f *Field) IsBroadcast() bool { return f.Flags.Has(FlagBroadcast) }
func (f *Field) IsOwnSend() bool   { return f.Flags.Has(FlagOwnSend) }
func (f *Field) IsClSend() bool    { return f.Flags.Has(FlagClSend) }
func (f *Field) IsOwnRecv() bool   { return f.Flags.Has(FlagOwnRecv) }
func (f *Field) IsAIRecv() bool    { return f.Flags.Has(FlagAIRecv) }

// Class is a compiled distributed-class definition: a stable numeric
// index plus its full inherited field list (already flattened; the
// external DC compiler is responsible for inheritance resolution).
type Class struct {
	Number int
	Name   string
	Fields []*Field

	byName  map[string]*Field
	byIndex map[int]*Field
}

// NewClass builds a Class from its flattened inherited field list.
func NewClass(number int, name string, fields []*Field) *Class {
	c := &Class{
		Number:  number,
		Name:    name,
		Fields:  fields,
		byName:  make(map[string]*Field, len(fields)),
		byIndex: make(map[int]*Field, len(fields)),
	}
	for _, f := range fields {
		c.byName[f.Name] = f
		c.byIndex[f.Number] = f
	}
	return c
}

// FieldByName looks up an inherited field by name.
func (c *Class) FieldByName(name string) *Field { return c.byName[name] }

// FieldByNumber looks up an inherited field by its numeric id.
func (c *Class) FieldByNumber(n int) *Field { return c.byIndex[n] }

// NumInheritedFields returns the count of the flattened field list.
func (c *Class) NumInheritedFields() int { return len(c.Fields) }

// InheritedField returns the field at the given flattened index.
func (c *Class) InheritedField(index int) *Field { return c.Fields[index] }
