package unreal

import (
	"iter"

	"github.com/blacktop/ureflect/pkg/process"
)

// MaxChainLength bounds every walk over a linked structure in the target.
// A corrupted or cyclic chain ends the walk once it is exceeded.
const MaxChainLength = 4096

// UObject is a view of an object in the target. It holds no state of its own
// and every accessor reads the target again.
type UObject struct {
	m    *Module
	addr process.Address
}

// Object returns a view of the object at addr.
func (m *Module) Object(addr process.Address) UObject {
	return UObject{m: m, addr: addr}
}

// Address returns the address of the object.
func (o UObject) Address() process.Address {
	return o.addr
}

// Class returns the class of the object.
func (o UObject) Class() (UClass, bool) {
	if o.addr.IsNull() {
		return UClass{}, false
	}
	cls, ok := o.m.ReadPointer(o.addr.Add(o.m.offsets.UObjectClass))
	if !ok || cls.IsNull() {
		return UClass{}, false
	}
	return UClass{o.m.Object(cls)}, true
}

// Name returns the object's own name.
func (o UObject) Name() (string, bool) {
	if o.addr.IsNull() {
		return "", false
	}
	return o.m.Name(o.addr.Add(o.m.offsets.UObjectName))
}

// FieldOffset returns the offset of the named field in the object's class.
func (o UObject) FieldOffset(name string) (uint32, bool) {
	cls, ok := o.Class()
	if !ok {
		return 0, false
	}
	return cls.FieldOffset(name)
}

// UClass is a view of a UStruct or UClass record.
type UClass struct {
	UObject
}

// Super returns the parent class.
func (c UClass) Super() (UClass, bool) {
	super, ok := c.m.ReadPointer(c.addr.Add(c.m.offsets.UStructSuper))
	if !ok || super.IsNull() {
		return UClass{}, false
	}
	return UClass{c.m.Object(super)}, true
}

// Hierarchy yields the class followed by each of its ancestors.
func (c UClass) Hierarchy() iter.Seq[UClass] {
	return func(yield func(UClass) bool) {
		cls := c
		for range MaxChainLength {
			if !yield(cls) {
				return
			}
			super, ok := cls.Super()
			if !ok {
				return
			}
			cls = super
		}
	}
}

// Properties yields the properties of the class, derived first.
//
// A class that declares no properties of its own shares the list of the
// nearest ancestor that does.
func (c UClass) Properties() iter.Seq[FProperty] {
	return func(yield func(FProperty) bool) {
		prop, ok := c.firstProperty()
		if !ok {
			return
		}
		for range MaxChainLength {
			if !yield(prop) {
				return
			}
			if prop, ok = prop.Next(); !ok {
				return
			}
		}
	}
}

func (c UClass) firstProperty() (FProperty, bool) {
	for cls := range c.Hierarchy() {
		prop, ok := c.m.ReadPointer(cls.addr.Add(c.m.offsets.UStructChildProperties))
		if !ok {
			return FProperty{}, false
		}
		if !prop.IsNull() {
			return FProperty{m: c.m, addr: prop}, true
		}
	}
	return FProperty{}, false
}

// FieldOffset returns the offset of the first property named name.
// Fields of a derived class shadow those of its ancestors.
func (c UClass) FieldOffset(name string) (uint32, bool) {
	for prop := range c.Properties() {
		if pname, ok := prop.Name(); ok && pname == name {
			return prop.Offset()
		}
	}
	return 0, false
}

// FProperty is a view of a property record.
type FProperty struct {
	m    *Module
	addr process.Address
}

// Address returns the address of the property record.
func (p FProperty) Address() process.Address {
	return p.addr
}

// Name returns the property name.
func (p FProperty) Name() (string, bool) {
	return p.m.Name(p.addr.Add(p.m.offsets.FFieldName))
}

// Offset returns the byte offset of the property within an instance.
func (p FProperty) Offset() (uint32, bool) {
	off, err := process.ReadUint32(p.m.r, p.addr.Add(p.m.offsets.FPropertyOffset))
	if err != nil {
		return 0, false
	}
	return off, true
}

// Next returns the following property in the list.
func (p FProperty) Next() (FProperty, bool) {
	next, ok := p.m.ReadPointer(p.addr.Add(p.m.offsets.FPropertyLinkNext))
	if !ok || next.IsNull() {
		return FProperty{}, false
	}
	return FProperty{m: p.m, addr: next}, true
}
