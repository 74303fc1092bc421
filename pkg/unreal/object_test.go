package unreal_test

import (
	"reflect"
	"testing"

	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/unreal"
	"github.com/blacktop/ureflect/pkg/unreal/unrealtest"
)

func attach(t *testing.T, target *unrealtest.Target, opts ...unreal.Option) *unreal.Module {
	t.Helper()
	m, err := unreal.Attach(target, unrealtest.ImageBase, opts...)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	return m
}

func propertyNames(t *testing.T, cls unreal.UClass) []string {
	t.Helper()
	var names []string
	for prop := range cls.Properties() {
		name, ok := prop.Name()
		if !ok {
			t.Fatalf("failed to decode name of property at %s", prop.Address())
		}
		names = append(names, name)
	}
	return names
}

func TestName(t *testing.T) {
	target := unrealtest.New()
	holder := target.Alloc(8)
	target.PutName(holder, "Health")

	m := attach(t, target)
	got, ok := m.Name(holder)
	if !ok {
		t.Fatal("Name() failed")
	}
	if len(got) != 6 || got != "Health" {
		t.Errorf("Name() = %q, want %q", got, "Health")
	}

	// a handle in a block that was never allocated
	target.PutUint32(holder, unrealtest.NameBlocks<<16)
	if got, ok := m.Name(holder); ok {
		t.Errorf("Name() = %q for an unallocated block", got)
	}
	if _, ok := m.Name(0x10); ok {
		t.Error("Name() of an unmapped handle should fail")
	}
}

func TestNameSecondBlock(t *testing.T) {
	target := unrealtest.New()
	target.Name("Health")
	target.Name("Armor")
	first := target.Alloc(8)
	target.PutName(first, "Armor")
	second := target.Alloc(8)
	handle := target.NameIn(1, "CurrentExperienceAndLevel")
	target.PutUint32(second, handle)

	if handle>>16 != 1 || handle&0xFFFF != 0 {
		t.Fatalf("NameIn() = %#x, want chunk 1 index 0", handle)
	}

	m := attach(t, target)
	tests := []struct {
		name   string
		holder process.Address
		want   string
	}{
		{name: "chunk 0", holder: first, want: "Armor"},
		{name: "chunk 1", holder: second, want: "CurrentExperienceAndLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Name(tt.holder)
			if !ok || got != tt.want {
				t.Errorf("Name() = %q, %v, want %q", got, ok, tt.want)
			}
		})
	}
}

func TestNameCache(t *testing.T) {
	target := unrealtest.New()
	holder := target.Alloc(8)
	target.PutName(holder, "Level")

	m := attach(t, target, unreal.WithNameCache(8))
	if got, _ := m.Name(holder); got != "Level" {
		t.Fatalf("Name() = %q, want Level", got)
	}
	// drop the pool so only the cache can answer
	target.PutPointer(target.NamePool.Add(16), 0)
	if got, ok := m.Name(holder); !ok || got != "Level" {
		t.Errorf("Name() = %q, %v, want cached Level", got, ok)
	}
}

func TestClassAndSuper(t *testing.T) {
	target := unrealtest.New()
	object := target.NewClass("Object", 0)
	actor := target.NewClass("Actor", object)
	pawn := target.NewClass("Pawn", actor)
	obj := target.NewObject(pawn, 0x40)

	m := attach(t, target)
	cls, ok := m.Object(obj).Class()
	if !ok {
		t.Fatal("Class() failed")
	}
	if cls.Address() != pawn {
		t.Errorf("Class() = %s, want %s", cls.Address(), pawn)
	}

	var chain []string
	for c := range cls.Hierarchy() {
		name, _ := c.Name()
		chain = append(chain, name)
	}
	if want := []string{"Pawn", "Actor", "Object"}; !reflect.DeepEqual(chain, want) {
		t.Errorf("Hierarchy() = %v, want %v", chain, want)
	}

	if _, ok := m.Object(0).Class(); ok {
		t.Error("Class() of a null object should fail")
	}
	if _, ok := m.Object(target.NewObject(0, 0x20)).Class(); ok {
		t.Error("Class() of an object with a null class should fail")
	}
}

func TestPropertiesFallthrough(t *testing.T) {
	target := unrealtest.New()
	base := target.NewClass("Character", 0,
		unrealtest.Property{Name: "Health", Offset: 0x300},
		unrealtest.Property{Name: "Mesh", Offset: 0x280},
	)
	// declares nothing itself
	derived := target.NewClass("PlayerCharacter", base)

	m := attach(t, target)
	cls, _ := m.Object(target.NewObject(derived, 0x20)).Class()

	if got, want := propertyNames(t, cls), []string{"Health", "Mesh"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Properties() = %v, want %v", got, want)
	}
	if off, ok := cls.FieldOffset("Mesh"); !ok || off != 0x280 {
		t.Errorf("FieldOffset(Mesh) = %#x, %v, want 0x280", off, ok)
	}
}

func TestFieldOffsetShadowing(t *testing.T) {
	target := unrealtest.New()
	base := target.NewClass("Pawn", 0,
		unrealtest.Property{Name: "Controller", Offset: 0x258},
		unrealtest.Property{Name: "Health", Offset: 0x200},
	)
	derived := target.NewClass("BP_Pawn", base,
		unrealtest.Property{Name: "Health", Offset: 0x100},
	)
	// derived lists its own fields and then continues into the parent's
	target.PutPointer(firstProperty(t, target, derived).Add(unrealtest.PropertyLinkNext), firstProperty(t, target, base))

	m := attach(t, target)
	obj := m.Object(target.NewObject(derived, 0x20))

	tests := []struct {
		field  string
		want   uint32
		wantOk bool
	}{
		{field: "Health", want: 0x100, wantOk: true},
		{field: "Controller", want: 0x258, wantOk: true},
		{field: "Missing"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := obj.FieldOffset(tt.field)
			if ok != tt.wantOk || got != tt.want {
				t.Errorf("FieldOffset(%s) = %#x, %v, want %#x, %v", tt.field, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func firstProperty(t *testing.T, target *unrealtest.Target, cls process.Address) process.Address {
	t.Helper()
	prop, err := process.ReadPointer(target, cls.Add(unrealtest.StructChildProps), process.PointerSize64)
	if err != nil {
		t.Fatal(err)
	}
	return prop
}

func TestCyclicChains(t *testing.T) {
	target := unrealtest.New()
	looped := target.NewClass("Looped", 0, unrealtest.Property{Name: "Self", Offset: 0x8})
	prop := firstProperty(t, target, looped)
	target.PutPointer(prop.Add(unrealtest.PropertyLinkNext), prop)

	// no properties and its own parent
	orphan := target.NewClass("Orphan", 0)
	target.PutPointer(orphan.Add(unrealtest.StructSuper), orphan)

	m := attach(t, target)

	cls, _ := m.Object(target.NewObject(looped, 0x20)).Class()
	n := 0
	for range cls.Properties() {
		n++
	}
	if n != unreal.MaxChainLength {
		t.Errorf("Properties() yielded %d, want %d", n, unreal.MaxChainLength)
	}
	if _, ok := cls.FieldOffset("Missing"); ok {
		t.Error("FieldOffset() on a cyclic list should fail")
	}

	cls, _ = m.Object(target.NewObject(orphan, 0x20)).Class()
	for range cls.Properties() {
		t.Fatal("Properties() of a cyclic parent chain should be empty")
	}
}
