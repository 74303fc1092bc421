package unreal

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ErrUnsupportedEngine is returned by OffsetsFor when no compiled-in table covers the engine version.
var ErrUnsupportedEngine = fmt.Errorf("unsupported engine version")

// Offsets are the byte offsets of the fields of the engine's own reflection records.
type Offsets struct {
	// UObject::ClassPrivate
	UObjectClass uint64
	// UObject::NamePrivate
	UObjectName uint64
	// UStruct::SuperStruct
	UStructSuper uint64
	// UStruct::ChildProperties, the first property of the chain linked by FPropertyLinkNext
	UStructChildProperties uint64
	// FField::NamePrivate
	FFieldName uint64
	// FProperty::Offset_Internal
	FPropertyOffset uint64
	// FProperty::PropertyLinkNext
	FPropertyLinkNext uint64
}

// FFieldOffsets is the layout of 64-bit builds where properties are FFields rather than UObjects.
var FFieldOffsets = Offsets{
	UObjectClass:           0x10,
	UObjectName:            0x18,
	UStructSuper:           0x40,
	UStructChildProperties: 0x50,
	FFieldName:             0x28,
	FPropertyOffset:        0x4C,
	FPropertyLinkNext:      0x58,
}

var offsetTables = []struct {
	constraint string
	offsets    *Offsets
}{
	{">= 4.25, < 6.0", &FFieldOffsets},
}

// OffsetsFor returns the offset table for the given engine version.
// An empty version selects FFieldOffsets.
func OffsetsFor(engineVersion string) (*Offsets, error) {
	if engineVersion == "" {
		o := FFieldOffsets
		return &o, nil
	}
	v, err := version.NewVersion(engineVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine version %q: %v", engineVersion, err)
	}
	for _, t := range offsetTables {
		constraints, err := version.NewConstraint(t.constraint)
		if err != nil {
			return nil, fmt.Errorf("failed to parse constraint %q: %v", t.constraint, err)
		}
		if constraints.Check(v) {
			o := *t.offsets
			return &o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, engineVersion)
}
