// Package unreal inspects the reflection data of a running Unreal Engine game.
package unreal

import (
	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/signature"
)

// ErrUnsupportedBuild is returned by Attach when none of the patterns for a
// global match the image.
var ErrUnsupportedBuild = errors.New("unsupported build")

// GEngineAnchors locate the GEngine pointer slot.
var GEngineAnchors = []signature.Anchor{
	// mov rax, [rip+GEngine]; mov ecx, [rax+imm32]; ...
	signature.NewAnchor("48 8B 05 ?? ?? ?? ?? 8B 88 ?? ?? ?? ?? 41", 3, 4),
	// test al, 1; jnz; mov qword [rip+GEngine], imm32
	signature.NewAnchor("A8 01 75 ?? 48 C7 05", 7, 8),
}

// NamePoolAnchors locate the global FNamePool.
var NamePoolAnchors = []signature.Anchor{
	signature.NewAnchor("74 09 48 8D 15 ?? ?? ?? ?? EB 16 ?? ??", 5, 4),
	signature.NewAnchor("89 5C 24 ?? 89 44 24 ?? 74 ?? 48 8D 15", 13, 4),
	signature.NewAnchor("57 0F B7 F8 74 ?? B8 ?? ?? ?? ?? 8B 44", 7, 4),
}

// GWorldAnchors locate the GWorld pointer slot. GWorld is optional.
var GWorldAnchors = []signature.Anchor{
	// cmp byte [rsp+imm8], 0; jz; mov rdi, [rip+GWorld]; ...
	signature.NewAnchor("80 7C 24 ?? 00 ?? ?? 48 8B 3D ?? ?? ?? ?? 48", 10, 4),
}

// Module is the state discovered when attaching to a game's main module.
//
// It is only valid for the lifetime of the process it was attached to.
type Module struct {
	r        process.Reader
	image    *process.Image
	offsets  *Offsets
	gengine  process.Address
	gworld   process.Address
	namePool process.Address
	names    *lru.Cache[uint32, string]
}

type options struct {
	offsets         *Offsets
	nameCacheSize   int
	gengineAnchors  []signature.Anchor
	gworldAnchors   []signature.Anchor
	namePoolAnchors []signature.Anchor
}

// Option configures Attach.
type Option func(*options)

// WithOffsets overrides the reflection layout, FFieldOffsets by default.
func WithOffsets(o *Offsets) Option {
	return func(opts *options) {
		opts.offsets = o
	}
}

// WithNameCache caches up to size decoded names for the lifetime of the Module.
func WithNameCache(size int) Option {
	return func(opts *options) {
		opts.nameCacheSize = size
	}
}

// WithGEngineAnchors replaces the patterns tried, in order, to locate GEngine.
func WithGEngineAnchors(anchors ...signature.Anchor) Option {
	return func(opts *options) {
		opts.gengineAnchors = anchors
	}
}

// WithGWorldAnchors replaces the patterns tried, in order, to locate GWorld.
func WithGWorldAnchors(anchors ...signature.Anchor) Option {
	return func(opts *options) {
		opts.gworldAnchors = anchors
	}
}

// WithNamePoolAnchors replaces the patterns tried, in order, to locate the FNamePool.
func WithNamePoolAnchors(anchors ...signature.Anchor) Option {
	return func(opts *options) {
		opts.namePoolAnchors = anchors
	}
}

// Attach locates GEngine and the FNamePool in the image mapped at base.
// GWorld is looked up too, but a build without it still attaches.
func Attach(r process.Reader, base process.Address, opts ...Option) (*Module, error) {
	o := options{
		gengineAnchors:  GEngineAnchors,
		gworldAnchors:   GWorldAnchors,
		namePoolAnchors: NamePoolAnchors,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.offsets == nil {
		offsets := FFieldOffsets
		o.offsets = &offsets
	}

	img, err := process.ReadImage(r, base)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read module image")
	}
	log.WithFields(log.Fields{
		"base":    img.Base,
		"size":    humanize.Bytes(img.Size),
		"pointer": img.PointerSize,
	}).Debug("Parsed module headers")

	m := &Module{
		r:       r,
		image:   img,
		offsets: o.offsets,
	}

	var idx int
	var ok bool
	m.gengine, idx, ok = signature.FirstMatch(r, base, img.Size, o.gengineAnchors...)
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedBuild, "no GEngine pattern matched")
	}
	log.WithFields(log.Fields{"addr": m.gengine, "pattern": idx}).Debug("Found GEngine")

	if m.gworld, idx, ok = signature.FirstMatch(r, base, img.Size, o.gworldAnchors...); ok {
		log.WithFields(log.Fields{"addr": m.gworld, "pattern": idx}).Debug("Found GWorld")
	} else {
		log.Debug("No GWorld pattern matched")
	}

	m.namePool, idx, ok = signature.FirstMatch(r, base, img.Size, o.namePoolAnchors...)
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedBuild, "no FNamePool pattern matched")
	}
	log.WithFields(log.Fields{"addr": m.namePool, "pattern": idx}).Debug("Found FNamePool")

	if o.nameCacheSize > 0 {
		m.names, err = lru.New[uint32, string](o.nameCacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create name cache")
		}
	}

	return m, nil
}

// Image returns the parsed headers of the attached module.
func (m *Module) Image() process.Image {
	return *m.image
}

// Offsets returns the reflection layout in use.
func (m *Module) Offsets() Offsets {
	return *m.offsets
}

// GEngine returns the address of the GEngine pointer slot.
func (m *Module) GEngine() process.Address {
	return m.gengine
}

// GWorld returns the address of the GWorld pointer slot, if one was found.
func (m *Module) GWorld() (process.Address, bool) {
	return m.gworld, !m.gworld.IsNull()
}

// NamePool returns the address of the FNamePool.
func (m *Module) NamePool() process.Address {
	return m.namePool
}

// PointerSize returns the pointer width of the target.
func (m *Module) PointerSize() process.PointerSize {
	return m.image.PointerSize
}

// Read implements process.Reader.
func (m *Module) Read(addr process.Address, buf []byte) error {
	return m.r.Read(addr, buf)
}

// ReadPointer reads a target-width pointer at addr.
func (m *Module) ReadPointer(addr process.Address) (process.Address, bool) {
	p, err := process.ReadPointer(m.r, addr, m.image.PointerSize)
	if err != nil {
		return 0, false
	}
	return p, true
}

// FieldOffset looks up the named field in the class of the object at addr.
func (m *Module) FieldOffset(addr process.Address, name string) (uint32, bool) {
	return m.Object(addr).FieldOffset(name)
}
