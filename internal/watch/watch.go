// Package watch polls configured values out of a running game.
package watch

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/blacktop/ureflect/internal/config"
	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/unreal"
)

// Opener finds and opens the game process.
type Opener func() (process.Process, error)

// Change is a watched value that differs from the previous tick.
type Change struct {
	Name  string
	Old   any
	New   any
	First bool
}

type entry struct {
	watch config.Watch
	ptr   *unreal.Pointer
	read  func(*unreal.Pointer, unreal.Introspector) (any, bool)
}

// State is everything the poller keeps between ticks.
//
// The module and the pointer caches live exactly as long as one attachment;
// the last known values survive reattachment.
type State struct {
	cfg     *config.Config
	open    Opener
	proc    process.Process
	module  *unreal.Module
	entries []entry
	values  map[string]any
}

// Option configures a State.
type Option func(*State)

// WithOpener replaces how the game process is found.
func WithOpener(open Opener) Option {
	return func(s *State) {
		s.open = open
	}
}

// NewState returns a detached State for cfg.
func NewState(cfg *config.Config, opts ...Option) *State {
	s := &State{
		cfg:    cfg,
		values: make(map[string]any),
		open: func() (process.Process, error) {
			return process.Find(cfg.Process...)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attached reports whether the State holds a module.
func (s *State) Attached() bool {
	return s.module != nil
}

// Module returns the current module, nil while detached.
func (s *State) Module() *unreal.Module {
	return s.module
}

// Value returns the last value read for the named watch.
func (s *State) Value(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Tick attaches if needed and reads every watch once.
//
// A watch that cannot be read keeps its previous value.
func (s *State) Tick() []Change {
	if s.proc != nil && !s.proc.IsOpen() {
		log.WithField("pid", s.proc.Pid()).Info("Process exited")
		s.Detach()
	}
	if s.module == nil {
		if err := s.attach(); err != nil {
			if errors.Is(err, unreal.ErrUnsupportedBuild) {
				log.WithError(err).Warn("Unsupported build")
			} else {
				log.WithError(err).Debug("Attach failed")
			}
			return nil
		}
	}

	var changes []Change
	for _, e := range s.entries {
		v, ok := e.read(e.ptr, s.module)
		if !ok {
			continue
		}
		prev, seen := s.values[e.watch.Name]
		if seen && prev == v {
			continue
		}
		s.values[e.watch.Name] = v
		changes = append(changes, Change{Name: e.watch.Name, Old: prev, New: v, First: !seen})
	}
	return changes
}

func (s *State) attach() error {
	proc, err := s.open()
	if err != nil {
		return errors.Wrap(err, "failed to open process")
	}
	m, err := s.attachModule(proc)
	if err != nil {
		proc.Close()
		return err
	}

	entries := make([]entry, 0, len(s.cfg.Watch))
	for _, w := range s.cfg.Watch {
		b, err := w.ParseBase()
		if err != nil {
			proc.Close()
			return err
		}
		var base process.Address
		switch b.Kind {
		case config.BaseGEngine:
			base = m.GEngine()
		case config.BaseGWorld:
			var ok bool
			if base, ok = m.GWorld(); !ok {
				log.WithField("watch", w.Name).Warn("GWorld was not found in this build")
			}
		case config.BaseNamePool:
			base = m.NamePool()
		default:
			base = process.Address(b.Addr)
		}
		entries = append(entries, entry{
			watch: w,
			ptr:   unreal.NewPointer(base, unreal.DefaultCapacity, w.Path...),
			read:  readers[w.Type],
		})
	}

	s.proc, s.module, s.entries = proc, m, entries
	log.WithFields(log.Fields{
		"pid":      proc.Pid(),
		"gengine":  m.GEngine(),
		"namepool": m.NamePool(),
	}).Info("Attached")
	return nil
}

func (s *State) attachModule(proc process.Process) (*unreal.Module, error) {
	base, err := proc.ModuleAddress(s.cfg.Module)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to locate %s", s.cfg.Module)
	}
	offsets, err := unreal.OffsetsFor(s.cfg.Engine)
	if err != nil {
		return nil, err
	}
	return unreal.Attach(proc, base,
		unreal.WithOffsets(offsets),
		unreal.WithNameCache(s.cfg.NameCache),
	)
}

// Detach drops the process, the module and every cached offset.
func (s *State) Detach() {
	if s.proc != nil {
		s.proc.Close()
	}
	s.proc, s.module, s.entries = nil, nil, nil
}

// Reload swaps in a new configuration. The next tick attaches from scratch.
func (s *State) Reload(cfg *config.Config) {
	s.Detach()
	s.cfg = cfg
}

// Run ticks every configured interval until ctx is done, logging changed values.
// A configuration received on reload replaces the current one between ticks.
func (s *State) Run(ctx context.Context, reload <-chan *config.Config) error {
	defer s.Detach()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		for _, c := range s.Tick() {
			log.WithFields(log.Fields{
				"old": c.Old,
				"new": c.New,
			}).Info(c.Name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg := <-reload:
			log.WithField("watches", len(cfg.Watch)).Info("Reloaded config")
			s.Reload(cfg)
			ticker.Reset(cfg.Interval)
		case <-ticker.C:
		}
	}
}

func read[T any](p *unreal.Pointer, m unreal.Introspector) (any, bool) {
	v, ok := unreal.Deref[T](p, m)
	if !ok {
		return nil, false
	}
	return v, true
}

var readers = map[string]func(*unreal.Pointer, unreal.Introspector) (any, bool){
	"bool": read[bool],
	"u8":   read[uint8],
	"i8":   read[int8],
	"u16":  read[uint16],
	"i16":  read[int16],
	"u32":  read[uint32],
	"i32":  read[int32],
	"u64":  read[uint64],
	"i64":  read[int64],
	"f32":  read[float32],
	"f64":  read[float64],
}
