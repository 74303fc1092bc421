package watch

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/blacktop/ureflect/internal/config"
	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/unreal/unrealtest"
)

type fakeProcess struct {
	*unrealtest.Target
	open   bool
	closed int
}

func (p *fakeProcess) Pid() int32   { return 1234 }
func (p *fakeProcess) IsOpen() bool { return p.open }
func (p *fakeProcess) Close() error { p.closed++; return nil }

func (p *fakeProcess) ModuleAddress(name string) (process.Address, error) {
	if name != "Game.exe" {
		return 0, process.ErrModuleNotFound
	}
	return unrealtest.ImageBase, nil
}

func (p *fakeProcess) ModuleSize(string) (uint64, error) {
	return unrealtest.ImageSize, nil
}

type game struct {
	*fakeProcess
	pawn  process.Address
	level process.Address
}

// newGame builds a Pawn whose Experience.Level lives at levelOffset.
func newGame(levelOffset uint32) *game {
	target := unrealtest.New()
	pawnClass := target.NewClass("Pawn", 0, unrealtest.Property{Name: "Experience", Offset: 0x40})
	expClass := target.NewClass("Experience", 0, unrealtest.Property{Name: "Level", Offset: levelOffset})
	pawn := target.NewObject(pawnClass, 0x80)
	exp := target.NewObject(expClass, 0x100)
	target.PutPointer(pawn.Add(0x40), exp)
	target.PutPointer(target.GEngine, pawn)
	return &game{
		fakeProcess: &fakeProcess{Target: target, open: true},
		pawn:        pawn,
		level:       exp.Add(uint64(levelOffset)),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Process:  []string{"Game.exe"},
		Module:   "Game.exe",
		Interval: time.Millisecond,
		Watch: []config.Watch{
			{Name: "level", Type: "u32", Path: []string{"Experience", "Level"}},
			{Name: "alive", Type: "bool", Path: []string{"0x48"}},
		},
	}
}

func TestTick(t *testing.T) {
	g := newGame(0xE0)
	g.PutUint32(g.level, 7)
	g.PutUint64(g.pawn.Add(0x48), 1)

	opens := 0
	s := NewState(testConfig(), WithOpener(func() (process.Process, error) {
		opens++
		return g.fakeProcess, nil
	}))

	got := s.Tick()
	want := []Change{
		{Name: "level", New: uint32(7), First: true},
		{Name: "alive", New: true, First: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tick() = %+v, want %+v", got, want)
	}
	if !s.Attached() {
		t.Fatal("Attached() = false after a successful tick")
	}

	if got := s.Tick(); len(got) != 0 {
		t.Errorf("Tick() with no changes = %+v", got)
	}

	g.PutUint32(g.level, 8)
	got = s.Tick()
	want = []Change{{Name: "level", Old: uint32(7), New: uint32(8)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tick() = %+v, want %+v", got, want)
	}
	if opens != 1 {
		t.Errorf("opened the process %d times, want 1", opens)
	}
}

func TestTickGWorldBase(t *testing.T) {
	g := newGame(0xE0)
	world := g.Alloc(0x200)
	g.PutPointer(g.GWorld, world)
	g.PutUint32(world.Add(0x118), 1)

	cfg := testConfig()
	cfg.Watch = []config.Watch{{Name: "loading", Base: "gworld", Type: "bool", Path: []string{"0x118"}}}
	s := NewState(cfg, WithOpener(func() (process.Process, error) {
		return g.fakeProcess, nil
	}))

	got := s.Tick()
	want := []Change{{Name: "loading", New: true, First: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tick() = %+v, want %+v", got, want)
	}

	g.PutUint32(world.Add(0x118), 0)
	got = s.Tick()
	want = []Change{{Name: "loading", Old: true, New: false}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tick() = %+v, want %+v", got, want)
	}
}

func TestTickKeepsPreviousValue(t *testing.T) {
	g := newGame(0xE0)
	g.PutUint32(g.level, 3)
	s := NewState(testConfig(), WithOpener(func() (process.Process, error) {
		return g.fakeProcess, nil
	}))
	s.Tick()

	// the experience object goes away mid-session
	g.PutPointer(g.pawn.Add(0x40), 0)
	if got := s.Tick(); len(got) != 0 {
		t.Errorf("Tick() = %+v, want no changes", got)
	}
	if v, ok := s.Value("level"); !ok || v != uint32(3) {
		t.Errorf("Value(level) = %v, %v, want 3", v, ok)
	}

	// bool validity: 2 is not a bool so the previous value stays
	g.PutUint64(g.pawn.Add(0x48), 0)
	s.Tick()
	g.PutUint64(g.pawn.Add(0x48), 2)
	s.Tick()
	if v, _ := s.Value("alive"); v != false {
		t.Errorf("Value(alive) = %v, want false", v)
	}
}

func TestTickReattach(t *testing.T) {
	first := newGame(0xE0)
	first.PutUint32(first.level, 10)
	second := newGame(0xF0) // a patched build with a different layout
	second.PutUint32(second.level, 11)

	current := first.fakeProcess
	s := NewState(testConfig(), WithOpener(func() (process.Process, error) {
		if current == nil {
			return nil, errors.New("no process")
		}
		return current, nil
	}))
	s.Tick()
	if v, _ := s.Value("level"); v != uint32(10) {
		t.Fatalf("Value(level) = %v, want 10", v)
	}

	first.open = false
	current = nil
	if got := s.Tick(); len(got) != 0 || s.Attached() {
		t.Errorf("Tick() after exit = %+v, attached %v", got, s.Attached())
	}
	if first.closed != 1 {
		t.Errorf("Close() called %d times, want 1", first.closed)
	}
	if v, _ := s.Value("level"); v != uint32(10) {
		t.Errorf("Value(level) = %v, want 10 kept across detach", v)
	}

	current = second.fakeProcess
	got := s.Tick()
	want := []Change{{Name: "level", Old: uint32(10), New: uint32(11)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tick() = %+v, want %+v", got, want)
	}
}

func TestTickUnsupportedBuild(t *testing.T) {
	bare := &fakeProcess{Target: unrealtest.New(), open: true}
	// wipe the planted code so no pattern matches
	bare.Map(unrealtest.ImageBase+0x1000, make([]byte, 0x1000))

	s := NewState(testConfig(), WithOpener(func() (process.Process, error) {
		return bare, nil
	}))
	if got := s.Tick(); got != nil || s.Attached() {
		t.Errorf("Tick() = %+v, attached %v", got, s.Attached())
	}
	if bare.closed != 1 {
		t.Errorf("Close() called %d times, want 1", bare.closed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	g := newGame(0xE0)
	s := NewState(testConfig(), WithOpener(func() (process.Process, error) {
		return g.fakeProcess, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
	if s.Attached() {
		t.Error("Run() should detach on return")
	}
}

func TestReadersCoverTypes(t *testing.T) {
	for _, typ := range config.Types {
		if _, ok := readers[typ]; !ok {
			t.Errorf("no reader for %s", typ)
		}
	}
}

func TestReload(t *testing.T) {
	g := newGame(0xE0)
	g.PutUint32(g.level, 5)
	s := NewState(testConfig(), WithOpener(func() (process.Process, error) {
		return g.fakeProcess, nil
	}))
	s.Tick()

	cfg := testConfig()
	cfg.Watch = []config.Watch{{Name: "raw", Type: "u16", Path: []string{"Experience", "0xE0"}}}
	s.Reload(cfg)
	if s.Attached() {
		t.Fatal("Reload() should detach")
	}
	got := s.Tick()
	want := []Change{{Name: "raw", New: uint16(5), First: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tick() = %+v, want %+v", got, want)
	}
}

func TestRunReload(t *testing.T) {
	g := newGame(0xE0)
	g.PutUint32(g.level, 9)
	s := NewState(testConfig(), WithOpener(func() (process.Process, error) {
		return g.fakeProcess, nil
	}))

	reload := make(chan *config.Config, 1)
	cfg := testConfig()
	cfg.Watch = cfg.Watch[:1]
	cfg.Watch[0].Name = "renamed"
	reload <- cfg

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Run(ctx, reload)

	if v, ok := s.Value("renamed"); !ok || v != uint32(9) {
		t.Errorf("Value(renamed) = %v, %v, want 9", v, ok)
	}
}
