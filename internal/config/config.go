// Package config is used to load the configuration file
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/blacktop/ureflect/internal/utils"
	"github.com/blacktop/ureflect/pkg/unreal"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// Types are the value types a watch may read.
var Types = []string{"bool", "u8", "i8", "u16", "i16", "u32", "i32", "u64", "i64", "f32", "f64"}

// BaseKind says what a watch path is rooted at.
type BaseKind int

const (
	BaseGEngine BaseKind = iota
	BaseGWorld
	BaseNamePool
	BaseAbsolute
)

// Base is the parsed root of a watch path.
type Base struct {
	Kind BaseKind
	Addr uint64
}

// Watch is a value to poll.
type Watch struct {
	Name string   `mapstructure:"name"`
	Base any      `mapstructure:"base"`
	Type string   `mapstructure:"type"`
	Path []string `mapstructure:"path"`
}

// ParseBase parses the base of the watch: gengine (the default), gworld, namepool or an address.
func (w Watch) ParseBase() (Base, error) {
	switch b := w.Base.(type) {
	case nil:
		return Base{Kind: BaseGEngine}, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "gengine":
			return Base{Kind: BaseGEngine}, nil
		case "gworld":
			return Base{Kind: BaseGWorld}, nil
		case "namepool":
			return Base{Kind: BaseNamePool}, nil
		}
		addr, err := utils.ConvertStrToInt(b)
		if err != nil {
			return Base{}, errors.Wrapf(err, "invalid base for %s", w.Name)
		}
		return Base{Kind: BaseAbsolute, Addr: addr}, nil
	default:
		// yaml decodes unquoted 0x... as an integer
		addr, err := cast.ToUint64E(b)
		if err != nil {
			return Base{}, errors.Wrapf(err, "invalid base for %s", w.Name)
		}
		return Base{Kind: BaseAbsolute, Addr: addr}, nil
	}
}

// Config is the configuration struct
type Config struct {
	Process   []string      `mapstructure:"process"`
	Module    string        `mapstructure:"module"`
	Engine    string        `mapstructure:"engine"`
	Interval  time.Duration `mapstructure:"interval"`
	NameCache int           `mapstructure:"name-cache"`
	Watch     []Watch       `mapstructure:"watch"`
}

func (c *Config) verify() error {
	if len(c.Process) == 0 {
		return errors.New("no process names configured")
	}
	if c.Module == "" {
		c.Module = c.Process[0]
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	} else if c.Interval < 0 {
		return errors.Errorf("interval must be positive: %s", c.Interval)
	}
	if c.NameCache < 0 {
		return errors.Errorf("name-cache must not be negative: %d", c.NameCache)
	}
	if _, err := unreal.OffsetsFor(c.Engine); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i, w := range c.Watch {
		if w.Name == "" {
			return errors.Errorf("watch %d has no name", i)
		}
		if seen[w.Name] {
			return errors.Errorf("duplicate watch %s", w.Name)
		}
		seen[w.Name] = true

		if !slices.Contains(Types, w.Type) {
			return errors.Errorf("watch %s has unknown type %q (expected one of %s)", w.Name, w.Type, strings.Join(Types, ", "))
		}
		if len(w.Path) == 0 {
			return errors.Errorf("watch %s has an empty path", w.Name)
		}
		if len(w.Path) > unreal.DefaultCapacity {
			return errors.Errorf("watch %s path is longer than %d fields", w.Name, unreal.DefaultCapacity)
		}
		if _, err := w.ParseBase(); err != nil {
			return err
		}
	}

	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		// UREFLECT_PROCESS=a.exe,b.exe
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Wrap(err, "config: failed to unmarshal")
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, errors.Wrap(err, "config: failed to verify")
	}

	return c, nil
}
