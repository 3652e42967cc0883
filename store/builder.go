package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/FlorianSauer/fragstore/encap/wrap"
)

// Factory constructs a Storage from a flat string-keyed parameter set,
// the same shape ImageSaverLib.Storage.StorageBuilder reads out of an ini
// [Storage] section.
type Factory func(params map[string]string) (Storage, error)

// Builder is a name-keyed Storage factory registry, letting configuration pick a backend by
// name ("memory", "local", "void", ...) without the caller importing
// every concrete type.
type Builder struct {
	mu      sync.Mutex
	classes map[string]Factory
}

func NewBuilder() *Builder {
	b := &Builder{classes: make(map[string]Factory)}
	b.Register("memory", func(params map[string]string) (Storage, error) {
		return NewMemory(DefaultMaxResourceSize, params["wrap_tag"]), nil
	})
	b.Register("void", func(params map[string]string) (Storage, error) {
		return NewVoid(DefaultMaxResourceSize, params["wrap_tag"]), nil
	})
	b.Register("local", func(params map[string]string) (Storage, error) {
		dir := params["directory"]
		if dir == "" {
			return nil, fmt.Errorf("store: local backend requires a 'directory' parameter")
		}
		depth := 1
		if d, ok := params["folder_depth"]; ok {
			if _, err := fmt.Sscanf(d, "%d", &depth); err != nil {
				return nil, fmt.Errorf("store: invalid folder_depth %q: %w", d, err)
			}
		}
		return NewFS(dir, depth, DefaultMaxResourceSize, params["wrap_tag"])
	})
	return b
}

func (b *Builder) Register(name string, f Factory) {
	b.mu.Lock()
	b.classes[name] = f
	b.mu.Unlock()
}

// Build constructs the named backend, rejects one whose RequiredWrapTag
// doesn't even parse as a wrap tag stack, and wraps it with Verbose when
// params["verbose"] is truthy.
func (b *Builder) Build(name string, params map[string]string) (Storage, error) {
	b.mu.Lock()
	f, ok := b.classes[name]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("store: cannot build storage of type %q", name)
	}
	s, err := f(params)
	if err != nil {
		return nil, err
	}
	if tag := s.RequiredWrapTag(); tag != "" && tag != "pass" {
		if _, err := wrap.Parse(tag); err != nil {
			return nil, fmt.Errorf("store: backend %q requires unparseable wrap tag %q: %w", name, tag, err)
		}
	}
	if isTruthy(params["verbose"]) {
		s = NewVerbose(s)
	}
	return s, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
