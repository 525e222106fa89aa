package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"
)

// Exports is the symbol table of one module.
type Exports map[string]any

// Source finds modules by dotted name.
type Source interface {
	Name() string
	// Lookup reports ok=false when the module is simply absent.
	Lookup(module string) (exports Exports, ok bool, err error)
	Modules() []string
}

// StaticSource holds modules compiled into the binary.
type StaticSource struct {
	mu      sync.RWMutex
	modules map[string]Exports
}

func NewStaticSource() *StaticSource {
	return &StaticSource{modules: make(map[string]Exports)}
}

func (s *StaticSource) Name() string { return "static" }

// Register adds or replaces a module.
func (s *StaticSource) Register(module string, exports Exports) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(Exports, len(exports))
	for k, v := range exports {
		cp[k] = v
	}
	s.modules[module] = cp
}

func (s *StaticSource) Lookup(module string) (Exports, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.modules[module]
	return ex, ok, nil
}

func (s *StaticSource) Modules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.modules))
	for m := range s.modules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// PluginSource loads "<dir>/<module>.so" Go plugins exporting an `Exports` symbol,
// either a map[string]any variable or a func() map[string]any.
type PluginSource struct {
	dir string

	mu     sync.Mutex
	loaded map[string]Exports
}

func NewPluginSource(dir string) *PluginSource {
	return &PluginSource{dir: dir, loaded: make(map[string]Exports)}
}

func (p *PluginSource) Name() string { return "plugin:" + p.dir }

func (p *PluginSource) Lookup(module string) (Exports, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ex, ok := p.loaded[module]; ok {
		return ex, true, nil
	}

	path := filepath.Join(p.dir, module+".so")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	plug, err := plugin.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open plugin %s: %w", path, err)
	}
	sym, err := plug.Lookup("Exports")
	if err != nil {
		return nil, false, fmt.Errorf("plugin %s has no Exports: %w", path, err)
	}

	var ex Exports
	switch v := sym.(type) {
	case *map[string]any:
		ex = Exports(*v)
	case *Exports:
		ex = *v
	case func() map[string]any:
		ex = Exports(v())
	default:
		return nil, false, fmt.Errorf("plugin %s: Exports has unsupported type %T", path, sym)
	}
	p.loaded[module] = ex
	return ex, true, nil
}

func (p *PluginSource) Modules() []string {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".so") {
			out = append(out, strings.TrimSuffix(e.Name(), ".so"))
		}
	}
	sort.Strings(out)
	return out
}
