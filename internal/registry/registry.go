package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"TradeBot/internal/agent"
	"TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"
	"TradeBot/pkg/metrics"
)

// Resolved is a cached resolution. Repeated Resolve calls for the same path return the same pointer.
type Resolved struct {
	Path    string
	Module  string
	Symbol  string
	Source  string
	Factory agent.Factory
}

type Option func(*Registry)

func WithSource(s Source) Option {
	return func(r *Registry) { r.sources = append(r.sources, s) }
}

// WithAutoInstall enables one install attempt per missing package.
func WithAutoInstall(inst Installer) Option {
	return func(r *Registry) { r.installer = inst }
}

func WithLogger(l *applogger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry maps strategy paths to agent factories.
type Registry struct {
	static    *StaticSource
	sources   []Source
	installer Installer
	log       *applogger.Logger
	metrics   repository.Metrics

	resolveMu sync.Mutex // serializes lookups and installs

	mu        sync.RWMutex
	cache     map[string]*Resolved
	attempted map[string]bool
}

// New builds a registry. The built-in static source is always consulted first.
func New(opts ...Option) *Registry {
	r := &Registry{
		static:    NewStaticSource(),
		log:       applogger.NewNop(),
		metrics:   metrics.Nop{},
		cache:     make(map[string]*Resolved),
		attempted: make(map[string]bool),
	}
	r.sources = []Source{r.static}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterModule exposes a statically linked module.
func (r *Registry) RegisterModule(module string, exports Exports) {
	r.static.Register(module, exports)
}

// Resolve returns the factory behind path. Every failure is a *ResolveError.
func (r *Registry) Resolve(ctx context.Context, raw string) (*Resolved, error) {
	if res, ok := r.cached(raw); ok {
		return res, nil
	}

	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()
	if res, ok := r.cached(raw); ok {
		return res, nil
	}

	res, err := r.resolve(ctx, raw)
	if err != nil {
		r.metrics.RecordResolve(KindOf(err).String())
		return nil, err
	}
	r.metrics.RecordResolve("ok")

	r.mu.Lock()
	r.cache[raw] = res
	r.mu.Unlock()
	return res, nil
}

func (r *Registry) resolve(ctx context.Context, raw string) (*Resolved, error) {
	p, err := ParsePath(raw)
	if err != nil {
		return nil, newError(InvalidPathFormat, raw, "expected <package>.<module>:<Symbol>", err)
	}

	exports, src, err := r.lookupAny(p.Module)
	if err != nil {
		return nil, newError(ModuleImportFailed, raw, "module "+p.Module+" could not be loaded", err)
	}
	if exports == nil {
		exports, src, err = r.installAndRetry(ctx, p)
		if err != nil {
			return nil, err
		}
	}

	value, ok := exports[p.Symbol]
	if !ok {
		return nil, newError(ClassNotFound, raw,
			fmt.Sprintf("symbol %s not found in module %s; available: [%s]", p.Symbol, p.Module, strings.Join(symbols(exports), ", ")), nil)
	}

	factory, ok := asFactory(value)
	if !ok {
		return nil, newError(NotAClass, raw, fmt.Sprintf("%s is %T, not an agent factory", p.Symbol, value), nil)
	}

	return &Resolved{Path: raw, Module: p.Module, Symbol: p.Symbol, Source: src, Factory: factory}, nil
}

func (r *Registry) installAndRetry(ctx context.Context, p Path) (Exports, string, error) {
	if r.installer == nil {
		r.log.Info("strategy module missing and auto-install is disabled",
			applogger.String("module", p.Module), applogger.String("package", p.Package))
		return nil, "", newError(ModuleImportFailed, p.Raw, "module "+p.Module+" not found (auto-install disabled)", nil)
	}
	if r.packageLoaded(p.Package) {
		return nil, "", newError(ModuleImportFailed, p.Raw,
			fmt.Sprintf("module %s not found; package %s is already present", p.Module, p.Package), nil)
	}

	r.mu.Lock()
	tried := r.attempted[p.Package]
	r.attempted[p.Package] = true
	r.mu.Unlock()
	if tried {
		return nil, "", newError(ModuleImportFailed, p.Raw, "module "+p.Module+" not found after install attempt", nil)
	}

	r.log.Warn("auto-installing strategy package", applogger.String("package", p.Package), applogger.String("module", p.Module))
	if err := r.installer.Install(ctx, p.Package); err != nil {
		r.log.Error("strategy package install failed", applogger.String("package", p.Package), applogger.Error(err))
		return nil, "", newError(ModuleImportFailed, p.Raw, "install of package "+p.Package+" failed", err)
	}

	exports, src, err := r.lookupAny(p.Module)
	if err != nil {
		return nil, "", newError(ModuleImportFailed, p.Raw, "module "+p.Module+" could not be loaded after install", err)
	}
	if exports == nil {
		return nil, "", newError(ModuleImportFailed, p.Raw, "module "+p.Module+" still missing after install", nil)
	}
	r.log.Info("strategy package installed", applogger.String("package", p.Package), applogger.String("source", src))
	return exports, src, nil
}

// lookupAny tries the module name as given, then its dash-normalized form, across all sources.
func (r *Registry) lookupAny(module string) (Exports, string, error) {
	names := []string{module}
	if n := normalize(module); n != module {
		names = append(names, n)
	}
	var firstErr error
	for _, name := range names {
		for _, s := range r.sources {
			ex, ok, err := s.Lookup(name)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return ex, s.Name(), nil
			}
		}
	}
	return nil, "", firstErr
}

func (r *Registry) packageLoaded(pkg string) bool {
	for _, s := range r.sources {
		for _, m := range s.Modules() {
			if p := packageOf(m); p == pkg || p == normalize(pkg) {
				return true
			}
		}
	}
	return false
}

func (r *Registry) cached(raw string) (*Resolved, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.cache[raw]
	return res, ok
}

// IsCached reports whether path has been resolved.
func (r *Registry) IsCached(raw string) bool {
	_, ok := r.cached(raw)
	return ok
}

// Cached lists resolved paths in sorted order.
func (r *Registry) Cached() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.cache))
	for k := range r.cache {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clear drops every cached resolution and install attempt.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*Resolved)
	r.attempted = make(map[string]bool)
}

// Modules lists every module visible through the configured sources.
func (r *Registry) Modules() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range r.sources {
		for _, m := range s.Modules() {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

func asFactory(v any) (agent.Factory, bool) {
	switch f := v.(type) {
	case agent.Factory:
		return f, f != nil
	case func(string, map[string]any) (agent.Agent, error):
		return f, f != nil
	}
	return nil, false
}

func symbols(ex Exports) []string {
	out := make([]string, 0, len(ex))
	for k := range ex {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
