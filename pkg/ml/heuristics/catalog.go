// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package heuristics

import (
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/debughandles/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Constructor creates a new Strategy instance.
type Constructor func() (Strategy, error)

// Loader loads a module, returning the constructors of the strategies it provides.
type Loader func() ([]Constructor, error)

// Module is a unit of registration: a named group of strategies, loaded on demand.
type Module struct {
	Namespace, Name string
	Load            Loader
}

// FullName returns "<namespace>/<name>".
func (m Module) FullName() string {
	return m.Namespace + "/" + m.Name
}

// IsLearned returns whether the module holds learned strategies: by convention their name starts with "_".
func (m Module) IsLearned() bool {
	return strings.HasPrefix(m.Name, "_")
}

// Catalog enumerates the modules registered under a namespace.
type Catalog interface {
	Modules(namespace string) []Module
}

// registry is the Catalog where Register and RegisterLoader add modules.
type registry struct {
	mu      sync.Mutex
	modules map[string]map[string]Module
}

var defaultRegistry = &registry{modules: make(map[string]map[string]Module)}

// DefaultCatalog returns the Catalog with the modules registered with Register and RegisterLoader.
func DefaultCatalog() Catalog {
	return defaultRegistry
}

// Modules implements Catalog. Modules are returned sorted by name.
func (r *registry) Modules(namespace string) []Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	modules := make([]Module, 0, len(r.modules[namespace]))
	for _, m := range r.modules[namespace] {
		modules = append(modules, m)
	}
	slices.SortFunc(modules, func(a, b Module) int { return strings.Compare(a.Name, b.Name) })
	return modules
}

func (r *registry) add(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, found := r.modules[m.Namespace]
	if !found {
		byName = make(map[string]Module)
		r.modules[m.Namespace] = byName
	}
	if _, found := byName[m.Name]; found {
		exceptions.Panicf("heuristics module %q registered more than once", m.FullName())
	}
	byName[m.Name] = m
}

// Register a module with the given strategy constructors.
//
// To be safe, call Register during initialization of a package.
func Register(namespace, module string, constructors ...Constructor) {
	RegisterLoader(namespace, module, func() ([]Constructor, error) {
		return constructors, nil
	})
}

// RegisterLoader registers a module whose constructors are only known when loaded (during discovery).
// A loader that fails makes the module unavailable, see Discover.
func RegisterLoader(namespace, module string, load Loader) {
	if load == nil {
		exceptions.Panicf("heuristics.RegisterLoader(%q, %q): nil loader", namespace, module)
	}
	defaultRegistry.add(Module{Namespace: namespace, Name: module, Load: load})
}

// Discover loads all the learned modules (see Module.IsLearned) of the namespace in the catalog, and
// instantiates all their strategies, in module order.
//
// Failures of one module (a loader or constructor returning an error or panicking) are logged and only
// make that module's strategies unavailable.
func Discover(catalog Catalog, namespace string) []Strategy {
	return xslices.Map(discover(catalog, namespace), discovered.Strategy)
}

// discovered strategy, along with the name of its module.
type discovered struct {
	module   string
	strategy Strategy
}

func (d discovered) Strategy() Strategy { return d.strategy }

func discover(catalog Catalog, namespace string) []discovered {
	var all []discovered
	for _, m := range catalog.Modules(namespace) {
		if !m.IsLearned() {
			klog.V(2).Infof("heuristics: skipping module %q, not a learned heuristics module", m.FullName())
			continue
		}
		strategies, err := instantiate(m)
		if err != nil {
			klog.Errorf("heuristics: error processing module %q: %v", m.FullName(), err)
			continue
		}
		klog.V(1).Infof("heuristics: module %q provided %d strategies", m.FullName(), len(strategies))
		for _, s := range strategies {
			all = append(all, discovered{module: m.Name, strategy: s})
		}
	}
	return all
}

// instantiate loads the module and creates its strategies. Either all or none of them are returned.
func instantiate(m Module) (strategies []Strategy, err error) {
	exception := exceptions.Try(func() {
		var constructors []Constructor
		constructors, err = m.Load()
		if err != nil {
			err = errors.WithMessage(err, "failed to load")
			return
		}
		for ii, ctor := range constructors {
			var s Strategy
			s, err = ctor()
			if err != nil {
				err = errors.WithMessagef(err, "failed to construct strategy #%d", ii)
				return
			}
			if s == nil {
				err = errors.Errorf("strategy #%d constructed as nil", ii)
				return
			}
			strategies = append(strategies, s)
		}
	})
	if exception != nil {
		if e, ok := exception.(error); ok {
			err = errors.WithMessage(e, "panic")
		} else {
			err = errors.Errorf("panic: %v", exception)
		}
	}
	if err != nil {
		return nil, err
	}
	return strategies, nil
}
