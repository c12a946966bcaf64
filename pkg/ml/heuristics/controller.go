// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package heuristics implements a controller of pluggable decision strategies for optimizations.
//
// Strategies are grouped in modules, registered in a Catalog under a namespace (see Register). Modules whose
// name starts with "_" hold learned strategies: the Controller discovers them lazily, once, on first use,
// and indexes them by the name of the optimization they decide on.
//
// A decision is taken by the first strategy (in discovery order) whose precondition holds.
//
// Example:
//
//	import _ "github.com/gomlx/debughandles/pkg/ml/heuristics/learned"
//
//	ctrl := heuristics.New()
//	ctx := heuristics.NewContext()
//	heuristics.SetValue(ctx, heuristics.M, 1024)
//	decision, ok := ctrl.Decide("pad_mm", ctx, []heuristics.Choice{"pad", "no_pad"}, nil, heuristics.DeviceCapability{8, 0})
package heuristics

import (
	"slices"
	"sync"

	"github.com/gomlx/debughandles/pkg/support/xslices"
	"k8s.io/klog/v2"
)

// DefaultNamespace where the learned strategies of this module are registered.
const DefaultNamespace = "learned_heuristics"

// State of a Controller.
type State int

const (
	// Uninitialized means discovery didn't run yet.
	Uninitialized State = iota

	// Initialized means discovery ran, and the strategies are fixed for the lifetime of the Controller.
	Initialized
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Initialized {
		return "Initialized"
	}
	return "Uninitialized"
}

// Option configures a Controller.
type Option func(c *Controller)

// WithCatalog sets the catalog where strategies are discovered. Default is DefaultCatalog().
func WithCatalog(catalog Catalog) Option {
	return func(c *Controller) {
		c.catalog = catalog
	}
}

// WithNamespace sets the namespace where strategies are discovered. Default is DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(c *Controller) {
		c.namespace = namespace
	}
}

// Controller selects strategies for optimizations. It is safe for concurrent use.
type Controller struct {
	catalog   Catalog
	namespace string

	mu         sync.Mutex
	state      State
	scans      int
	strategies map[string][]discovered
}

// New creates a Controller. Discovery only happens on first use.
func New(opts ...Option) *Controller {
	c := &Controller{
		catalog:   DefaultCatalog(),
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultControllerOnce sync.Once
	defaultController     *Controller
)

// Default returns a process-wide Controller using the default catalog and namespace.
func Default() *Controller {
	defaultControllerOnce.Do(func() { defaultController = New() })
	return defaultController
}

// initialize runs discovery if not done yet.
func (c *Controller) initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Initialized {
		return
	}
	c.strategies = make(map[string][]discovered)
	for _, d := range discover(c.catalog, c.namespace) {
		name := d.strategy.Name()
		c.strategies[name] = append(c.strategies[name], d)
	}
	c.scans++
	c.state = Initialized
	klog.V(1).Infof("heuristics.Controller: discovered strategies for %d optimizations in %q", len(c.strategies), c.namespace)
}

// Get returns the strategies registered for the optimization name, in discovery order.
// The first call triggers discovery.
//
// The returned slice is a copy, it can be changed by the caller.
func (c *Controller) Get(name string) []Strategy {
	return xslices.Map(c.get(name), discovered.Strategy)
}

func (c *Controller) get(name string) []discovered {
	c.initialize()
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.strategies[name])
}

// Decide returns the decision of the first strategy registered for name whose precondition holds, or false
// if none holds ("no decision").
//
// A strategy that holds but declines to choose still ends the search: the returned Decision has
// HasChoice set to false.
func (c *Controller) Decide(name string, ctx *Context, choices []Choice, shared any, capability DeviceCapability) (Decision, bool) {
	query := &Query{Name: name, Context: ctx, Shared: shared, Capability: capability}
	for _, d := range c.get(name) {
		if !d.strategy.CheckPrecondition(query) {
			continue
		}
		choice, hasChoice := d.strategy.Decide(ctx, choices)
		decision := Decision{Strategy: d.module, Choice: choice, HasChoice: hasChoice}
		klog.V(2).Infof("heuristics: %q decided by %s", name, decision)
		return decision, true
	}
	return Decision{}, false
}

// State returns whether discovery already happened.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scans returns how many times discovery ran: at most 1.
func (c *Controller) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}
