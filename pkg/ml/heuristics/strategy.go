// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package heuristics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Choice is one of the alternatives an optimization can take, e.g. "pad" or "no_pad".
type Choice string

// DeviceCapability is the compute capability (major.minor version) of the accelerator the decision is for.
type DeviceCapability struct {
	Major, Minor int
}

// ParseCapability parses a capability in the "<major>.<minor>" format, e.g. "8.0".
func ParseCapability(s string) (DeviceCapability, error) {
	majorStr, minorStr, found := strings.Cut(strings.TrimSpace(s), ".")
	if !found {
		return DeviceCapability{}, errors.Errorf("invalid device capability %q, expected format \"<major>.<minor>\"", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return DeviceCapability{}, errors.Wrapf(err, "invalid major version in device capability %q", s)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return DeviceCapability{}, errors.Wrapf(err, "invalid minor version in device capability %q", s)
	}
	return DeviceCapability{Major: major, Minor: minor}, nil
}

// String implements fmt.Stringer.
func (c DeviceCapability) String() string {
	return fmt.Sprintf("%d.%d", c.Major, c.Minor)
}

// Query holds everything a Strategy precondition can check.
type Query struct {
	// Name of the optimization being decided, e.g. "pad_mm".
	Name string

	Context *Context

	// Shared is opaque state shared among the strategies of an optimizer (e.g. shared memory available).
	Shared any

	Capability DeviceCapability
}

// Strategy is a pluggable decision unit for one optimization.
type Strategy interface {
	// Name of the optimization the strategy decides on.
	Name() string

	// CheckPrecondition returns whether the strategy applies to the query.
	CheckPrecondition(q *Query) bool

	// Decide returns the selected choice, or false if the strategy can't make a choice (e.g. it is not
	// confident enough).
	Decide(ctx *Context, choices []Choice) (Choice, bool)
}

// Decision taken by a Controller.
type Decision struct {
	// Strategy is the name of the module of the strategy that was selected.
	Strategy string

	// Choice is only valid if HasChoice is set.
	Choice Choice

	// HasChoice is false if the selected strategy declined to choose.
	HasChoice bool
}

// String implements fmt.Stringer.
func (d Decision) String() string {
	if !d.HasChoice {
		return fmt.Sprintf("%s: <no choice>", d.Strategy)
	}
	return fmt.Sprintf("%s: %s", d.Strategy, d.Choice)
}
