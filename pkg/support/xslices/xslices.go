// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"flag"
	"fmt"
	"strings"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Flag creates a flag for []T with the given name, description and default value, in the given flag.FlagSet
// (use flag.CommandLine for the default one).
//
// The flag value is a comma-separated list, and parserFn parses each individual (space trimmed) T value.
// Empty elements are skipped.
func Flag[T any](fs *flag.FlagSet, name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &sliceFlag[T]{
		parsedSlice: defaultValue,
		parserFn:    parserFn,
	}
	fs.Var(f, name, usage)
	return &f.parsedSlice
}

// sliceFlag implements flag.Value for a slice of a generic type.
type sliceFlag[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

// String implements flag.Value.
func (f *sliceFlag[T]) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(Map(f.parsedSlice, func(e T) string { return fmt.Sprint(e) }), ",")
}

// Set implements flag.Value.
func (f *sliceFlag[T]) Set(listStr string) error {
	f.parsedSlice = make([]T, 0)
	for _, part := range strings.Split(listStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := f.parserFn(part)
		if err != nil {
			return err
		}
		f.parsedSlice = append(f.parsedSlice, value)
	}
	return nil
}
