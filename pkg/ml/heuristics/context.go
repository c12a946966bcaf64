// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package heuristics

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Key of a feature in a Context, with the type T of its value.
//
// Keys are compared by name: two keys with the same name and different types refer to the same slot, and
// reading it with the wrong type returns "not found".
type Key[T any] struct {
	Name string
}

// Features of a matrix multiplication recognized by the learned strategies.
var (
	// M, K and N are the dimensions of the multiplication of a [M, K] matrix by a [K, N] matrix.
	M = Key[int]{"m"}
	K = Key[int]{"k"}
	N = Key[int]{"n"}

	MatDType1 = Key[dtypes.DType]{"mat1_dtype"}
	MatDType2 = Key[dtypes.DType]{"mat2_dtype"}
	OutDType  = Key[dtypes.DType]{"out_dtype"}

	MatIsContiguous = Key[bool]{"mat1_iscontig"}

	ArithmeticIntensity = Key[float64]{"arith_intensity"}
)

// Context holds the features of one decision, keyed by name. The zero value is not usable, use NewContext.
type Context struct {
	values map[string]any
}

// NewContext creates an empty Context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// SetValue sets the value of key in ctx, and returns ctx, to allow cascading calls.
func SetValue[T any](ctx *Context, key Key[T], value T) *Context {
	ctx.values[key.Name] = value
	return ctx
}

// Value returns the value of key in ctx, and whether it was found with the type of the key.
func Value[T any](ctx *Context, key Key[T]) (value T, found bool) {
	value, found = ctx.values[key.Name].(T)
	return
}

// ValueOr returns the value of key in ctx, or defaultValue if not set.
func ValueOr[T any](ctx *Context, key Key[T], defaultValue T) T {
	if value, found := Value(ctx, key); found {
		return value
	}
	return defaultValue
}

// Len returns the number of features set.
func (ctx *Context) Len() int {
	return len(ctx.values)
}

// String implements fmt.Stringer, listing the features sorted by name.
func (ctx *Context) String() string {
	names := slices.Sorted(maps.Keys(ctx.values))
	parts := make([]string, len(names))
	for ii, name := range names {
		parts[ii] = fmt.Sprintf("%s=%v", name, ctx.values[name])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
