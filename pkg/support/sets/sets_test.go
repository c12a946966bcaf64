// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[int](10)
	assert.Len(t, s, 0)

	// Check inserting and recovery.
	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7)
	assert.Len(t, s2, 2)
	assert.True(t, s2.Has(5))
	assert.True(t, s2.Has(7))
	assert.False(t, s2.Has(3))

	s3 := s.Sub(s2)
	assert.Len(t, s3, 1)
	assert.True(t, s3.Has(3))

	delete(s, 7)
	assert.Len(t, s, 1)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(7))
	assert.Equal(t, s, s3)
}

func TestSetOps(t *testing.T) {
	a := MakeWith(1, 2, 3)
	b := MakeWith(3, 4)
	assert.Equal(t, []int{3}, Sorted(a.Intersect(b)))
	assert.Equal(t, []int{3}, Sorted(b.Intersect(a)))
	assert.Len(t, a, 3, "Intersect must not change the receiver")

	var empty Set[int]
	assert.Empty(t, Sorted(empty))
	assert.Empty(t, Sorted(a.Intersect(empty)))
	assert.Equal(t, []int{1, 2}, Sorted(a.Sub(b)))
}
