// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, Map([]int{1, 2, 3}, strconv.Itoa))
	assert.Empty(t, Map([]int(nil), strconv.Itoa))
}

func TestFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	values := Flag(fs, "values", []int{1, 2}, "list of ints", strconv.Atoi)
	assert.Equal(t, []int{1, 2}, *values)
	assert.Equal(t, "1,2", fs.Lookup("values").Value.String())

	require.NoError(t, fs.Parse([]string{"-values=3, 5,,8"}))
	assert.Equal(t, []int{3, 5, 8}, *values)

	require.NoError(t, fs.Set("values", ""))
	assert.Empty(t, *values)

	assert.Error(t, fs.Set("values", "1,x"))
}
