// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package debughandle

import (
	"fmt"
	"slices"
	"testing"

	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/debughandles/pkg/core/graph/graphtest"
	"github.com/gomlx/debughandles/pkg/ml/quantize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign(t *testing.T) {
	t.Run("TwoChainedOps", func(t *testing.T) {
		g, op1, op2 := graphtest.TwoChainedOps()
		runID, err := Assign(g)
		require.NoError(t, err)
		gotRunID, found := GetRunID(g)
		require.True(t, found)
		assert.Equal(t, runID, gotRunID)

		entries, distinct := Count(g)
		assert.Equal(t, 4, entries)
		assert.Equal(t, 4, distinct)
		require.NoError(t, Validate(g))

		x := op1.Arg(0).Node()
		m, found := Get(op1)
		require.True(t, found)
		assert.Equal(t, Map{Input(x): 0, Output: 1}, m)
		m, found = Get(op2)
		require.True(t, found)
		assert.Equal(t, Map{Input(op1): 2, Output: 3}, m)
		fmt.Printf("op2 handles: %s\n", m)

		// Leaf operations are not annotated.
		_, found = Get(x)
		assert.False(t, found)
	})

	t.Run("Conv2DThenConv1D", func(t *testing.T) {
		g, _ := graphtest.Conv2DThenConv1D()
		_, err := Assign(g)
		require.NoError(t, err)
		// conv2d: 3 inputs + output; reshape: 1 input + output; conv1d: 3 inputs + output.
		entries, distinct := Count(g)
		assert.Equal(t, 10, entries)
		assert.Equal(t, 10, distinct)
		require.NoError(t, Validate(g))
		assert.Equal(t, []Handle{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sortedHandles(g))
	})

	t.Run("SharedProducer", func(t *testing.T) {
		g := graph.NewGraph("square")
		x := graph.Parameter(g, "x", dtypes.Float32)
		sq := graph.Mul(x, x)
		_, err := Assign(g)
		require.NoError(t, err)
		m, _ := Get(sq)
		assert.Len(t, m, 2)
		h, found := Lookup(sq, Input(x))
		assert.True(t, found)
		assert.Equal(t, Handle(0), h)
	})
}

func sortedHandles(g *graph.Graph) []Handle {
	var handles []Handle
	for _, n := range g.Nodes() {
		if m, ok := Get(n); ok {
			handles = append(handles, m.Handles()...)
		}
	}
	slices.Sort(handles)
	return handles
}

func TestValidate(t *testing.T) {
	g, op1, op2 := graphtest.TwoChainedOps()
	_, err := Assign(g)
	require.NoError(t, err)

	// Force a duplicate handle.
	m, _ := Get(op2)
	m[Output], _ = Lookup(op1, Output)
	entries, distinct := Count(g)
	assert.Equal(t, 4, entries)
	assert.Equal(t, 3, distinct)
	err = Validate(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUniquenessViolation))
	fmt.Printf("Expected error: %v\n", err)
}

func TestValidateTraced(t *testing.T) {
	g := graph.NewGraph("traced").SetTraced(true)
	x := graph.Parameter(g, "x", dtypes.Float32)
	op1 := graph.Relu(x)
	op2 := graph.Relu(op1)
	_, err := Assign(g)
	require.NoError(t, err)
	require.NoError(t, Validate(g))

	m, _ := Get(op2)
	m[Output], _ = Lookup(op1, Output)
	err = Validate(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUniquenessViolation))
	msg := fmt.Sprintf("%v", err)
	assert.Contains(t, msg, fmt.Sprintf("node #%d created at", op1.Id()))
	assert.Contains(t, msg, fmt.Sprintf("node #%d created at", op2.Id()))
	assert.Contains(t, msg, "TestValidateTraced")
}

func TestAssignPolicies(t *testing.T) {
	g, _, op2 := graphtest.TwoChainedOps()
	runID, err := Assign(g)
	require.NoError(t, err)
	before := TakeSnapshot(g)

	// Preserve (default) on an unchanged graph is a no-op.
	runID2, err := Assign(g, WithPolicy(Preserve))
	require.NoError(t, err)
	assert.Equal(t, runID, runID2)
	assert.Equal(t, before, TakeSnapshot(g))

	// New nodes get handles above the existing ones.
	op3 := graph.Relu(op2)
	_, err = Assign(g)
	require.NoError(t, err)
	m, _ := Get(op3)
	assert.Equal(t, Map{Input(op2): 4, Output: 5}, m)
	diff := DiffSnapshots(before, TakeSnapshot(g))
	assert.True(t, diff.IsLossless())
	assert.Equal(t, []Handle{4, 5}, diff.Added)

	// Reassign renumbers everything under a new run.
	m[Output] = 100
	runID3, err := Assign(g, WithPolicy(Reassign))
	require.NoError(t, err)
	assert.NotEqual(t, runID, runID3)
	assert.Equal(t, []Handle{0, 1, 2, 3, 4, 5}, sortedHandles(g))
	require.NoError(t, Validate(g))
	m, _ = Get(op3)
	assert.Equal(t, Handle(5), m[Output])

	_, err = Assign(g, WithPolicy(Policy(7)))
	require.Error(t, err)
}

func TestAssignGraphs(t *testing.T) {
	graphs := make([]*graph.Graph, 5)
	for ii := range graphs {
		graphs[ii], _ = graphtest.Conv2DThenConv1D()
	}
	for _, parallelism := range []int{0, 2, -1} {
		runIDs, err := AssignGraphs(graphs, WithPolicy(Reassign), WithParallelism(parallelism))
		require.NoError(t, err)
		require.Len(t, runIDs, len(graphs))
		for ii, g := range graphs {
			require.NoError(t, Validate(g))
			// Each graph has its own counter.
			assert.Equal(t, []Handle{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sortedHandles(g))
			for jj := range ii {
				assert.NotEqual(t, runIDs[jj], runIDs[ii])
			}
		}
	}
}

func TestAssignAfterRemove(t *testing.T) {
	g, op1, op2 := graphtest.TwoChainedOps()
	runID, err := Assign(g)
	require.NoError(t, err)
	before := TakeSnapshot(g)
	run, found := GetRun(g)
	require.True(t, found)
	assert.Equal(t, Handle(4), run.Next())

	// The handles of the removed op2 are not given to op3.
	g.Remove(op2)
	op3 := graph.Mul(op1, op1)
	runID2, err := Assign(g)
	require.NoError(t, err)
	assert.Equal(t, runID, runID2)
	m, _ := Get(op3)
	assert.Equal(t, Map{Input(op1): 4, Output: 5}, m)
	assert.Equal(t, Handle(6), run.Next())

	diff := DiffSnapshots(before, TakeSnapshot(g))
	assert.False(t, diff.IsLossless())
	assert.Equal(t, []Handle{0, 1}, diff.Preserved)
	assert.Equal(t, []Handle{2, 3}, diff.Lost)
	assert.Equal(t, []Handle{4, 5}, diff.Added)
}

func TestAssignAfterConvert(t *testing.T) {
	g, _ := graphtest.Conv2DThenConv1D()
	_, err := Assign(g)
	require.NoError(t, err)
	_, err = quantize.Prepare(g, quantize.SymmetricConfig(false))
	require.NoError(t, err)
	_, err = Assign(g) // Annotates the observers: handles 10 to 21.
	require.NoError(t, err)
	prepared := TakeSnapshot(g)

	_, err = quantize.Convert(g)
	require.NoError(t, err)
	_, err = Assign(g)
	require.NoError(t, err)
	require.NoError(t, Validate(g))

	var observerHandles []Handle
	for h := Handle(10); h < 22; h++ {
		observerHandles = append(observerHandles, h)
	}
	diff := DiffSnapshots(prepared, TakeSnapshot(g))
	assert.Equal(t, observerHandles, diff.Lost, diff.String())
	assert.Len(t, diff.Preserved, 10)
	require.NotEmpty(t, diff.Added)
	assert.Equal(t, Handle(22), diff.Added[0])
}

func TestAssignDeepCopies(t *testing.T) {
	g, _, op2 := graphtest.TwoChainedOps()
	runID, err := Assign(g)
	require.NoError(t, err)

	// Copies share the Run: handles assigned separately on each copy don't collide.
	c1, c2 := g.DeepCopy(), g.DeepCopy()
	op3c1 := graph.Relu(c1.NodeById(op2.Id()))
	op3c2 := graph.Relu(c2.NodeById(op2.Id()))
	_, err = AssignGraphs([]*graph.Graph{c1, c2})
	require.NoError(t, err)
	for _, c := range []*graph.Graph{c1, c2} {
		copiedRunID, _ := GetRunID(c)
		assert.Equal(t, runID, copiedRunID)
	}
	m1, _ := Get(op3c1)
	m2, _ := Get(op3c2)
	assert.ElementsMatch(t, []Handle{4, 5, 6, 7}, append(m1.Handles(), m2.Handles()...))

	diff := Diff(c1, c2)
	assert.Equal(t, []Handle{0, 1, 2, 3}, diff.Preserved)
	assert.Equal(t, m1.Handles(), diff.Lost)
	assert.Equal(t, m2.Handles(), diff.Added)

	// Reassign starts a new run on the copy only.
	_, err = Assign(c1, WithPolicy(Reassign))
	require.NoError(t, err)
	assert.True(t, Diff(g, c1).RunMismatch)
	assert.False(t, Diff(g, c2).RunMismatch)
}

func TestAssignGraphsDuplicates(t *testing.T) {
	g, _ := graphtest.Conv2DThenConv1D()
	runIDs, err := AssignGraphs([]*graph.Graph{g, g, g}, WithParallelism(-1))
	require.NoError(t, err)
	assert.Equal(t, runIDs[0], runIDs[1])
	assert.Equal(t, runIDs[0], runIDs[2])
	require.NoError(t, Validate(g))
	assert.Equal(t, []Handle{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sortedHandles(g))
}
