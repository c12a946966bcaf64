// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/debughandles/pkg/core/graph/graphtest"
	"github.com/gomlx/debughandles/pkg/ml/debughandle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlesList(t *testing.T) {
	assert.Equal(t, "-", handlesList(nil))
	assert.Equal(t, "1,5,7", handlesList([]debughandle.Handle{1, 5, 7}))
}

func TestReport(t *testing.T) {
	setColors(false)
	snapshotPath := filepath.Join(t.TempDir(), "handles.yaml")
	*flagGraph = true
	*flagOverwrite = true
	defer func() { *flagGraph, *flagOverwrite = false, false }()
	for _, model := range []string{"conv", "nobias", "chain"} {
		*flagModel = model
		*flagYAML = snapshotPath
		*flagRef = ""
		report()
		require.FileExists(t, snapshotPath)

		// Comparing against the snapshot of a previous run reports a run mismatch, but it doesn't fail.
		*flagYAML = ""
		*flagRef = snapshotPath
		report()
	}
	f, err := os.Open(snapshotPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	snap, err := debughandle.ReadSnapshot(f)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Entries)
}

func TestDecide(t *testing.T) {
	setColors(false)
	*flagHeuristic = "pad_mm"
	*flagM, *flagK, *flagN = 4096, 4095, 1023
	*flagIntensity = 100
	decide()
	*flagHeuristic = ""
}

func TestWriteSnapshotOverwrite(t *testing.T) {
	g, _, _ := graphtest.TwoChainedOps()
	_, err := debughandle.Assign(g)
	require.NoError(t, err)
	snap := debughandle.TakeSnapshot(g)

	path := filepath.Join(t.TempDir(), "handles.yaml")
	require.NoError(t, writeSnapshot(snap, path, false))
	err = writeSnapshot(snap, path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, writeSnapshot(snap, path, true))
}
