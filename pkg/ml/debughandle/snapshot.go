// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package debughandle

import (
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/debughandles/pkg/support/sets"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Snapshot is a serializable listing of all the handles of a graph, so they can be stored and compared
// with later versions of the graph (see DiffSnapshots).
type Snapshot struct {
	Graph string `yaml:"graph"`

	// Run is the RunID of the assignment pass, empty if the graph has none.
	Run string `yaml:"run,omitempty"`

	Entries []Entry `yaml:"entries"`
}

// Entry of a Snapshot: one handle attached to a node.
type Entry struct {
	Node   graph.NodeId `yaml:"node"`
	Op     graph.OpType `yaml:"op"`
	Alias  string       `yaml:"alias,omitempty"`
	Attach AttachPoint  `yaml:"attach"`
	Handle Handle       `yaml:"handle"`
}

var (
	_ yaml.Marshaler   = AttachPoint(0)
	_ yaml.Unmarshaler = (*AttachPoint)(nil)
)

// MarshalYAML implements yaml.Marshaler, using the same format as AttachPoint.String.
func (ap AttachPoint) MarshalYAML() (any, error) {
	return ap.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (ap *AttachPoint) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	if str == "output" {
		*ap = Output
		return nil
	}
	idStr, found := strings.CutPrefix(str, "input#")
	if !found {
		return errors.Errorf("line %d: invalid attach point %q, expected \"output\" or \"input#<node_id>\"", value.Line, str)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil || id < 0 {
		return errors.Errorf("line %d: invalid producer node id in attach point %q", value.Line, str)
	}
	*ap = AttachPoint(id)
	return nil
}

// TakeSnapshot lists all the handles in g, ordered by node (declaration order) and attach point (inputs
// by producer id, then the output).
func TakeSnapshot(g *graph.Graph) *Snapshot {
	s := &Snapshot{Graph: g.Name()}
	if runID, ok := GetRunID(g); ok {
		s.Run = runID.String()
	}
	for _, n := range g.Nodes() {
		m, ok := Get(n)
		if !ok {
			continue
		}
		for _, ap := range sortedAttachPoints(m) {
			s.Entries = append(s.Entries, Entry{
				Node:   n.Id(),
				Op:     n.Type(),
				Alias:  n.GetAlias(),
				Attach: ap,
				Handle: m[ap],
			})
		}
	}
	return s
}

// RunID parses the snapshot's Run. It returns false if it is empty or invalid.
func (s *Snapshot) RunID() (RunID, bool) {
	if s.Run == "" {
		return RunID{}, false
	}
	runID, err := uuid.Parse(s.Run)
	return runID, err == nil
}

// Handles returns the set of handles in the snapshot.
func (s *Snapshot) Handles() sets.Set[Handle] {
	all := sets.Make[Handle](len(s.Entries))
	for _, e := range s.Entries {
		all.Insert(e.Handle)
	}
	return all
}

// Find returns the entry with the given handle.
func (s *Snapshot) Find(h Handle) (Entry, bool) {
	idx := slices.IndexFunc(s.Entries, func(e Entry) bool { return e.Handle == h })
	if idx < 0 {
		return Entry{}, false
	}
	return s.Entries[idx], true
}

// WriteYAML writes the snapshot to w.
func (s *Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return errors.Wrapf(err, "failed to encode snapshot of Graph %q", s.Graph)
	}
	return errors.WithStack(enc.Close())
}

// ReadSnapshot reads a snapshot written with Snapshot.WriteYAML.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	s := &Snapshot{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, errors.Wrap(err, "failed to decode debug handles snapshot")
	}
	if s.Run != "" {
		if _, ok := s.RunID(); !ok {
			return nil, errors.Errorf("snapshot of Graph %q has an invalid run id %q", s.Graph, s.Run)
		}
	}
	return s, nil
}

// DiffSnapshots compares the handles of two snapshots, like Diff does for graphs.
func DiffSnapshots(ref, got *Snapshot) GraphDiff {
	if ref.Run != "" && got.Run != "" && ref.Run != got.Run {
		return GraphDiff{RunMismatch: true}
	}
	return diffHandles(ref.Handles(), got.Handles())
}
