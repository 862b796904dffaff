// Package report serialises the Entry Database to the external viewer's
// JSON schema: a flat array of records in topological (dependency-closed)
// order, with run numbers normalised so the most recent run reads as 0 and
// earlier runs read as increasingly large positive offsets.
//
// Grounded on the teacher's cmds/ectl/app.Get JSON-output path
// (encoding/json.Marshal straight to a writer) and pkg/impl/database/
// filesystem's vfs-backed persistence, generalised from a single Object
// dump to the ordered, index-linked Entry array the viewer expects.
package report

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/errs"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Trace mirrors entrydb.Trace in the external schema's field names.
type Trace struct {
	Command string  `json:"command"`
	Start   float64 `json:"start"`
	Stop    float64 `json:"stop"`
}

// Record is one line of the profile report: an Entry flattened to the
// bit-exact external shape, with Dependencies resolved to array indices.
type Record struct {
	Name      string  `json:"name"`
	Built     int64   `json:"built"`
	Changed   int64   `json:"changed"`
	Depends   []int   `json:"depends"`
	Execution float64 `json:"execution"`
	Traces    []Trace `json:"traces,omitempty"`
}

// Generate reads every stored Entry from db and lays it out as the
// profile report the external viewer consumes: a topological order over
// the dependency graph (so depends[j] < selfIndex always holds) and run
// counters rebased against run so the current run reads as 0 and older
// runs read as larger, recency-descending offsets.
func Generate(db entrydb.Database, run int64) ([]Record, error) {
	keys, err := db.ListKeys()
	if err != nil {
		return nil, errs.Wrap(errs.DatabaseCorrupt, nil, err)
	}

	type node struct {
		key   key.Key
		entry *entrydb.Entry
	}
	nodes := make(map[key.Key]*node, len(keys))
	order := make([]key.Key, 0, len(keys))
	for _, k := range keys {
		e, err := db.GetEntry(k)
		if err != nil {
			return nil, errs.Wrap(errs.DatabaseCorrupt, nil, err)
		}
		nodes[k] = &node{key: k, entry: e}
		order = append(order, k)
	}
	// Deterministic base order before the topological sort, so the report
	// is stable across runs that don't change the key set.
	sort.Slice(order, func(i, j int) bool { return key.Compare(order[i], order[j]) < 0 })

	index := make(map[key.Key]int, len(order))
	visiting := map[key.Key]bool{}
	visited := map[key.Key]bool{}
	var sorted []key.Key

	var visit func(k key.Key) error
	visit = func(k key.Key) error {
		if visited[k] {
			return nil
		}
		if visiting[k] {
			return errs.New(errs.DatabaseCorrupt, nil, "report: dependency cycle through %s", k.String())
		}
		n := nodes[k]
		if n == nil {
			// A dependency points outside the stored key set (DB
			// compacted between the dependency being recorded and the
			// report being generated); the viewer only needs index
			// linkage within what's actually present, so skip it.
			return nil
		}
		visiting[k] = true
		for _, dep := range n.entry.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[k] = false
		visited[k] = true
		index[k] = len(sorted)
		sorted = append(sorted, k)
		return nil
	}
	for _, k := range order {
		if err := visit(k); err != nil {
			return nil, err
		}
	}

	records := make([]Record, len(sorted))
	for i, k := range sorted {
		n := nodes[k]
		depends := make([]int, 0, len(n.entry.Dependencies))
		for _, dep := range n.entry.Dependencies {
			if j, ok := index[dep]; ok {
				depends = append(depends, j)
			}
		}
		traces := make([]Trace, len(n.entry.Traces))
		for j, t := range n.entry.Traces {
			traces[j] = Trace{Command: t.Command, Start: t.Start, Stop: t.Stop}
		}
		records[i] = Record{
			Name:      n.entry.Name,
			Built:     run - n.entry.BuiltRun,
			Changed:   run - n.entry.ChangedRun,
			Depends:   depends,
			Execution: n.entry.ExecutionTime,
			Traces:    traces,
		}
	}
	return records, nil
}

// Marshal renders records as the viewer's JSON array.
func Marshal(records []Record) ([]byte, error) {
	return json.Marshal(records)
}

// WriteFile generates the report for db at run and writes it to path on
// fs (the real OS filesystem if fs is nil), matching the teacher's
// vfs-backed persistence idiom used throughout pkg/impl/database/filesystem.
func WriteFile(db entrydb.Database, run int64, path string, fs vfs.FileSystem) error {
	if path == "" {
		return nil
	}
	if fs == nil {
		fs = osfs.New()
	}
	records, err := Generate(db, run)
	if err != nil {
		return err
	}
	data, err := Marshal(records)
	if err != nil {
		return errs.Wrap(errs.Internal, nil, fmt.Errorf("report: marshal: %w", err))
	}
	if err := vfs.WriteFile(fs, path, data, 0o644); err != nil {
		return errs.Wrap(errs.Internal, nil, fmt.Errorf("report: write %s: %w", path, err))
	}
	return nil
}
