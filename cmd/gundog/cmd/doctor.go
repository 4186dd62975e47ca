package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/manifest"
)

// doctorEpsilon bounds the acceptable deviation of a stored vector's L2
// norm from 1.0 (I1).
const doctorEpsilon = 1e-3

// checkStatus is the outcome of one doctor check.
type checkStatus string

const (
	statusPass checkStatus = "pass"
	statusWarn checkStatus = "warn"
	statusFail checkStatus = "fail"
)

// checkResult is one named invariant check and its outcome.
type checkResult struct {
	Name    string      `json:"name"`
	Status  checkStatus `json:"status"`
	Message string      `json:"message"`
}

// doctorError signals that at least one check failed, without repeating
// the failure detail already printed.
type doctorError struct{}

func (e *doctorError) Error() string { return "doctor checks failed" }

func newDoctorCmd() *cobra.Command {
	var (
		name       string
		root       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify an index's on-disk invariants without mutating it",
		Long: `Checks an index against the invariants a correct ingest must
preserve:

  - vector norm: every stored chunk vector has L2 norm ~= 1 (I1)
  - chunk/doc consistency: every chunk a file's manifest entry claims
    exists in the vector and keyword stores (I2)
  - graph soundness: every similarity-graph edge connects two documents
    still present in the manifest (I3)

doctor only reads the index; it never writes to it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, name, root, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&name, "index", "", "Registered index name")
	cmd.Flags().StringVar(&root, "root", "", "Explicit index root directory (overrides --index)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runDoctor(cmd *cobra.Command, name, root string, jsonOutput bool) error {
	reg, err := openRegistry()
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	indexRoot, err := resolveIndexRoot(reg, name, root, ".")
	if err != nil {
		return err
	}

	ix, err := openIndexAt(indexRoot)
	if err != nil {
		return fmt.Errorf("open index at %s: %w", indexRoot, err)
	}
	defer ix.Close()

	m := ix.Handle()
	results := []checkResult{
		checkVectorNorms(m, ix),
		checkChunkConsistency(m, ix),
		checkGraphSoundness(m, ix),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printDoctorResults(cmd, results)
	}

	for _, r := range results {
		if r.Status == statusFail {
			return &doctorError{}
		}
	}
	return nil
}

func printDoctorResults(cmd *cobra.Command, results []checkResult) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		mark := "ok"
		switch r.Status {
		case statusWarn:
			mark = "warn"
		case statusFail:
			mark = "FAIL"
		}
		fmt.Fprintf(out, "[%-4s] %-20s %s\n", mark, r.Name, r.Message)
	}
}

// checkVectorNorms implements I1: every chunk vector's L2 norm must be
// within doctorEpsilon of 1.0.
func checkVectorNorms(m *manifest.Manifest, ix *index.Index) checkResult {
	checked, bad := 0, 0
	for _, entry := range m.Files {
		for i := 0; i < entry.ChunkCount; i++ {
			id := manifest.ChunkID(entry.DocID, i)
			vec, ok := ix.Vector.Get(id)
			if !ok {
				continue // reported by checkChunkConsistency
			}
			checked++
			if !normWithinEpsilon(vec) {
				bad++
			}
		}
	}
	if bad > 0 {
		return checkResult{Name: "vector-norm", Status: statusFail,
			Message: fmt.Sprintf("%d/%d stored vectors deviate from unit norm by more than %.4f", bad, checked, doctorEpsilon)}
	}
	return checkResult{Name: "vector-norm", Status: statusPass,
		Message: fmt.Sprintf("%d vectors within tolerance", checked)}
}

func normWithinEpsilon(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	return math.Abs(norm-1.0) <= doctorEpsilon
}

// checkChunkConsistency implements I2: every chunk a manifest file entry
// claims must have a live vector-store entry (the keyword store is
// checked in aggregate via its document count, since it exposes no
// per-id lookup).
func checkChunkConsistency(m *manifest.Manifest, ix *index.Index) checkResult {
	missing := 0
	expected := 0
	for _, entry := range m.Files {
		for i := 0; i < entry.ChunkCount; i++ {
			expected++
			id := manifest.ChunkID(entry.DocID, i)
			if _, ok := ix.Vector.Get(id); !ok {
				missing++
			}
		}
	}
	if missing > 0 {
		return checkResult{Name: "chunk-consistency", Status: statusFail,
			Message: fmt.Sprintf("%d/%d chunk ids referenced by the manifest have no stored vector", missing, expected)}
	}
	kwCount, err := ix.Keyword.Count(context.Background())
	if err != nil {
		return checkResult{Name: "chunk-consistency", Status: statusFail,
			Message: fmt.Sprintf("cannot count keyword store documents: %v", err)}
	}
	if kwCount < expected {
		return checkResult{Name: "chunk-consistency", Status: statusFail,
			Message: fmt.Sprintf("keyword store holds %d documents, fewer than the %d chunk ids referenced by the manifest", kwCount, expected)}
	}
	return checkResult{Name: "chunk-consistency", Status: statusPass,
		Message: fmt.Sprintf("%d chunk ids all resolve", expected)}
}

// checkGraphSoundness implements I3: every stored graph edge must
// connect two document ids still present in the manifest.
func checkGraphSoundness(m *manifest.Manifest, ix *index.Index) checkResult {
	valid := make(map[string]struct{}, len(m.Files))
	for _, entry := range m.Files {
		valid[entry.DocID] = struct{}{}
	}

	edges := ix.Graph.AllEdges()
	stale := 0
	for _, e := range edges {
		_, aok := valid[e.A]
		_, bok := valid[e.B]
		if !aok || !bok {
			stale++
		}
	}
	if stale > 0 {
		return checkResult{Name: "graph-soundness", Status: statusFail,
			Message: fmt.Sprintf("%d/%d graph edges reference a document no longer in the manifest", stale, len(edges))}
	}
	return checkResult{Name: "graph-soundness", Status: statusPass,
		Message: fmt.Sprintf("%d graph edges all resolve", len(edges))}
}
