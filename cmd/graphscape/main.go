package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/signalsfoundry/graphscape/core"
	"github.com/signalsfoundry/graphscape/graph"
	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/model"
)

// graphscape runs one layout pass over a graph document and writes the
// resulting positions as JSON. It is the batch counterpart of graphscaped:
// same pipeline, no server, exits when the layout settles.
func main() {
	graphPath := flag.String("graph", "", "path to the graph JSON document (required)")
	outPath := flag.String("out", "", "output path for the layout JSON (default stdout)")
	minStrength := flag.Float64("min-strength", core.DefaultMinStrength, "working-set edge strength floor")
	clusterThreshold := flag.Float64("cluster-threshold", 0, "strong-edge threshold for clustering (0 uses the default)")
	maxIterations := flag.Int("max-iterations", 0, "iteration cap per layout pass (0 uses the default)")
	budget := flag.Duration("budget", 0, "wall-clock budget per layout pass (0 uses the default)")
	pretty := flag.Bool("pretty", false, "indent the output JSON")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if *graphPath == "" {
		fmt.Fprintln(os.Stderr, "usage: graphscape -graph <file.json> [-out <file.json>]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	store := graph.NewStore(log)

	opts := []core.EngineOption{
		core.WithMinStrength(*minStrength),
		core.WithLayoutOptions(core.LayoutOptions{
			MaxIterations:    *maxIterations,
			WallBudget:       *budget,
			DebounceInterval: time.Millisecond,
		}),
	}
	if *clusterThreshold > 0 {
		opts = append(opts, core.WithClusterThreshold(*clusterThreshold))
	}
	eng := core.NewEngine(store, log, opts...)

	snaps := make(chan *model.LayoutSnapshot, 64)
	eng.OnSnapshot(func(s *model.LayoutSnapshot) {
		select {
		case snaps <- s:
		default:
		}
	})
	eng.Start()
	defer eng.Stop()

	f, err := os.Open(*graphPath)
	if err != nil {
		log.Error(ctx, "failed to open graph document", logging.String("path", *graphPath), logging.Err(err))
		os.Exit(1)
	}
	scenario, err := graph.LoadGraphScenario(store, f)
	f.Close()
	if err != nil {
		log.Error(ctx, "failed to load graph document", logging.String("path", *graphPath), logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "graph loaded",
		logging.Int("nodes", scenario.Stats.Nodes),
		logging.Int("edges", scenario.Stats.Edges),
		logging.Int("dangling_edges", scenario.Stats.DanglingEdges))

	snap := awaitFinalSnapshot(eng, store.Version(), snaps)
	if snap == nil {
		log.Error(ctx, "layout produced no snapshot")
		os.Exit(1)
	}
	if !snap.Converged {
		log.Warn(ctx, "layout did not converge within budget",
			logging.Int("iterations", snap.Iterations))
	}

	if err := writeLayout(*outPath, snap, eng.Clusters(), *pretty); err != nil {
		log.Error(ctx, "failed to write layout", logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "layout written",
		logging.Int("nodes", len(snap.Positions)),
		logging.Int("iterations", snap.Iterations),
		logging.Any("converged", snap.Converged))
}

// awaitFinalSnapshot waits for the terminal snapshot of the given graph
// version: the one published when the pass converges, hits its iteration
// cap, or exhausts its wall budget. Intermediate snapshots of large graphs
// are skipped.
func awaitFinalSnapshot(eng *core.Engine, version uint64, snaps <-chan *model.LayoutSnapshot) *model.LayoutSnapshot {
	deadline := time.After(2 * time.Minute)
	var last *model.LayoutSnapshot
	for {
		select {
		case s := <-snaps:
			if s.GraphVersion != version {
				continue
			}
			last = s
			if s.Converged {
				return s
			}
		case <-time.After(50 * time.Millisecond):
			// A capped pass publishes its last snapshot just before the
			// state flips out of computing.
			if last != nil && eng.LayoutState() != core.LayoutComputing {
				return last
			}
		case <-deadline:
			return last
		}
	}
}

type layoutDocument struct {
	Version    uint64                    `json:"version"`
	Converged  bool                      `json:"converged"`
	Iterations int                       `json:"iterations"`
	Positions  map[string]layoutPosition `json:"positions"`
	Clusters   []layoutCluster           `json:"clusters,omitempty"`
}

type layoutPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type layoutCluster struct {
	ID       int            `json:"id"`
	Label    string         `json:"label"`
	Members  []string       `json:"members"`
	Centroid layoutPosition `json:"centroid"`
	Radius   float64        `json:"radius"`
}

func writeLayout(path string, snap *model.LayoutSnapshot, clusters []model.Cluster, pretty bool) error {
	doc := layoutDocument{
		Version:    snap.Version,
		Converged:  snap.Converged,
		Iterations: snap.Iterations,
		Positions:  make(map[string]layoutPosition, len(snap.Positions)),
	}
	for id, p := range snap.Positions {
		doc.Positions[id] = layoutPosition{X: p.X, Y: p.Y, Z: p.Z}
	}
	for _, c := range clusters {
		doc.Clusters = append(doc.Clusters, layoutCluster{
			ID:       c.ID,
			Label:    c.Label,
			Members:  c.Members,
			Centroid: layoutPosition{X: c.Centroid.X, Y: c.Centroid.Y, Z: c.Centroid.Z},
			Radius:   c.Radius,
		})
	}

	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(doc)
}
