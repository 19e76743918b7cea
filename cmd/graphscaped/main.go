package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalsfoundry/graphscape/core"
	"github.com/signalsfoundry/graphscape/graph"
	"github.com/signalsfoundry/graphscape/internal/httpapi"
	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/internal/observability"
)

// graphscaped serves the layout pipeline over HTTP: it loads a graph
// document, keeps the engine running, and exposes snapshots, clusters,
// queries, and Prometheus metrics. With -watch the graph file is re-ingested
// whenever it changes on disk.
func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	graphPath := flag.String("graph", "", "path to a graph JSON document loaded at startup")
	watch := flag.Bool("watch", false, "reload the graph document when the file changes")
	minStrength := flag.Float64("min-strength", core.DefaultMinStrength, "working-set edge strength floor")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	analyzerMetrics, err := observability.NewAnalyzerCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise analyzer metrics", logging.Err(err))
		os.Exit(1)
	}

	store := graph.NewStore(log)
	eng := core.NewEngine(store, log,
		core.WithMinStrength(*minStrength),
		core.WithEngineMetrics(collector),
		core.WithLayoutMetrics(collector),
		core.WithAnalyzerMetrics(analyzerMetrics),
	)
	eng.Start()
	defer eng.Stop()

	if *graphPath != "" {
		loadGraphFile(ctx, log, store, *graphPath)
	}

	var watcher *fsnotify.Watcher
	if *watch && *graphPath != "" {
		watcher, err = watchGraphFile(ctx, log, store, *graphPath)
		if err != nil {
			log.Error(ctx, "failed to watch graph document", logging.String("path", *graphPath), logging.Err(err))
			os.Exit(1)
		}
		defer watcher.Close()
	}

	api := httpapi.NewServer(store, eng, log,
		httpapi.WithMetricsHandler(collector.Handler()),
		httpapi.WithMiddleware(collector.Middleware),
	)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info(ctx, "starting graphscape server", logging.String("addr", *addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server exited", logging.Err(err))
			os.Exit(1)
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down graphscape server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadGraphFile(ctx context.Context, log logging.Logger, store *graph.Store, path string) {
	if log == nil {
		log = logging.Noop()
	}
	f, err := os.Open(path)
	if err != nil {
		log.Warn(ctx, "skipping graph load", logging.String("path", path), logging.Err(err))
		return
	}
	defer f.Close()

	scenario, err := graph.LoadGraphScenario(store, f)
	if err != nil {
		log.Warn(ctx, "failed to load graph document", logging.String("path", path), logging.Err(err))
		return
	}
	log.Info(ctx, "graph loaded",
		logging.String("path", path),
		logging.Int("nodes", scenario.Stats.Nodes),
		logging.Int("edges", scenario.Stats.Edges),
		logging.Int("dangling_edges", scenario.Stats.DanglingEdges))
}

// watchGraphFile re-ingests the document on every write. Watching the parent
// directory survives the rename-and-replace pattern editors and atomic
// writers use.
func watchGraphFile(ctx context.Context, log logging.Logger, store *graph.Store, path string) (*fsnotify.Watcher, error) {
	if log == nil {
		log = logging.Noop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				// Writers emit bursts of events; reload once they settle.
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					log.Info(ctx, "graph document changed; reloading", logging.String("path", abs))
					loadGraphFile(ctx, log, store, abs)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn(ctx, "graph watcher error", logging.Err(err))
			}
		}
	}()

	log.Info(ctx, "watching graph document", logging.String("path", abs))
	return watcher, nil
}
