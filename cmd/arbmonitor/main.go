package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/dexarb/arbitrage"
	"github.com/defistate/dexarb/chains"
	"github.com/defistate/dexarb/chains/osmosis/router"
	"github.com/defistate/dexarb/chains/shade/pathfinder"
	"github.com/defistate/dexarb/cmd/arbmonitor/config"
	"github.com/defistate/dexarb/engine"
	tokenindexer "github.com/defistate/dexarb/protocols/tokenregistry/indexer"
	"github.com/defistate/dexarb/store"
	"github.com/defistate/dexarb/streams/jsonrpc/client"
	"github.com/defistate/dexarb/streams/jsonrpc/server"
	redispub "github.com/defistate/dexarb/streams/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultClientUpdateBufferSize = 100
	shutdownTimeout               = 5 * time.Second
)

func main() {
	root := &cobra.Command{
		Use:          "arbmonitor",
		Short:        "Cross exchange pool tracker and arbitrage monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "path to the configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Track both exchanges and stream arbitrage paths",
		RunE:  runMonitor,
	})
	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		RunE:  runCheck,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d pairs, %d tokens\n", len(cfg.Pairs), len(cfg.Tokens))
	return nil
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := newMonitor(ctx, cfg, rootLogger, registry)
	if err != nil {
		rootLogger.Error("Failed to initialize monitor", "error", err)
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	m.start(ctx, g)
	g.Go(func() error {
		return serveHTTP(ctx, cfg.MetricsAddr, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), rootLogger.With("component", "metrics"))
	})

	err = g.Wait()
	rootLogger.Info("Monitor stopped", "error", err)
	return err
}

// monitor is the wired pipeline: adapters -> store -> comparator -> sinks.
type monitor struct {
	store      *store.Store
	comparator *arbitrage.Comparator
	streamer   *server.ArbStreamer
	rpcServer  http.Handler
	rpcAddr    string
	publisher  *redispub.Publisher
	bufferSize uint
	logger     *slog.Logger
}

func newMonitor(ctx context.Context, cfg *config.Config, rootLogger *slog.Logger, registry prometheus.Registerer) (*monitor, error) {
	tokens := tokenindexer.New().Index(cfg.Tokens)

	osmosisRouter, err := router.New(router.Config{
		HubToken:             cfg.Osmosis.HubToken,
		IncentivizedPools:    cfg.Osmosis.IncentivizedPools,
		MaxHops:              cfg.Osmosis.MaxHops,
		MaxRoutes:            cfg.Osmosis.MaxRoutes,
		CacheSize:            cfg.Osmosis.CacheSize,
		Logger:               rootLogger.With("component", "osmosis-router"),
		PrometheusRegisterer: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create osmosis router: %w", err)
	}
	shadeHops := cfg.Shade.MaxHops

	st, err := store.New(store.Config{
		Logger:               rootLogger.With("component", "store"),
		PrometheusRegisterer: registry,
		BufferSize:           cfg.Store.BufferSize,
		DebounceInterval:     cfg.Store.Debounce,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	feeds := map[engine.DexName]config.ExchangeConfig{
		engine.DexOsmosis: cfg.Osmosis,
		engine.DexShade:   cfg.Shade,
	}
	for dex, feed := range feeds {
		adapter, err := client.NewClient(ctx, client.Config{
			URL:        feed.URL,
			Namespace:  feed.Namespace,
			Dex:        dex,
			Logger:     rootLogger.With("component", "jsonrpc-client", "dex", dex),
			BufferSize: DefaultClientUpdateBufferSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", dex, err)
		}
		if err := st.Attach(adapter); err != nil {
			return nil, err
		}
	}

	comparator, err := arbitrage.New(arbitrage.Config{
		Pairs:            cfg.Pairs,
		MinProfitPercent: cfg.MinProfitPercent,
		Tokens:           tokens,
		Solvers: map[engine.DexName]arbitrage.SolverFactory{
			engine.DexOsmosis: osmosisRouter.Solver,
			engine.DexShade: func(pools chains.PoolView) chains.Solver {
				return pathfinder.NewGraph(pools, shadeHops)
			},
		},
		Logger:               rootLogger.With("component", "comparator"),
		PrometheusRegisterer: registry,
		BufferSize:           cfg.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create comparator: %w", err)
	}

	m := &monitor{
		store:      st,
		comparator: comparator,
		bufferSize: cfg.BufferSize,
		logger:     rootLogger.With("component", "monitor"),
	}

	if cfg.RPCAddr != "" {
		m.streamer, err = server.NewArbStreamer(rootLogger.With("component", "arb-streamer"))
		if err != nil {
			return nil, err
		}
		rpcServer, err := server.NewServer(m.streamer)
		if err != nil {
			return nil, err
		}
		m.rpcServer = rpcServer.WebsocketHandler([]string{"*"})
		m.rpcAddr = cfg.RPCAddr
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: ping %s: %w", cfg.Redis.Addr, err)
		}
		m.publisher, err = redispub.NewPublisher(redispub.Config{
			Client:    rdb,
			Channel:   cfg.Redis.Channel,
			LatestKey: cfg.Redis.LatestKey,
			TTL:       cfg.Redis.TTL,
			Logger:    rootLogger.With("component", "redis-publisher"),
		})
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *monitor) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return m.store.Run(ctx) })
	g.Go(func() error { return m.comparator.Run(ctx, m.store.Snapshots()) })

	var sinks []chan []arbitrage.ArbPath
	if m.streamer != nil {
		ch := make(chan []arbitrage.ArbPath, m.bufferSize)
		sinks = append(sinks, ch)
		g.Go(func() error { return m.streamer.Run(ctx, ch) })
		g.Go(func() error { return serveHTTP(ctx, m.rpcAddr, m.rpcServer, m.logger) })
	}
	if m.publisher != nil {
		ch := make(chan []arbitrage.ArbPath, m.bufferSize)
		sinks = append(sinks, ch)
		g.Go(func() error { return m.publisher.Run(ctx, ch) })
	}
	g.Go(func() error {
		fanOut(ctx, m.comparator.Arbs(), sinks, m.logger)
		return nil
	})
}

// fanOut copies every path set to each sink and closes the sinks when src
// closes. A full sink misses the set.
func fanOut(ctx context.Context, src <-chan []arbitrage.ArbPath, sinks []chan []arbitrage.ArbPath, logger *slog.Logger) {
	defer func() {
		for _, sink := range sinks {
			close(sink)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case set, ok := <-src:
			if !ok {
				return
			}
			profitable := 0
			for _, p := range set {
				if p.Profitable() {
					profitable++
					logger.Info("Profitable path", "id", p.ID, "amount_in", p.AmountIn, "amount_out", p.AmountOut, "height0", p.Height0, "height1", p.Height1)
				}
			}
			logger.Debug("Evaluated paths", "paths", len(set), "profitable", profitable)
			for i, sink := range sinks {
				select {
				case sink <- set:
				default:
					logger.Warn("Sink buffer full, discarding arbs...", "sink", i)
				}
			}
		}
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
