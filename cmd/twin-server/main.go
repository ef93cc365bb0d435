package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/citypulse/dispatch-twin/core"
	"github.com/citypulse/dispatch-twin/internal/config"
	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/internal/nbi"
	"github.com/citypulse/dispatch-twin/internal/observability"
	sim "github.com/citypulse/dispatch-twin/internal/sim/state"
	"github.com/citypulse/dispatch-twin/kb"
	"github.com/citypulse/dispatch-twin/model"
	"github.com/citypulse/dispatch-twin/timectrl"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

func main() {
	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("error", err.Error()))
		os.Exit(1)
	}

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}

	graph, err := core.LoadGraph(ctx, cfg.GraphPath, log)
	if err != nil {
		log.Error(ctx, "failed to load road graph",
			logging.String("path", cfg.GraphPath),
			logging.String("error", err.Error()))
		os.Exit(1)
	}

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.ResourceAttributes = []attribute.KeyValue{
		attribute.Int("twin.graph.nodes", len(graph.Nodes)),
		attribute.Int("twin.graph.edges", len(graph.Edges)),
		attribute.String("twin.arrival_policy", cfg.ArrivalPolicy.String()),
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	motion := core.DefaultMotionConfig()
	motion.TickSeconds = cfg.TickInterval.Seconds()
	motion.PauseProbability = cfg.PauseProbability
	motion.PauseMinSeconds = cfg.PauseMinSeconds
	motion.PauseMaxSeconds = cfg.PauseMaxSeconds
	motion.ArrivalRadiusM = cfg.ArrivalRadiusM
	motion.ArrivalPolicy = cfg.ArrivalPolicy

	engine := core.NewSimulationEngine(graph, motion,
		core.WithEngineLogger(log),
		core.WithRand(rnd),
		core.WithEngineMetrics(collector),
	)

	fleet := kb.NewKnowledgeBase()
	engine.Spawn(seedFleet(ctx, log, fleet, cfg.FleetCounts), cfg.BaseSpeeds)

	routerCfg := core.DefaultRouterConfig()
	routerCfg.ArrivalRadiusM = cfg.RouteArrivalRadiusM
	routerCfg.MaxRoadDistanceM = cfg.MaxRoadDistanceM
	router := core.NewRouter(graph, routerCfg)

	rankerCfg := core.DefaultRankerConfig()
	rankerCfg.TopNPerCategory = cfg.RankTopN

	state := sim.New(graph, engine, router, fleet, cfg.BaseSpeeds,
		sim.WithLogger(log),
		sim.WithGraphMetrics(collector),
		sim.WithRankerConfig(rankerCfg),
	)

	controller := timectrl.NewTimeController(time.Now(), cfg.TickInterval, timectrl.RealTime)
	controller.AddListener(func(_ time.Time, dt time.Duration) {
		engine.Tick(dt.Seconds())
	})
	loopDone := controller.Start(0)

	server := nbi.NewServer(state, cfg.RoadsGeoJSONPath, log, collector)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	log.Info(ctx, "starting twin server",
		logging.String("addr", cfg.HTTPAddr),
		logging.Int("nodes", len(graph.Nodes)),
		logging.Int("edges", len(graph.Edges)),
	)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server exited", logging.String("error", err.Error()))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down twin server")
	controller.Stop()
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

// seedFleet registers one unit per requested agent and returns them in spawn
// order. Call signs follow the "<CATEGORY>-<n>" dispatcher convention.
func seedFleet(ctx context.Context, log logging.Logger, fleet *kb.KnowledgeBase, counts map[model.FleetCategory]int) []model.Unit {
	var units []model.Unit
	for _, cat := range model.AllCategories() {
		for i := 0; i < counts[cat]; i++ {
			u := model.Unit{
				ID:       uuid.NewString(),
				CallSign: unitCallSign(cat, i+1),
				Category: cat,
			}
			if err := fleet.AddUnit(&u); err != nil {
				log.Warn(ctx, "skipping unit", logging.String("call_sign", u.CallSign), logging.String("error", err.Error()))
				continue
			}
			units = append(units, u)
		}
	}
	log.Info(ctx, "seeded fleet", logging.Int("units", len(units)))
	return units
}

func unitCallSign(cat model.FleetCategory, n int) string {
	return fmt.Sprintf("%s-%d", strings.ToUpper(cat.String()), n)
}
