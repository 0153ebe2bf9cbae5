package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"transit-reconciler/internal/cache"
	"transit-reconciler/internal/config"
	"transit-reconciler/internal/db"
	"transit-reconciler/internal/messages"
	"transit-reconciler/internal/metrics"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/provider/builder"
	"transit-reconciler/internal/refresh"
	"transit-reconciler/internal/transit"
	"transit-reconciler/internal/wikidata"
)

func main() {
	search := flag.String("search", "", "search stations by name and exit")
	departures := flag.Int64("departures", 0, "print the departure board of this IBNR and exit")
	when := flag.String("when", "", "departure board time (RFC3339), defaults to now")
	tripID := flag.String("trip", "", "fetch and persist this trip and exit")
	lineName := flag.String("line", "", "line name hint for -trip and -refresh-trip")
	refreshTrip := flag.String("refresh-trip", "", "apply real-time data of this trip to its stored stopovers and exit")
	importQID := flag.String("wikidata", "", "import a station from this Wikidata entity and exit")
	dispatch := flag.Int64("refresh", 0, "enqueue a real-time refresh of this stopover id and exit")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	msgs, err := messages.Load(cfg.Locale)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	store := db.NewStore(sqlDB, cfg.DatabaseDriver)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.CacheEnabled)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cs := cache.New(cfg.CacheSize)
	p, err := builder.Build(store, builder.FromConfig(cfg, msgs, cs, wrapProviderMetrics(mcol)))
	if err != nil {
		log.Fatalf("provider error: %v", err)
	}
	log.Printf("provider=%s cache=%t", cfg.DataProvider, cfg.CacheEnabled)

	switch {
	case *search != "":
		exitWith(p.GetStations(ctx, *search, provider.DefaultStationResults))
		return
	case *departures != 0:
		exitWith(departureBoard(ctx, store, p, *departures, *when))
		return
	case *tripID != "":
		exitWith(p.FetchTrip(ctx, *tripID, *lineName))
		return
	case *refreshTrip != "":
		exitWith(refresh.NewService(store, p).RefreshTrip(ctx, *refreshTrip, *lineName))
		return
	case *importQID != "":
		wd := wikidata.New(store, wikidata.Options{
			BaseURL:   cfg.WikidataURL,
			Timeout:   cfg.WikidataTimeout,
			UserAgent: cfg.UserAgent,
			Messages:  msgs,
		})
		exitWith(wd.Import(ctx, *importQID))
		return
	}

	// Initialize NATS refresh queue
	queue, err := refresh.NewQueue(cfg.NATSURL, cfg.RefreshSubject, wrapQueueMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer queue.Close()

	if *dispatch != 0 {
		exitWith(queue.Dispatch(ctx, *dispatch))
		return
	}

	worker := refresh.NewWorker(refresh.NewService(store, p), refresh.WorkerOptions{
		PerMinute:  cfg.RefreshPerMinute,
		MaxRetries: cfg.RefreshMaxRetries,
		Metrics:    wrapWorkerMetrics(mcol),
	})
	if err := worker.Start(ctx, queue.Conn(), queue.Subject(), "reconciler"); err != nil {
		log.Fatalf("refresh worker error: %v", err)
	}

	// Block until context cancelled
	<-ctx.Done()
	worker.Stop()
	log.Println("shutdown complete")
}

func departureBoard(ctx context.Context, store *db.Store, p provider.Provider, ibnr int64, when string) ([]transit.Departure, error) {
	at := time.Now()
	if when != "" {
		t, err := time.Parse(time.RFC3339, when)
		if err != nil {
			return nil, fmt.Errorf("invalid -when: %w", err)
		}
		at = t
	}
	station, err := store.StationByIBNR(ctx, ibnr)
	if errors.Is(err, db.ErrNotFound) {
		found, serr := p.GetStations(ctx, strconv.FormatInt(ibnr, 10), 1)
		if serr != nil {
			return nil, serr
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("station %d: %w", ibnr, provider.ErrNotFound)
		}
		station, err = found[0], nil
	}
	if err != nil {
		return nil, err
	}
	return p.GetDepartures(ctx, provider.DepartureQuery{Station: station, When: at})
}

func exitWith(v any, err error) {
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode error: %v", err)
	}
}
