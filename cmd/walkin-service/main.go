package main

import (
	"context"
	"errors"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qms/walkin-service/internal/config"
	"qms/walkin-service/internal/httpapi"
	"qms/walkin-service/internal/queue"
	"qms/walkin-service/internal/reporting"
	"qms/walkin-service/internal/store"
	"qms/walkin-service/internal/store/memory"
	"qms/walkin-service/internal/store/postgres"
	"qms/walkin-service/internal/store/sheets"
	"qms/walkin-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	shutdownTelemetry := telemetry.Setup(context.Background(), telemetry.Options{
		ServiceName: "walkin-service",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var journal store.ActionJournal = memory.NewJournal()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		journal = postgres.NewJournal(pool)
		log.Printf("action journal backend=postgres")
	} else {
		log.Printf("action journal backend=memory")
	}

	client, err := sheets.NewClient(sheets.Options{
		Endpoint: cfg.SheetsEndpoint,
		Timeout:  cfg.SheetsTimeout,
		Location: cfg.Location,
	})
	if err != nil {
		log.Fatalf("sheets client: %v", err)
	}
	sheetStore := store.NewJournaledStore(client, journal)

	queueController := queue.NewController(sheetStore, queue.Options{
		LoadFallback: cfg.LoadFallback,
		SettleDelay:  cfg.SettleDelay,
		ToastTTL:     cfg.ToastTTL,
		PhoneRule:    queue.NewPhoneRule(cfg.PhoneCountryCode, cfg.PhoneDigits),
		Location:     cfg.Location,
	})
	reportController := reporting.NewController(sheetStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := queueController.Load(ctx); err != nil {
			log.Printf("initial queue load: %v", err)
		}
	}()
	go func() {
		if err := reportController.Load(ctx); err != nil {
			log.Printf("initial history load: %v", err)
		}
	}()

	handler := httpapi.NewHandler(queueController, reportController, journal, httpapi.Options{Location: cfg.Location})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.Handle("/metrics", expvar.Handler())

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "walkin-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("walkin-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	go poll(ctx, cfg.PollInterval, queueController, reportController)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	queueController.Wait()
}

// poll reloads the queue and history on a fixed interval so other terminals'
// writes show up without a manual refresh.
func poll(ctx context.Context, interval time.Duration, queueController *queue.Controller, reportController *reporting.Controller) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := queueController.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("queue poll error: %v", err)
			}
			if err := reportController.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("history poll error: %v", err)
			}
		}
	}
}
