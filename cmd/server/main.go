package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codyseavey/pkmn-cataloguer/internal/api"
	"github.com/codyseavey/pkmn-cataloguer/internal/config"
	"github.com/codyseavey/pkmn-cataloguer/internal/database"
	"github.com/codyseavey/pkmn-cataloguer/internal/services"
	"github.com/codyseavey/pkmn-cataloguer/internal/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	loc, err := time.LoadLocation(cfg.LocalTZ)
	if err != nil {
		log.Fatalf("Invalid LOCAL_TZ %q: %v", cfg.LocalTZ, err)
	}

	// One gate per upstream; every caller shares the same budget
	scrapeGate := throttle.NewGate(cfg.ScrapeRequestsPerSec)
	metadataGate := throttle.NewGate(cfg.MetadataRequestsPerSec)

	// Initialize services
	scraper := services.NewPriceChartingService(
		cfg.PriceChartingBaseURL,
		scrapeGate,
		time.Duration(cfg.ScrapeCacheTTLSeconds)*time.Second,
	)
	tcgdex := services.NewTCGdexService(cfg.TCGdexBaseURL, metadataGate)
	ledger := services.NewJobLedger(db)

	pricingRefresh := services.NewPricingRefreshService(db, scraper, ledger, cfg.RefreshBatchSize, cfg.ScrapeRequestsPerSec)
	metadataRefresh := services.NewMetadataRefreshService(db, tcgdex, ledger, cfg.RefreshBatchSize)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scheduler *services.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = services.NewScheduler(pricingRefresh, metadataRefresh, loc)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Scheduler panicked: %v", r)
				}
			}()
			scheduler.Run(rootCtx)
		}()
	} else {
		log.Println("Scheduler disabled by configuration")
	}

	router := api.SetupRouter(db, scraper, tcgdex, ledger, pricingRefresh, metadataRefresh, scheduler, cfg.CORSAllowedOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
