package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/lunadev/shellmux/internal/config"
	"github.com/lunadev/shellmux/internal/database"
	"github.com/lunadev/shellmux/internal/handlers"
	"github.com/lunadev/shellmux/internal/logging"
	"github.com/lunadev/shellmux/internal/registry"
	"github.com/lunadev/shellmux/internal/sshmanager"
)

// maxLogSize is the threshold above which the maintenance job truncates the
// log file.
const maxLogSize = 50 * 1024 * 1024

func main() {
	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	if path := config.Cfg.DeviceSeedPath; path != "" {
		added, err := database.ImportDevices(path)
		if err != nil {
			log.Printf("WARNING: device seed import: %v", err)
		} else if added > 0 {
			log.Printf("Imported %d devices from %s", added, path)
		}
	}

	sshMgr := sshmanager.New()
	handlers.SSHMgr = sshMgr

	shells := registry.New()
	handlers.Shells = shells
	log.Printf("Shell registry initialized (default %dx%d, title %q)",
		config.Cfg.ShellDefaultCols, config.Cfg.ShellDefaultRows, config.Cfg.ShellDefaultTitle)

	// Periodic maintenance: sweep dead SSH connections, keep the log file
	// bounded.
	maint := cron.New()
	if _, err := maint.AddFunc("@every 5m", func() {
		if removed := sshMgr.SweepDead(); removed > 0 {
			log.Printf("Maintenance: removed %d dead SSH connections", removed)
		}
	}); err != nil {
		log.Fatalf("Schedule connection sweep: %v", err)
	}
	if _, err := maint.AddFunc("@hourly", func() {
		if logging.Size() > maxLogSize {
			if err := logging.Clear(); err != nil {
				log.Printf("Maintenance: log truncate failed: %v", err)
			} else {
				log.Printf("Maintenance: truncated oversized log file")
			}
		}
	}); err != nil {
		log.Fatalf("Schedule log maintenance: %v", err)
	}
	maint.Start()
	defer maint.Stop()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Device inventory
		r.Get("/devices", handlers.ListDevices)
		r.Post("/devices", handlers.CreateDevice)
		r.Delete("/devices/{id}", handlers.DeleteDevice)
		r.Post("/devices/{id}/shells", handlers.OpenShell)

		// Shell sessions; tokens are "<conn>/<chan>", two path segments
		r.Get("/shells", handlers.ListShells)
		r.Get("/shells/{conn}/{chan}", handlers.GetShellInfo)
		r.Get("/shells/{conn}/{chan}/screen", handlers.GetShellScreen)
		r.Get("/shells/{conn}/{chan}/stream", handlers.ShellStream)
		r.Delete("/shells/{conn}/{chan}", handlers.CloseShell)

		// Local file utilities
		r.Post("/files/checksum", handlers.FileChecksum)
		r.Get("/files/temp-path", handlers.TempPath)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shells.CloseAll()
	if err := sshMgr.CloseAll(); err != nil {
		log.Printf("SSH manager shutdown: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
