package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emutabaah.org/internal/config"
	"emutabaah.org/internal/content"
	"emutabaah.org/internal/httpapi"
	"emutabaah.org/internal/jobs"
	"emutabaah.org/internal/obs"
	"emutabaah.org/internal/session"
	"emutabaah.org/internal/storage"
	"emutabaah.org/internal/store/pg"
	"emutabaah.org/internal/token"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("MUTABAAH_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	codec, err := token.NewCodec(cfg.SessionSecret, cfg.IsProduction())
	if err != nil {
		log.Fatalf("session codec: %v", err)
	}

	st, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	uploads, err := storage.New(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3PublicURL)
	if err != nil {
		log.Fatalf("object storage: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Store:       st,
		Codec:       codec,
		Sessions:    session.NewAccessor(codec, cfg.IsProduction()),
		Content:     content.NewClient(cfg.PrayerBaseURL, cfg.QuranBaseURL, cfg.UpstreamTimeout),
		Uploads:     uploads,
		Ready:       httpapi.ReadyProbe{DB: st.DB()},
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
	})

	scheduler := jobs.New(st)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting mutabaah-api", map[string]any{
		"version": version,
		"addr":    cfg.Addr,
		"env":     cfg.Env,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	scheduler.Stop()
	obs.Info("stopped", nil)
}
