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

	"github.com/oakmont/sitekeeper/internal/database"
	"github.com/oakmont/sitekeeper/internal/engine"
	"github.com/oakmont/sitekeeper/internal/logging"
	"github.com/oakmont/sitekeeper/internal/notify"
	"github.com/oakmont/sitekeeper/internal/remote"
	"github.com/oakmont/sitekeeper/internal/server"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logging.Setup(os.Getenv("SITEKEEPER_LOG_LEVEL"))

	port := env("SITEKEEPER_PORT", "8080")
	siteRoot := env("SITEKEEPER_SITE_ROOT", ".")

	db, err := database.Open(env("SITEKEEPER_DB_PATH", "sitekeeper.db"))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	siteDB, err := database.OpenSite(env("SITEKEEPER_SITE_DB_PATH", siteRoot+"/site.db"))
	if err != nil {
		log.Fatalf("failed to open site database: %v", err)
	}
	defer siteDB.Close()

	cfg := server.Config{
		Roots: engine.Roots{
			Content:    env("SITEKEEPER_CONTENT_ROOT", siteRoot+"/content"),
			Media:      env("SITEKEEPER_MEDIA_ROOT", siteRoot+"/media"),
			Extensions: env("SITEKEEPER_EXTENSIONS_ROOT", siteRoot+"/extensions"),
			Themes:     env("SITEKEEPER_THEMES_ROOT", siteRoot+"/themes"),
			Work:       env("SITEKEEPER_WORK_DIR", os.TempDir()),
		},
		Passphrase: os.Getenv("SITEKEEPER_BACKUP_PASSPHRASE"),
		S3: remote.Config{
			Endpoint:  os.Getenv("SITEKEEPER_S3_ENDPOINT"),
			Bucket:    os.Getenv("SITEKEEPER_S3_BUCKET"),
			Region:    env("SITEKEEPER_S3_REGION", "auto"),
			AccessKey: os.Getenv("SITEKEEPER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("SITEKEEPER_S3_SECRET_KEY"),
		},
	}

	if token := os.Getenv("SITEKEEPER_POSTMARK_TOKEN"); token != "" {
		cfg.Mailer = notify.NewClient(token, env("SITEKEEPER_FROM_EMAIL", "backups@localhost"))
	}

	srv := server.New(db, siteDB, cfg, logger)

	// Jobs left running by a previous process can never finish.
	if n, err := srv.JobStore().FailStaleRunning(); err != nil {
		logger.Error("failed to sweep stale jobs", "error", err)
	} else if n > 0 {
		logger.Warn("failed stale running jobs from previous process", "count", n)
	}

	if err := srv.Scheduler().Setup(); err != nil {
		logger.Error("failed to arm schedule", "error", err)
	}
	srv.Triggers().Start(context.Background())
	defer srv.Triggers().Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute, // backups and restores run inside the request
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Sitekeeper running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
