package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/config"
	"example.com/dmepatch/internal/server"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		common.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		common.Fatalf("storage dir: %v", err)
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	closer, err := common.SetupLogging(cfg.Logs, "dmepatchd", os.Stdout)
	if err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer closer.Close()

	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		common.Fatalf("load catalog: %v", err)
	}
	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	metrics := common.NewMetrics()
	srv, err := server.NewServer(server.Options{
		StorageDir:    cfg.StorageDir,
		Catalog:       cat,
		AuditLog:      cfg.AuditLog,
		MaxImageBytes: int64(cfg.MaxImageMB) << 20,
		Metrics:       metrics,
	})
	if err != nil {
		common.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	common.Logf("dmepatchd listening on %s (%d catalog sets)", listenAddr, cat.Len())
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		common.Logf("shutdown: %v", err)
	}
	snap := metrics.Snapshot()
	common.Logf("dmepatchd stopped: %d images, %d applied, %d reverted, %d failed (%s processed)",
		snap.Images, snap.Applied, snap.Reverted, snap.Failures, common.FormatBytes(snap.Bytes))
}
