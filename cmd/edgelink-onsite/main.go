package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/brigadepos/edgelink/internal/api/http"
	"github.com/brigadepos/edgelink/internal/heartbeat"
	"github.com/brigadepos/edgelink/internal/identity"
	"github.com/brigadepos/edgelink/internal/operators"
	"github.com/brigadepos/edgelink/internal/pairing"
	"github.com/brigadepos/edgelink/internal/settings"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("EdgeLink Onsite Agent", "version", AppVersion)

	kv, err := settings.Open(config.Storage.Path)
	if err != nil {
		slog.Error("Failed to open settings store", "path", config.Storage.Path, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bootCancel()

	identityStore := identity.NewStore(kv)
	if _, err := identityStore.GetOrCreate(bootCtx); err != nil {
		slog.Error("Failed to initialize onsite identity", "error", err)
		os.Exit(1)
	}

	operatorStore := operators.NewStore(kv)
	if err := operatorStore.Seed(bootCtx, config.Operator.Username, config.Operator.Password); err != nil {
		slog.Error("Failed to seed operator account", "error", err)
		os.Exit(1)
	}

	seedStoreHints(bootCtx, kv)

	pairingService := pairing.NewService(identityStore, kv)

	publisher := heartbeat.NewPublisher(identityStore, heartbeat.Config{
		Enabled:         config.Heartbeat.Enabled,
		Interval:        time.Duration(config.Heartbeat.IntervalSeconds) * time.Second,
		FallbackBaseURL: config.Heartbeat.CloudBaseUrl,
		SoftwareVersion: AppVersion,
	})
	publisher.Start()
	defer publisher.Stop()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupOnsiteRoutes(engine, &internalhttp.OnsiteServices{
		Pairing:   pairingService,
		Publisher: publisher,
		Operators: operatorStore,
		JWTConfig: config.Jwt,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}

// seedStoreHints mirrors the configured store descriptors into the
// settings store so the pairing flow can return them. Empty values are
// skipped so manually edited hints survive restarts.
func seedStoreHints(ctx context.Context, kv *settings.Store) {
	hints := map[string]string{
		pairing.StoreNameKey:     config.Store.Name,
		pairing.StoreAddressKey:  config.Store.Address,
		pairing.StoreTimezoneKey: config.Store.Timezone,
	}
	for key, value := range hints {
		if value == "" {
			continue
		}
		if err := kv.Put(ctx, key, value); err != nil {
			slog.Warn("Failed to seed store hint", "key", key, "error", err)
		}
	}
}
