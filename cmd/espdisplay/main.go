// espdisplay is the display agent.
//
// On start it obtains its identity (from the local store, or through the
// broadcast handshake on first boot), binds an RPC engine to its per-identity
// topic pair, registers the built-in methods, fetches its configuration and
// then serves inbound calls until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/espdisplay-rpc/migrations"

	"github.com/nerrad567/espdisplay-rpc/internal/api"
	"github.com/nerrad567/espdisplay-rpc/internal/device"
	"github.com/nerrad567/espdisplay-rpc/internal/identity"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/config"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/database"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/influxdb"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/logging"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/mqtt"
	"github.com/nerrad567/espdisplay-rpc/internal/kvstore"
	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
	"github.com/nerrad567/espdisplay-rpc/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the agent, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting espdisplay agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "device", cfg.Device.Name)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	store := kvstore.NewSQLite(db.DB)

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.RPC.TopicPrefix})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	transport := mqtt.NewBus(mqttClient, byte(cfg.MQTT.QoS), cfg.MQTT.InboxSize) //nolint:gosec // QoS validated by config.Validate

	defer transport.Close() //nolint:errcheck // Idempotent, never fails

	id, _, err := identity.Provision(ctx, store, transport, cfg.GetHandshakeTimeout(), identity.Options{
		Prefix: cfg.RPC.TopicPrefix,
		Topics: identity.ProvisioningTopics{
			Subscribe: cfg.RPC.SubscribeTopic,
			Broadcast: cfg.RPC.BroadcastTopic,
		},
		Key:    cfg.Device.IdentityKey,
		Logger: log.Component("identity"),
	})
	if err != nil {
		return fmt.Errorf("provisioning identity: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	recorders := []rpc.Recorder{metrics}

	influxClient, err := connectInflux(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		recorders = append(recorders, telemetry.NewInflux(influxClient, func() identity.Identity { return id }))
	}

	engine := rpc.New(transport, rpc.Options{
		Prefix:         cfg.RPC.TopicPrefix,
		Role:           rpc.RoleDevice,
		DefaultTimeout: cfg.GetCallTimeout(),
		Logger:         log.Component("rpc"),
		Recorder:       telemetry.Combine(recorders...),
	})
	device.Register(engine, engine)

	if err := metrics.ObservePending(engine.PendingCount); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if err := metrics.ObserveTransportDrops(transport.Dropped); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	if err := engine.Begin(ctx, id); err != nil {
		return fmt.Errorf("starting RPC engine: %w", err)
	}
	topics, _ := engine.Topics()
	log.Info("RPC engine started",
		"identity", id,
		"inbound", topics.Inbound,
		"outbound", topics.Outbound,
		"methods", engine.Methods(),
	)

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		srv, srvErr := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log.Component("api"),
			Engine:      engine,
			Caller:      engine,
			Checks:      checks,
			Gatherer:    registry,
			CallTimeout: cfg.GetCallTimeout(),
			Version:     version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- engine.Run(ctx)
	}()

	if cfg.Device.SyncConfig {
		syncConfig(ctx, engine, store, log)
	}

	log.Info("initialisation complete, serving")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		<-runErr
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("RPC engine stopped: %w", err)
		}
	}

	log.Info("espdisplay agent stopped")
	return nil
}

// syncConfig fetches the configuration once. Failure is not fatal: the
// device keeps serving with whatever it had before.
func syncConfig(ctx context.Context, engine *rpc.Engine, store kvstore.Store, log *logging.Logger) {
	cfg, err := device.SyncConfig(ctx, engine, store, 0)
	switch {
	case errors.Is(err, device.ErrNoConfig):
		log.Warn("no configuration available", "error", err)
	case err != nil:
		log.Error("configuration sync failed", "error", err)
	case cfg.Cached:
		args := []any{"error", cfg.FetchErr, "bytes", len(cfg.Raw)}
		if !cfg.CachedAt.IsZero() {
			args = append(args, "age", time.Since(cfg.CachedAt).Round(time.Second))
		}
		log.Warn("using cached configuration", args...)
	default:
		if cfg.CacheErr != nil {
			log.Warn("configuration not cached", "error", cfg.CacheErr)
		}
		log.Info("configuration synced", "bytes", len(cfg.Raw))
	}
}

// connectInflux connects to InfluxDB when enabled. It returns nil without
// error when disabled.
func connectInflux(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // Disabled is not an error
	}
	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// getConfigPath returns the configuration file path.
// Uses ESPDISPLAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ESPDISPLAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
