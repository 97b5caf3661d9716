// espdisplay-authority answers the identity handshake for display devices.
//
// It listens on the provisioning topic and replies on the broadcast topic
// with the next free identity. Assignments are recorded in SQLite, so a
// device retrying the same request gets the identity it was already given.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/espdisplay-rpc/migrations"

	"github.com/nerrad567/espdisplay-rpc/internal/api"
	"github.com/nerrad567/espdisplay-rpc/internal/identity"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/config"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/database"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/influxdb"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/logging"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/mqtt"
	"github.com/nerrad567/espdisplay-rpc/internal/telemetry"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const defaultConfigPath = "configs/authority.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting espdisplay identity authority", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	alloc := identity.NewSQLiteAllocator(db.DB, identity.Identity(cfg.Authority.FirstUUID))
	if n, countErr := alloc.Count(ctx); countErr == nil {
		log.Info("assignment ledger loaded", "assigned", n)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.RPC.TopicPrefix})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))

	transport := mqtt.NewBus(mqttClient, byte(cfg.MQTT.QoS), cfg.MQTT.InboxSize) //nolint:gosec // QoS validated by config.Validate

	defer transport.Close() //nolint:errcheck // Idempotent, never fails

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if err := metrics.ObserveTransportDrops(transport.Dropped); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	}

	authority := identity.NewAuthority(transport, alloc, identity.AuthorityOptions{
		Prefix: cfg.RPC.TopicPrefix,
		Topics: identity.ProvisioningTopics{
			Subscribe: cfg.RPC.SubscribeTopic,
			Broadcast: cfg.RPC.BroadcastTopic,
		},
		Logger: log.Component("authority"),
		OnAssign: func(id identity.Identity, requestID string) {
			metrics.AssignmentMade()
			if influxClient != nil {
				influxClient.WriteAssignment(int64(id), requestID)
			}
		},
	})

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		srv, srvErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Checks:   checks,
			Gatherer: registry,
			Version:  version,
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

	if err := authority.Serve(ctx); err != nil {
		return fmt.Errorf("serving handshakes: %w", err)
	}

	stats := authority.Stats()
	log.Info("identity authority stopped",
		"requests", stats.Requests,
		"assigned", stats.Assigned,
		"rejected", stats.Rejected,
	)
	return nil
}

// getConfigPath returns ESPDISPLAY_CONFIG when set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("ESPDISPLAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
