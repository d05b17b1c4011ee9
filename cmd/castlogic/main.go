// Cast Logic Core - home media casting hub
//
// This is the main entry point for the Cast Logic Core application. It
// supervises one control session per registered receiver, mirrors their
// playback queues, and serves the REST and WebSocket API used by phones,
// wall panels and voice assistants.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/castlogic-core/migrations"

	"github.com/nerrad567/castlogic-core/internal/api"
	"github.com/nerrad567/castlogic-core/internal/auth"
	"github.com/nerrad567/castlogic-core/internal/catalog"
	"github.com/nerrad567/castlogic-core/internal/events"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/config"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/database"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/logging"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/castlogic-core/internal/notify"
	"github.com/nerrad567/castlogic-core/internal/phrase"
	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/receiver"
	"github.com/nerrad567/castlogic-core/internal/telemetry"
	"github.com/nerrad567/castlogic-core/internal/transport/mqttlink"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configPath, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags returns the configuration path. --config wins over the
// CASTLOGIC_CONFIG environment variable, which wins over the default.
func parseFlags(args []string) (string, error) {
	flagSet := pflag.NewFlagSet("castlogic", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to config.yaml (env CASTLOGIC_CONFIG)")
	if err := flagSet.Parse(args); err != nil {
		return "", err
	}
	if *configPath != "" {
		return *configPath, nil
	}
	if path := os.Getenv("CASTLOGIC_CONFIG"); path != "" {
		return path, nil
	}
	return defaultConfigPath, nil
}

// run is the actual application logic, separated from main for testability.
// It blocks until ctx is cancelled, then tears everything down in reverse
// order of construction.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Cast Logic Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	link := mqttlink.New(mqttClient, mqttlink.Options{
		Topics:         mqtt.Topics{ReceiverPrefix: cfg.Receivers.TopicPrefix},
		QoS:            byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		ConnectTimeout: cfg.GetConnectTimeout(),
	})
	link.SetLogger(log.Component("mqttlink"))

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected, dropping receiver channels", "error", err)
		link.BrokerLost(err)
	})

	bus := events.NewBus(events.WithLogger(log.Component("events")))
	defer bus.Close()

	queues := queue.NewEngine()

	registry := receiver.NewRegistry(receiver.Options{
		Repository: receiver.NewSQLiteRepository(db.DB),
		Transport:  link,
		Queues:     queues,
		Events:     bus,
		Sink: notify.Fallback{
			Primary:   notify.NewMQTTSink(mqttClient, cfg.Site.ID),
			Secondary: notify.LogSink{Logger: log.Component("alerts")},
		},
		Backoff: cfg.BackoffTable(),
	})
	registry.SetLogger(log.Component("receivers"))

	seeded, err := registry.Seed(ctx, seedDevices(cfg.Receivers.Devices))
	if err != nil {
		return fmt.Errorf("seeding receivers: %w", err)
	}
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading receiver registry: %w", refreshErr)
	}
	log.Info("receiver registry initialised",
		"receivers", len(registry.List()),
		"seeded", seeded,
	)

	if influxCfg := cfg.InfluxDB; influxCfg.Enabled {
		influxClient, influxErr := influxdb.Connect(influxCfg)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		recorder := telemetry.NewRecorder(influxClient, registry.Mirror())
		recorder.Attach(bus)
		defer recorder.Detach()
		log.Info("InfluxDB connected",
			"url", influxCfg.URL,
			"org", influxCfg.Org,
			"bucket", influxCfg.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	resolver := phrase.NewResolver(registry, phrase.WithDefaultSource(cfg.Catalog.DefaultSource))
	resolver.SetLogger(log.Component("phrase"))
	library := catalog.NewSQLiteCatalog(db.DB, cfg.Catalog.DefaultSource)
	resolver.Register(library.Source(), library)

	if startErr := registry.Start(ctx); startErr != nil {
		return fmt.Errorf("starting receiver supervisors: %w", startErr)
	}
	defer func() {
		if stopErr := registry.Stop(); stopErr != nil {
			log.Error("error stopping receiver supervisors", "error", stopErr)
		}
	}()

	gate := auth.NewKeyGate(cfg.Security)
	if !gate.Enabled() {
		log.Warn("API keys disabled, every caller is treated as a controller")
	}

	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Receivers: registry,
		Queues:    queues,
		Planner:   resolver,
		Gate:      gate,
		Events:    bus,
		MQTT:      mqttClient,
		DB:        db.DB,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, supervisors, telemetry, event
	// bus, MQTT, database.
	return nil
}

// seedDevices converts the receivers declared in config.yaml.
func seedDevices(seeds []config.ReceiverSeed) []receiver.Device {
	devices := make([]receiver.Device, 0, len(seeds))
	for _, s := range seeds {
		devices = append(devices, receiver.Device{
			ID:      s.ID,
			Name:    s.Name,
			Address: s.Address,
			Type:    receiver.Type(s.Type),
		})
	}
	return devices
}

// healthCheck verifies the infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
