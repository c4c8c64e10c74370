// Lightbridge bridges Tuya LAN bulbs to subscribers of a text datagram
// protocol, with optional MQTT mirroring, an HTTP facade for manual
// testing and mDNS advertisement.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/lightbridge/migrations"

	"github.com/nerrad567/lightbridge/internal/api"
	"github.com/nerrad567/lightbridge/internal/bridge"
	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/discovery"
	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/database"
	"github.com/nerrad567/lightbridge/internal/infrastructure/logging"
	"github.com/nerrad567/lightbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/lightbridge/internal/registry"
	"github.com/nerrad567/lightbridge/internal/reload"
	"github.com/nerrad567/lightbridge/internal/roster"
	"github.com/nerrad567/lightbridge/internal/tuya"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
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

// run wires every component and blocks until ctx is cancelled or the
// datagram listener fails.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting lightbridge", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "bridge_id", cfg.Bridge.ID)

	src, closeRoster, err := openRoster(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRoster()

	reg, err := registry.New(registry.Config{
		Prefix:         cfg.Bridge.ResourcePrefix,
		Dial:           tuyaDialer(log),
		ConnectTimeout: cfg.ConnectTimeout(),
		RequestTimeout: cfg.RequestTimeout(),
		EventBuffer:    cfg.Bridge.EventBuffer,
		Sink: func(message string, severity int) {
			log.Log(message, logging.Severity(severity))
		},
	})
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}
	reg.SetLogger(log.With("component", "registry"))
	defer func() {
		log.Info("closing device connections")
		if closeErr := reg.Close(); closeErr != nil {
			log.Warn("error closing devices", "error", closeErr)
		}
	}()

	d, err := bridge.New(bridge.Options{
		Registry:    reg,
		Roster:      src,
		ID:          cfg.Bridge.ID,
		Name:        cfg.Bridge.Name,
		EventBuffer: cfg.Bridge.EventBuffer,
		Logger:      log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer d.Stop()

	if _, err := d.Reload(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	log.Info("devices bound", "resources", reg.Len(), "declared", len(cfg.Devices))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.ListenAndServe(gctx, cfg.BridgeAddress())
	})

	if cfg.MQTT.Enabled {
		stopMirror, mqttErr := startMQTT(gctx, cfg, d, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer stopMirror()
	} else {
		log.Info("MQTT mirror disabled")
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log.With("component", "api"),
			Dispatcher: d,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = srv.Start(gctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if cfg.Discovery.Enabled {
		adv := discovery.NewAdvertiser(cfg.Discovery.Interface)
		instance := cfg.Discovery.Instance
		if instance == "" {
			instance = cfg.Bridge.Name
		}
		if advErr := adv.Advertise(discovery.Info{
			Instance: instance,
			ID:       cfg.Bridge.ID,
			Version:  version,
			Port:     cfg.Bridge.Port,
		}); advErr != nil {
			log.Warn("mDNS advertisement failed", "error", advErr)
		} else {
			log.Info("mDNS advertisement started", "service", discovery.ServiceType, "instance", instance)
			defer adv.Shutdown()
		}
	}

	if cfg.Reload.Schedule != "" {
		sched, schedErr := reload.New(cfg.Reload.Schedule, d, log.With("component", "reload"))
		if schedErr != nil {
			return schedErr
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", cfg.BridgeAddress())
	err = g.Wait()
	log.Info("lightbridge stopped")
	return err
}

// openRoster selects the declaration source. For the database source the
// devices listed in the config file are imported first, so a config-only
// deployment can switch to the database without re-entering keys.
func openRoster(ctx context.Context, cfg *config.Config, log *logging.Logger) (roster.Source, func(), error) {
	if cfg.Roster.Source != config.RosterDatabase {
		return roster.NewConfigSource(cfg.Devices), func() {}, nil
	}

	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeDB := func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}
	if err := db.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	src, err := roster.New(cfg, db)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	if sqlite, ok := src.(*roster.SQLiteSource); ok && len(cfg.Devices) > 0 {
		decls, _ := roster.NewConfigSource(cfg.Devices).Declarations(ctx) //nolint:errcheck // Static source
		n, importErr := sqlite.Import(ctx, decls)
		if importErr != nil {
			closeDB()
			return nil, nil, fmt.Errorf("importing configured devices: %w", importErr)
		}
		log.Info("configured devices imported", "inserted", n)
	}

	log.Info("database roster ready", "path", db.Path())
	return src, closeDB, nil
}

// startMQTT connects to the broker and starts the state mirror.
func startMQTT(ctx context.Context, cfg *config.Config, d *bridge.Dispatcher, log *logging.Logger) (func(), error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mirror := bridge.NewMQTTMirror(d, client, client.Topics(), byte(cfg.MQTT.QoS))
	if err := mirror.Start(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("starting MQTT mirror: %w", err)
	}

	return func() {
		mirror.Stop()
		if dropped := mirror.Dropped(); dropped > 0 {
			log.Warn("MQTT publications dropped", "count", dropped)
		}
		log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}, nil
}

// tuyaDialer builds a protocol 3.3 client per declaration.
func tuyaDialer(log *logging.Logger) registry.Dialer {
	return func(d registry.Declaration) (bulb.Connection, error) {
		client, err := tuya.New(tuya.Config{
			DeviceID: d.ID,
			Key:      d.Key,
			Address:  d.IP,
		})
		if err != nil {
			return nil, err
		}
		client.SetLogger(log.With("component", "tuya", "device", d.ID))
		return client, nil
	}
}

// getConfigPath returns the configuration file path.
// Uses LIGHTBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIGHTBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
