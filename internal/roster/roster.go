package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/database"
	"github.com/nerrad567/lightbridge/internal/registry"
)

// defaultVersion is the Tuya protocol version assumed when none is declared.
const defaultVersion = "3.3"

var (
	// ErrUnknownSource is returned by New for an unrecognised roster.source.
	ErrUnknownSource = errors.New("roster: unknown source")

	// ErrUnknownDevice is returned when a device row does not exist.
	ErrUnknownDevice = errors.New("roster: unknown device")
)

// Source yields the current device declarations.
type Source interface {
	Declarations(ctx context.Context) ([]registry.Declaration, error)
}

// ConfigSource is the static devices list of the config file.
type ConfigSource struct {
	decls []registry.Declaration
}

// NewConfigSource converts config devices into declarations.
func NewConfigSource(devices []config.DeviceConfig) *ConfigSource {
	return &ConfigSource{decls: lo.Map(devices, func(d config.DeviceConfig, _ int) registry.Declaration {
		return declaration(d.ID, d.Key, d.IP, d.Name, d.Version)
	})}
}

// Declarations implements Source. The returned slice is a copy.
func (s *ConfigSource) Declarations(_ context.Context) ([]registry.Declaration, error) {
	return append([]registry.Declaration(nil), s.decls...), nil
}

// New returns the source selected by cfg.Roster.Source. db is only used
// for the database source and may be nil otherwise.
func New(cfg *config.Config, db *database.DB) (Source, error) {
	switch cfg.Roster.Source {
	case "", config.RosterConfig:
		return NewConfigSource(cfg.Devices), nil
	case config.RosterDatabase:
		if db == nil {
			return nil, errors.New("roster: database source needs an open database")
		}
		return NewSQLiteSource(db), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Roster.Source)
	}
}

func declaration(id, key, ip, name, version string) registry.Declaration {
	if version == "" {
		version = defaultVersion
	}
	return registry.Declaration{ID: id, Key: key, IP: ip, Name: name, Version: version}
}
