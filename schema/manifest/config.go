package manifest

import (
	"time"

	dirty "github.com/goliatone/go-dirty"
)

// Option configures a Generator.
type Option func(*generatorConfig)

type generatorConfig struct {
	version         string
	forceComponents []string
	clock           func() time.Time
	catalog         dirty.Catalog
}

func defaultConfig() generatorConfig {
	return generatorConfig{
		version: "1",
		clock:   time.Now,
	}
}

// WithVersion overrides the document version.
func WithVersion(version string) Option {
	return func(cfg *generatorConfig) {
		if version != "" {
			cfg.version = version
		}
	}
}

// WithForcedComponents promotes the named types to components even when
// their shape is unique.
func WithForcedComponents(types ...string) Option {
	return func(cfg *generatorConfig) {
		cfg.forceComponents = append(cfg.forceComponents, types...)
	}
}

// WithClock overrides the generation timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *generatorConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithCatalog supplies the property catalog. Defaults to a fresh
// ReflectCatalog.
func WithCatalog(catalog dirty.Catalog) Option {
	return func(cfg *generatorConfig) {
		if catalog != nil {
			cfg.catalog = catalog
		}
	}
}
