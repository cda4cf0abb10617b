// Package orm wires connections, tables, mappers and relationships into a
// Container and exposes them through the Atlas facade.
package orm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/config"
	"github.com/syssam/atlas/connection"
	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/mapper"
	"github.com/syssam/atlas/relationship"
	"github.com/syssam/atlas/table"
)

// MapperDefinition describes one mapper: its table, its events and its
// relations.
type MapperDefinition struct {
	Name        string
	Table       table.Definition
	TableEvents table.Events
	Events      mapper.Events
	// Relationships registers the relations of the mapper.
	Relationships func(*relationship.Relationships) error
}

// Container holds the connection locator and every registered table and
// mapper.
type Container struct {
	conns    *connection.Locator
	tables   *table.Locator
	mappers  *mapper.Locator
	logger   *slog.Logger
	cache    atlas.Cache
	cacheTTL time.Duration
}

type options struct {
	cfg      *config.Config
	def      connection.Factory
	read     map[string]connection.Factory
	write    map[string]connection.Factory
	logger   *slog.Logger
	cache    atlas.Cache
	cacheTTL time.Duration
}

// Option configures New.
type Option func(*options)

// WithConfig opens the connections described by cfg. Its log, debug, slow
// query and cache settings apply unless other options override them.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithDriver sets the default connection.
func WithDriver(drv dialect.Driver) Option {
	return func(o *options) { o.def = connection.Static(drv) }
}

// WithReadDriver adds a named read connection.
func WithReadDriver(name string, drv dialect.Driver) Option {
	return func(o *options) { o.read[name] = connection.Static(drv) }
}

// WithWriteDriver adds a named write connection.
func WithWriteDriver(name string, drv dialect.Driver) Option {
	return func(o *options) { o.write[name] = connection.Static(drv) }
}

// WithLogger sets the logger passed to tables, mappers and
// relationships.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCache caches selected rows of every table in c.
func WithCache(c atlas.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// New returns a Container. Connections are opened on first use.
func New(opts ...Option) (*Container, error) {
	o := &options{
		read:  make(map[string]connection.Factory),
		write: make(map[string]connection.Factory),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg != nil {
		if err := o.configure(); err != nil {
			return nil, err
		}
	}
	if o.def == nil {
		return nil, errors.New("orm: no default connection, use WithConfig or WithDriver")
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	conns := connection.New(connection.WithDefault(o.def))
	for name, f := range o.read {
		conns.SetRead(name, f)
	}
	for name, f := range o.write {
		conns.SetWrite(name, f)
	}
	return &Container{
		conns:    conns,
		tables:   table.NewLocator(),
		mappers:  mapper.NewLocator(),
		logger:   o.logger,
		cache:    o.cache,
		cacheTTL: o.cacheTTL,
	}, nil
}

// configure turns the config into connection factories, a logger and a
// cache, without replacing what other options set.
func (o *options) configure() error {
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	if o.logger == nil {
		l, err := cfg.Logger(os.Stderr)
		if err != nil {
			return err
		}
		o.logger = l
	}
	if o.cache == nil && cfg.Cache.Enabled {
		o.cache = table.NewMemoryCache()
		o.cacheTTL = cfg.Cache.TTL
	}
	if o.def == nil {
		o.def = o.open(cfg.DSN)
	}
	for name, dsn := range cfg.Read {
		if _, ok := o.read[name]; !ok {
			o.read[name] = o.open(dsn)
		}
	}
	for name, dsn := range cfg.Write {
		if _, ok := o.write[name]; !ok {
			o.write[name] = o.open(dsn)
		}
	}
	return nil
}

// open returns a factory for dsn wrapped in the debug and slow query
// drivers the config asks for.
func (o *options) open(dsn string) connection.Factory {
	cfg := o.cfg
	open := connection.Open(cfg.Dialect, dsn, cfg.MaxOpenConns)
	return func() (dialect.Driver, error) {
		drv, err := open()
		if err != nil {
			return nil, err
		}
		if cfg.Debug {
			drv = sql.NewDebugDriver(drv, o.logger)
		}
		if cfg.SlowQueryThreshold > 0 {
			drv = sql.NewStatsDriver(drv,
				sql.WithSlowThreshold(cfg.SlowQueryThreshold),
				sql.WithSlowQueryLog(o.logger),
			)
		}
		return drv, nil
	}
}

// SetMapper registers a mapper. Mappers of the same table share its
// Table and identity map. Nothing is registered when the definition is
// rejected.
func (c *Container) SetMapper(def MapperDefinition) error {
	if def.Name == "" {
		return atlas.NewInvalidDefinitionError("mapper", def.Name, "empty mapper name")
	}
	if c.mappers.Has(def.Name) {
		return atlas.NewInvalidDefinitionError("mapper", def.Name, "mapper already registered")
	}
	tbl, err := c.tables.Get(def.Table.Name)
	shared := err == nil
	if !shared {
		tbl, err = table.New(def.Table, c.conns,
			table.WithEvents(def.TableEvents),
			table.WithLogger(c.logger),
			table.WithCache(c.cache, c.cacheTTL),
		)
		if err != nil {
			return fmt.Errorf("orm: mapper %s: %w", def.Name, err)
		}
	}
	m, err := mapper.New(def.Name, tbl, mapper.WithEvents(def.Events), mapper.WithLogger(c.logger))
	if err != nil {
		return err
	}
	rels := relationship.New(m, c.mappers, c.logger)
	if def.Relationships != nil {
		if err := def.Relationships(rels); err != nil {
			return fmt.Errorf("orm: mapper %s: %w", def.Name, err)
		}
	}
	m.SetRelationships(rels)
	if !shared {
		c.tables.Set(tbl)
	}
	c.mappers.Set(m)
	c.logger.Debug("mapper registered", "mapper", def.Name, "table", tbl.Name(), "relations", rels.Fields())
	return nil
}

// SetMappers registers the mappers in order and stops at the first
// rejected definition.
func (c *Container) SetMappers(defs ...MapperDefinition) error {
	for _, def := range defs {
		if err := c.SetMapper(def); err != nil {
			return err
		}
	}
	return nil
}

// Fix resolves every relation of every mapper, so definition errors
// surface before the first fetch.
func (c *Container) Fix() error {
	var errs []error
	c.mappers.Each(func(m *mapper.Mapper) {
		rels, ok := m.Relationships().(*relationship.Relationships)
		if !ok {
			return
		}
		for _, name := range rels.Fields() {
			rel, err := rels.Get(name)
			if err == nil {
				_, err = rel.Fix()
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Atlas returns the facade over the container.
func (c *Container) Atlas() *Atlas {
	return &Atlas{c: c}
}

// Connections returns the connection locator.
func (c *Container) Connections() *connection.Locator { return c.conns }

// Tables returns the table locator.
func (c *Container) Tables() *table.Locator { return c.tables }

// Mappers returns the mapper locator.
func (c *Container) Mappers() *mapper.Locator { return c.mappers }

// Logger returns the container logger.
func (c *Container) Logger() *slog.Logger { return c.logger }

// Definitions returns the table definitions of the registered mappers,
// sorted by table name.
func (c *Container) Definitions() []table.Definition {
	names := c.tables.Names()
	defs := make([]table.Definition, 0, len(names))
	for _, n := range names {
		if t, err := c.tables.Get(n); err == nil {
			defs = append(defs, *t.Definition())
		}
	}
	return defs
}

// Close closes every opened connection.
func (c *Container) Close() error {
	return c.conns.Close()
}
