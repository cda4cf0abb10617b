// Package connection resolves logical connection names to database drivers,
// split by read and write role.
package connection

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"
)

// Factory opens a driver. It is called at most once per registered
// connection, on first use.
type Factory func() (dialect.Driver, error)

// Open returns a factory that opens a database/sql backed driver.
// A positive maxOpen limits the pool size.
func Open(driverName, dsn string, maxOpen int) Factory {
	return func() (dialect.Driver, error) {
		drv, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("connection: open %s: %w", driverName, err)
		}
		if maxOpen > 0 {
			drv.DB().SetMaxOpenConns(maxOpen)
		}
		return drv, nil
	}
}

// Static returns a factory for an already opened driver.
func Static(drv dialect.Driver) Factory {
	return func() (dialect.Driver, error) { return drv, nil }
}

type lazy struct {
	factory Factory
	drv     dialect.Driver
}

func (l *lazy) get() (dialect.Driver, error) {
	if l.drv != nil {
		return l.drv, nil
	}
	drv, err := l.factory()
	if err != nil {
		return nil, err
	}
	l.drv = drv
	return drv, nil
}

// Locator holds a default connection and optional named read and write
// connections. Read and Write without a name pick one of the named
// connections of that role at random, or the default when there are none.
type Locator struct {
	mu    sync.Mutex
	def   *lazy
	read  map[string]*lazy
	write map[string]*lazy
}

// Option configures a Locator.
type Option func(*Locator)

// WithDefault sets the default connection factory.
func WithDefault(f Factory) Option {
	return func(l *Locator) { l.def = &lazy{factory: f} }
}

// WithRead registers a named read connection.
func WithRead(name string, f Factory) Option {
	return func(l *Locator) { l.SetRead(name, f) }
}

// WithWrite registers a named write connection.
func WithWrite(name string, f Factory) Option {
	return func(l *Locator) { l.SetWrite(name, f) }
}

// New creates a Locator.
func New(opts ...Option) *Locator {
	l := &Locator{
		read:  make(map[string]*lazy),
		write: make(map[string]*lazy),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetDefault replaces the default connection factory.
func (l *Locator) SetDefault(f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.def = &lazy{factory: f}
}

// SetRead registers a named read connection.
func (l *Locator) SetRead(name string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.read[name] = &lazy{factory: f}
}

// SetWrite registers a named write connection.
func (l *Locator) SetWrite(name string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write[name] = &lazy{factory: f}
}

// Default returns the default connection.
func (l *Locator) Default() (dialect.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.defaultLocked()
}

func (l *Locator) defaultLocked() (dialect.Driver, error) {
	if l.def == nil {
		return nil, fmt.Errorf("connection: no default connection configured")
	}
	return l.def.get()
}

// Read returns a read connection. With a name it returns that connection.
func (l *Locator) Read(name ...string) (dialect.Driver, error) {
	return l.pick("read", l.read, name)
}

// Write returns a write connection. With a name it returns that connection.
func (l *Locator) Write(name ...string) (dialect.Driver, error) {
	return l.pick("write", l.write, name)
}

func (l *Locator) pick(role string, conns map[string]*lazy, name []string) (dialect.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(name) > 0 && name[0] != "" {
		c, ok := conns[name[0]]
		if !ok {
			return nil, fmt.Errorf("connection: %s connection %q not found", role, name[0])
		}
		return c.get()
	}
	if len(conns) == 0 {
		return l.defaultLocked()
	}
	names := make([]string, 0, len(conns))
	for n := range conns {
		names = append(names, n)
	}
	slices.Sort(names)
	return conns[names[rand.IntN(len(names))]].get()
}

// Dialect returns the dialect of the default connection.
func (l *Locator) Dialect() (string, error) {
	drv, err := l.Default()
	if err != nil {
		return "", err
	}
	return drv.Dialect(), nil
}

// Close closes every connection that was opened.
func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	seen := make(map[dialect.Driver]bool)
	closeOne := func(c *lazy) {
		if c == nil || c.drv == nil || seen[c.drv] {
			return
		}
		seen[c.drv] = true
		if err := c.drv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	closeOne(l.def)
	for _, c := range l.read {
		closeOne(c)
	}
	for _, c := range l.write {
		closeOne(c)
	}
	if len(errs) > 0 {
		return fmt.Errorf("connection: close: %w", errors.Join(errs...))
	}
	return nil
}
