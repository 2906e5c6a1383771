// Package sessions tracks live streaming connections so that out-of-band
// messages addressed to a session identifier reach the correct connection,
// and reclaims connections that have gone idle.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout is how long an entry may go without activity
	// before a sweep removes it.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 5 * time.Minute

	// closeTimeout bounds the server shutdown of a swept entry.
	closeTimeout = 5 * time.Second
)

// Conn is the transport side of a tracked connection. The registry stops
// it when reclaiming an abandoned entry; implementations must tolerate
// Stop being called more than once.
type Conn interface {
	Stop()
}

// Server is the protocol server bound to a tracked connection.
type Server interface {
	Shutdown(ctx context.Context) error
}

// Entry is one registry row: a session identifier together with the
// connection handles it owns and its activity timestamps. LastActive is
// refreshed on every Lookup; that refresh is the registry's only activity
// signal.
type Entry struct {
	ID         string
	Conn       Conn
	Server     Server
	CreatedAt  time.Time
	LastActive time.Time
}

// Clock supplies the current time. Tests inject a fake clock so sweeps can
// be exercised without waiting real minutes.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTimeout sets the idle threshold after which a sweep removes an
// entry.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithClock replaces the registry's time source.
func WithClock(clock Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger used to report evictions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With(slog.String("component", "sessions"))
	}
}

// Registry is an in-memory table of live sessions. All access to the table
// goes through one mutex, so Register, Lookup, Remove and the background
// sweep cannot race destructively. The registry is purely in-memory and
// starts empty; nothing survives a restart.
//
// Construct instances with NewRegistry and release them with Shutdown.
type Registry struct {
	idleTimeout   time.Duration
	sweepInterval time.Duration
	clock         Clock
	logger        *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	stopped bool

	done   chan struct{}
	closed chan struct{}
}

// NewRegistry creates a registry and starts its background sweep, which
// runs every sweep interval until Shutdown is called.
func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: DefaultSweepInterval,
		clock:         systemClock{},
		logger:        slog.Default(),
		entries:       make(map[string]*Entry),
		done:          make(chan struct{}),
		closed:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}

	go r.sweeper()

	return r
}

// Register inserts a new entry under id with the current time as both its
// creation and last-activity timestamp. The id must not already be
// present; identifiers are expected to be minted with collision-resistant
// randomness by the caller.
func (r *Registry) Register(id string, conn Conn, srv Server) error {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return fmt.Errorf("session registry is shut down")
	}
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("session %q already registered", id)
	}

	r.entries[id] = &Entry{
		ID:         id,
		Conn:       conn,
		Server:     srv,
		CreatedAt:  now,
		LastActive: now,
	}
	return nil
}

// Lookup returns a copy of the entry for id, refreshing its last-activity
// timestamp as a side effect. A miss is a normal outcome, reported through
// the second return value.
func (r *Registry) Lookup(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}

	ent.LastActive = r.clock.Now()
	return *ent, true
}

// Remove deletes the entry for id if present. It is idempotent and does
// not stop the entry's handles; the caller owning the connection does that
// on its own close path.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, id)
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Sweep removes every entry idle for longer than the idle threshold and
// shuts its handles down, reclaiming abandoned connections. It runs on the
// sweep interval but may also be called directly.
func (r *Registry) Sweep() {
	now := r.clock.Now()

	r.mu.Lock()
	var expired []*Entry
	for id, ent := range r.entries {
		if now.Sub(ent.LastActive) > r.idleTimeout {
			delete(r.entries, id)
			expired = append(expired, ent)
		}
	}
	r.mu.Unlock()

	// Handles are torn down outside the lock; entries are already unmapped
	// so no other path can reach them.
	for _, ent := range expired {
		r.logger.Info("evicting idle session",
			slog.String("sessionID", ent.ID),
			slog.Duration("idle", now.Sub(ent.LastActive)))

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		r.closeEntry(ctx, ent)
		cancel()
	}
}

// Shutdown stops the background sweep and closes and clears all entries.
// It is idempotent; ctx bounds the per-entry server shutdowns and the wait
// for the sweeper to exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true

	remaining := make([]*Entry, 0, len(r.entries))
	for _, ent := range r.entries {
		remaining = append(remaining, ent)
	}
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	close(r.done)

	for _, ent := range remaining {
		r.closeEntry(ctx, ent)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to stop session sweeper: %w", ctx.Err())
	case <-r.closed:
	}
	return nil
}

func (r *Registry) closeEntry(ctx context.Context, ent *Entry) {
	if ent.Server != nil {
		if err := ent.Server.Shutdown(ctx); err != nil {
			r.logger.Warn("failed to shut down session server",
				slog.String("sessionID", ent.ID),
				slog.String("err", err.Error()))
		}
	}
	if ent.Conn != nil {
		ent.Conn.Stop()
	}
}

func (r *Registry) sweeper() {
	defer close(r.closed)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
