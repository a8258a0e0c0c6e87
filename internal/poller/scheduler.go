// internal/poller/scheduler.go
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-probe/internal/registry"
	"github.com/tamzrod/modbus-probe/internal/trace"
)

// Registry is the narrow view of the session registry the scheduler needs.
type Registry interface {
	RunningSessions() []registry.SessionDefinition
	HasConnection(name string) bool
	Connected(name string) bool
	Connect(name string) bool
	ReadBits(connName string, unitID uint8, space registry.AddressSpace, start, count uint16) ([]bool, error)
	ReadWords(connName string, unitID uint8, space registry.AddressSpace, start, count uint16) ([]uint16, error)
	SetSessionError(name string)
}

// Subscriber receives poll results. Called synchronously from the scheduler
// goroutine, so it must return quickly.
type Subscriber func(PollResult)

// Config tunes the scheduler.
type Config struct {
	// Tick is the scheduler's wakeup interval. Session poll intervals are
	// quantized to it.
	Tick time.Duration
}

// DefaultTick keeps interval jitter below the fastest sensible poll rate.
const DefaultTick = 10 * time.Millisecond

// Scheduler drives all running sessions from a single goroutine. Fairness
// between sessions on one connection comes from the per-connection I/O lock
// in the registry, not from anything the scheduler does.
type Scheduler struct {
	cfg   Config
	reg   Registry
	store *trace.Store
	log   zerolog.Logger

	mu       sync.Mutex
	nextDue map[string]time.Time
	subs    []Subscriber
	errSubs []Subscriber

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a stopped scheduler. Trace entries go to store; pass nil to
// disable tracing.
func New(cfg Config, reg Registry, store *trace.Store, logger zerolog.Logger) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	return &Scheduler{
		cfg:     cfg,
		reg:     reg,
		store:   store,
		log:     logger.With().Str("component", "poller").Logger(),
		nextDue: make(map[string]time.Time),
	}
}

// Subscribe registers a callback for every poll result.
func (s *Scheduler) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// SubscribeErrors registers a callback invoked only for failed polls.
func (s *Scheduler) SubscribeErrors(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errSubs = append(s.errSubs, fn)
}

// ResetPollTimer makes the named session due on the next tick, regardless of
// its interval. Used after an on-demand write so the readback is immediate.
func (s *Scheduler) ResetPollTimer(sessionName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nextDue, sessionName)
}

// Run blocks driving the poll loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("tick", s.cfg.Tick).Msg("poll loop started")
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("poll loop stopped")
			return
		case now := <-ticker.C:
			s.tickOnce(now)
		}
	}
}

// Start launches Run on its own goroutine.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight poll, bounded so a hung
// transport cannot stall shutdown.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		s.log.Warn().Msg("poll loop did not stop in time")
	}
	s.cancel = nil
}

// tickOnce polls every due session once. Sessions are rescheduled from the
// tick time, so a slow transaction delays its own session, never the others'
// bookkeeping.
func (s *Scheduler) tickOnce(now time.Time) {
	sessions := s.reg.RunningSessions()

	s.mu.Lock()
	running := make(map[string]bool, len(sessions))
	due := make([]registry.SessionDefinition, 0, len(sessions))
	for _, def := range sessions {
		running[def.Name] = true
		next, seen := s.nextDue[def.Name]
		if !seen || !now.Before(next) {
			due = append(due, def)
			s.nextDue[def.Name] = now.Add(def.PollInterval)
		}
	}
	// Drop bookkeeping for sessions that stopped, so a restart polls at once.
	for name := range s.nextDue {
		if !running[name] {
			delete(s.nextDue, name)
		}
	}
	s.mu.Unlock()

	for _, def := range due {
		s.pollSession(now, def)
	}
}

// publish fans a result out to subscribers. Slices are copied under the lock
// so a subscriber may itself call Subscribe.
func (s *Scheduler) publish(res PollResult) {
	s.mu.Lock()
	subs := make([]Subscriber, len(s.subs))
	copy(subs, s.subs)
	var errSubs []Subscriber
	if res.Status.IsError() {
		errSubs = make([]Subscriber, len(s.errSubs))
		copy(errSubs, s.errSubs)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(res)
	}
	for _, fn := range errSubs {
		fn(res)
	}
}
