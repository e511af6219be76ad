// Package scheduler runs one polling task per subscribed user. Each task
// sleeps a fixed interval, re-reads the subscription row and the session
// flag, invokes the portal driver when both agree, and delivers the outcome.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RedbringerS/vfs-bot/internal/portal"
	"github.com/RedbringerS/vfs-bot/internal/session"
)

// Driver executes one automation run. It never fails: a broken run comes
// back as a failure outcome.
type Driver interface {
	Run(ctx context.Context, userID int64) portal.Outcome
}

// Registry is the authoritative subscription store, re-read every cycle.
type Registry interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}

// Notifier delivers a text to the user's chat.
type Notifier interface {
	SendText(ctx context.Context, userID int64, text string) error
}

// NotifyFunc adapts a function to the Notifier interface.
type NotifyFunc func(ctx context.Context, userID int64, text string) error

func (f NotifyFunc) SendText(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}

type Scheduler struct {
	driver   Driver
	registry Registry
	notifier Notifier
	sessions *session.Store
	interval time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	tasks map[int64]chan struct{}
	wg    sync.WaitGroup
}

func New(driver Driver, registry Registry, notifier Notifier, sessions *session.Store, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		driver:   driver,
		registry: registry,
		notifier: notifier,
		sessions: sessions,
		interval: interval,
		log:      log,
		tasks:    make(map[int64]chan struct{}),
	}
}

// Start launches the polling task for a user. At most one task per user is
// ever live: starting an already-running user is a no-op and returns false.
func (s *Scheduler) Start(ctx context.Context, userID int64) bool {
	s.mu.Lock()
	if _, running := s.tasks[userID]; running {
		s.mu.Unlock()
		return false
	}
	stop := make(chan struct{})
	s.tasks[userID] = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.remove(userID, stop)
		s.loop(ctx, userID, stop)
	}()
	return true
}

// Stop signals a user's task to end without waiting a full interval.
func (s *Scheduler) Stop(userID int64) {
	s.mu.Lock()
	stop, ok := s.tasks[userID]
	if ok {
		delete(s.tasks, userID)
	}
	s.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Running reports whether a task is live for the user.
func (s *Scheduler) Running(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[userID]
	return ok
}

// Wait blocks until every task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// remove clears the task entry, but only if it still belongs to this task:
// after Stop plus a fresh Start, the slot holds a newer channel.
func (s *Scheduler) remove(userID int64, stop chan struct{}) {
	s.mu.Lock()
	if cur, ok := s.tasks[userID]; ok && cur == stop {
		delete(s.tasks, userID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context, userID int64, stop <-chan struct{}) {
	log := s.log.With("user_id", userID)
	log.Info("polling task started", "interval", s.interval)
	defer log.Info("polling task stopped")

	for s.sessions.Phase(userID) == session.PhaseActive {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-time.After(s.interval):
		}

		// The guard is re-read after the sleep so a state flip never
		// costs more than one interval.
		if s.sessions.Phase(userID) != session.PhaseActive {
			return
		}
		if err := s.cycle(ctx, userID, log); err != nil {
			// A broken cycle never terminates the subscription.
			log.Error("cycle failed", "err", err)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context, userID int64, log *slog.Logger) error {
	subscribed, err := s.registry.IsSubscribed(ctx, userID)
	if err != nil {
		// Fail closed: an unreachable registry reads as unsubscribed.
		log.Error("subscription check failed", "err", err)
		subscribed = false
	}
	if !subscribed || !s.sessions.Subscribed(userID) {
		return nil
	}

	out := s.driver.Run(ctx, userID)
	s.sessions.SetLastMessage(userID, out.Message)
	s.sessions.SetSubscribed(userID, subscribed)

	if err := s.notifier.SendText(ctx, userID, out.Message); err != nil {
		return fmt.Errorf("deliver outcome: %w", err)
	}
	if err := s.notifier.SendText(ctx, userID, s.FollowUpNotice()); err != nil {
		return fmt.Errorf("deliver follow-up: %w", err)
	}
	return nil
}

// FollowUpNotice is the fixed notice sent after every outcome.
func (s *Scheduler) FollowUpNotice() string {
	return fmt.Sprintf("Next check in %s", s.interval)
}
