package main

// workspace.go: open editing sessions keyed by absolute path.

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bollu/elide-sub000/internal/config"
	"github.com/bollu/elide-sub000/internal/lean"
	"github.com/bollu/elide-sub000/internal/session"
)

// Starter opens a session for an absolute path.
type Starter func(path string) (*session.Session, error)

var errNotOpen = errors.New("document not open")

type workspace struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	start    Starter
	log      *zap.Logger

	// lastGoal is the goal view last shown per document, for deltas.
	lastGoal map[string]*lean.PlainGoal

	// tick is the polling interval while waiting on the server; timeout
	// bounds each wait.
	tick    time.Duration
	timeout time.Duration
}

// newWorkspace builds a workspace. A nil start launches a language server
// per document using cfg.
func newWorkspace(cfg config.Config, log *zap.Logger, start Starter) *workspace {
	if start == nil {
		start = func(path string) (*session.Session, error) {
			return session.Launch(path, cfg, log)
		}
	}
	tick := cfg.Editor.TickInterval.Duration
	if tick <= 0 {
		tick = config.Default().Editor.TickInterval.Duration
	}
	timeout := cfg.Editor.RequestTimeout.Duration
	if timeout <= 0 {
		timeout = config.Default().Editor.RequestTimeout.Duration
	}
	return &workspace{
		sessions: make(map[string]*session.Session),
		lastGoal: make(map[string]*lean.PlainGoal),
		start:    start,
		log:      log,
		tick:     tick,
		timeout:  timeout,
	}
}

// open starts a session for path and ticks it once so the server sees the
// document.
func (w *workspace) open(path string) (*session.Session, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sessions[key]; ok {
		return nil, fmt.Errorf("document already open: %s", path)
	}
	s, err := w.start(key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := s.Tick(); err != nil {
		return nil, multierr.Append(fmt.Errorf("open %s: %w", path, err), s.Close())
	}
	w.sessions[key] = s
	w.log.Info("opened document", zap.String("path", key), zap.Stringer("session", s.ID()))
	return s, nil
}

func (w *workspace) close(path string) error {
	key, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[key]
	if !ok {
		return fmt.Errorf("%w: %s", errNotOpen, path)
	}
	delete(w.sessions, key)
	delete(w.lastGoal, key)
	return s.Close()
}

// with runs fn on the session for path while holding the workspace lock.
func (w *workspace) with(path string, fn func(s *session.Session) error) error {
	key, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[key]
	if !ok {
		return fmt.Errorf("%w: %s", errNotOpen, path)
	}
	return fn(s)
}

// await ticks s until ids have replies or the workspace timeout passes.
func (w *workspace) await(ctx context.Context, s *session.Session, ids ...lean.RequestID) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return s.AwaitReplies(ctx, w.tick, ids...)
}

// awaitElaborated ticks s until the server finished the current version.
// It reports false when the wait timed out.
func (w *workspace) awaitElaborated(ctx context.Context, s *session.Session) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	_, err := session.Await(ctx, s, w.tick, func() (struct{}, bool) {
		return struct{}{}, s.Elaborated()
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return err == nil, err
}

func (w *workspace) paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.sessions))
	for p := range w.sessions {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// shutdown closes every session.
func (w *workspace) shutdown() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	for p, s := range w.sessions {
		err = multierr.Append(err, s.Close())
		delete(w.sessions, p)
		delete(w.lastGoal, p)
	}
	return err
}
