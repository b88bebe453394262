// Package session runs the long-lived stdio protocol a host agent uses to
// submit tool calls, answer confirmations and receive notifications.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gzhole/guardrails/internal/analyzer"
	"github.com/gzhole/guardrails/internal/approval"
	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/events"
	"github.com/gzhole/guardrails/internal/policy"
	"github.com/gzhole/guardrails/internal/warnings"
)

const maxLineBytes = 4 << 20

type Options struct {
	Logger *slog.Logger
	// Notifiers receive every event in addition to the host.
	Notifiers []events.Notifier
	// Watch reloads the policy when either config file changes.
	Watch bool
}

// Session serves one host connection. It is the engine's confirmer (a
// confirm request to the host) and one of its notifiers.
type Session struct {
	resolver *config.Resolver
	queue    *warnings.Queue
	engine   *policy.Engine
	log      *slog.Logger
	watch    bool

	wmu sync.Mutex
	enc *json.Encoder

	pmu     sync.Mutex
	pending map[string]chan bool
	closed  bool
	started bool

	calls sync.WaitGroup
}

func New(resolver *config.Resolver, queue *warnings.Queue, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if queue == nil {
		queue = warnings.NewQueue()
	}
	s := &Session{
		resolver: resolver,
		queue:    queue,
		log:      opts.Logger,
		watch:    opts.Watch,
		pending:  make(map[string]chan bool),
	}
	notifiers := append(events.Multi{s}, opts.Notifiers...)
	s.engine = policy.NewEngine(resolver.Policy(), policy.Options{
		Analyzer:  analyzer.NewStructuralAnalyzer(0),
		Confirmer: approval.NewController(s, s.log),
		Notifier:  notifiers,
		Warnings:  queue,
		Logger:    s.log,
	})
	return s
}

// Engine returns the session's evaluator.
func (s *Session) Engine() *policy.Engine { return s.engine }

// Run serves requests from r and writes responses to w until r is
// exhausted or ctx ends. Tool calls are evaluated concurrently so a call
// waiting on a confirmation does not stall the reader; prompts are still
// shown one at a time. At end of input every open confirmation is denied
// and Run returns once all decisions are written.
func (s *Session) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	s.wmu.Lock()
	s.enc = json.NewEncoder(w)
	s.wmu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		err := s.readLoop(gctx, r)
		s.denyPending()
		s.calls.Wait()
		return err
	})
	if s.watch {
		g.Go(func() error {
			s.watchConfig(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (s *Session) readLoop(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("ignoring malformed message", "error", err)
			s.Notify(fmt.Sprintf("[guardrails] ignoring malformed message: %v", err), events.Warning)
			continue
		}
		s.handle(ctx, req)
		if ctx.Err() != nil {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read session input: %w", err)
	}
	return nil
}

func (s *Session) handle(ctx context.Context, req Request) {
	switch req.Type {
	case TypeSessionStart:
		s.pmu.Lock()
		s.started = true
		s.pmu.Unlock()
		s.flushWarnings()
	case TypeToolCall:
		ev, err := req.Event()
		if err != nil {
			// A malformed call gets no opinion rather than a block.
			s.log.Warn("malformed tool call", "id", req.ID, "error", err)
			s.send(decisionMessage{Type: TypeDecision, ID: req.ID})
			return
		}
		s.calls.Add(1)
		go func() {
			defer s.calls.Done()
			d := s.engine.Evaluate(ctx, ev)
			s.send(decisionMessage{
				Type:       TypeDecision,
				ID:         req.ID,
				Block:      d.Block,
				Reason:     d.Reason,
				Feature:    d.Feature,
				UserDenied: d.UserDenied,
			})
		}()
	case TypeConfirmResult:
		s.resolve(req.ID, req.Allow)
	case TypeReload:
		s.Reload()
	default:
		s.log.Warn("unknown message type", "type", req.Type)
	}
}

// Reload re-reads both config documents and swaps in the new policy.
func (s *Session) Reload() {
	p := s.resolver.Load()
	s.engine.SetPolicy(p)
	s.log.Info("policy reloaded", "version", p.Version)
	s.flushWarnings()
}

// flushWarnings forwards queued warnings to the host once the session has
// started; before that they stay queued.
func (s *Session) flushWarnings() {
	s.pmu.Lock()
	started := s.started
	s.pmu.Unlock()
	if !started {
		return
	}
	for _, msg := range s.queue.Drain() {
		s.Notify(msg, events.Warning)
	}
}

func (s *Session) send(v any) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.enc == nil {
		return
	}
	if err := s.enc.Encode(v); err != nil {
		s.log.Error("write to host failed", "error", err)
	}
}

// Confirm asks the host and waits for the matching confirm_result.
func (s *Session) Confirm(ctx context.Context, p approval.Prompt) (approval.Outcome, error) {
	id := uuid.NewString()
	ch := make(chan bool, 1)

	s.pmu.Lock()
	if s.closed {
		s.pmu.Unlock()
		return approval.Deny, nil
	}
	s.pending[id] = ch
	s.pmu.Unlock()

	s.send(confirmMessage{
		Type:        TypeConfirm,
		ID:          id,
		ToolName:    p.ToolName,
		Command:     p.Command,
		Description: p.Description,
	})

	select {
	case allow, ok := <-ch:
		if ok && allow {
			return approval.Allow, nil
		}
		return approval.Deny, nil
	case <-ctx.Done():
		s.pmu.Lock()
		delete(s.pending, id)
		s.pmu.Unlock()
		return approval.Deny, ctx.Err()
	}
}

func (s *Session) resolve(id string, allow bool) {
	s.pmu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.pmu.Unlock()
	if !ok {
		s.log.Warn("confirm_result for unknown prompt", "id", id)
		return
	}
	ch <- allow
}

// denyPending closes every open prompt; closed channels read as deny.
func (s *Session) denyPending() {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Session) Dangerous(e events.DangerousEvent) {
	s.send(eventMessage{
		Type:        TypeEvent,
		Event:       "dangerous",
		ToolName:    e.ToolName,
		Command:     e.Command,
		Pattern:     e.Pattern,
		Description: e.Description,
	})
}

func (s *Session) Blocked(e events.BlockedEvent) {
	s.send(eventMessage{
		Type:       TypeEvent,
		Event:      "blocked",
		ToolName:   e.ToolName,
		Feature:    e.Feature,
		Reason:     e.Reason,
		UserDenied: e.UserDenied,
	})
}

func (s *Session) Notify(message string, severity events.Severity) {
	s.send(notifyMessage{Type: TypeNotify, Message: message, Severity: string(severity)})
}
