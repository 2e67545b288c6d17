package notify

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"duebot/internal/transport"
	logx "duebot/pkg/logx"
)

var (
	ErrDisabled = errors.New("notify: disabled")
	ErrNoTarget = errors.New("notify: no target channel")
)

// UsersFunc returns the ids of users who opted in to pings.
type UsersFunc func() []string

// Service implements Notifier over a transport adapter: rate limit, bounded
// retries with jittered backoff and a per-send timeout.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	target  transport.ChatTarget

	adapter transport.Adapter
	users   UsersFunc
	log     logx.Logger

	hmu     sync.Mutex
	history []HistoryItem
	stats   Stats
}

func New(cfg Config, target transport.ChatTarget, adapter transport.Adapter, users UsersFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		users:   users,
		target:  target,
		log:     log.With(logx.String("comp", "notify")),
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Target() transport.ChatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Notify renders msg and sends it, retrying transient failures. It returns
// the last error once all attempts are used.
func (s *Service) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	to := s.target
	ad := s.adapter
	s.mu.Unlock()

	if !cfg.Enabled || ad == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(to.ChatID) == "" {
		return ErrNoTarget
	}

	card := s.render(msg, cfg)
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := ad.SendCard(callCtx, to, card, nil)
		cancel()
		if err == nil {
			s.record(msg, nil)
			return nil
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.record(msg, ctx.Err())
			return ctx.Err()
		}
	}

	s.record(msg, lastErr)
	s.log.Warn("notification not delivered",
		logx.String("kind", string(msg.Kind)),
		logx.String("title", msg.Title),
		logx.Err(lastErr),
	)
	return lastErr
}

func (s *Service) render(msg Message, cfg Config) transport.Card {
	card := transport.Card{
		Content:     msg.Content,
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
		Footer:      msg.Footer,
		Timestamp:   msg.Timestamp,
	}
	for _, f := range msg.Fields {
		card.Fields = append(card.Fields, transport.CardField{Name: f.Name, Value: f.Value, URL: f.URL, Inline: f.Inline})
	}
	if msg.Mention {
		m := &transport.Mention{RoleID: strings.TrimSpace(cfg.RoleID)}
		if s.users != nil {
			m.UserIDs = s.users()
		}
		if !m.Empty() {
			card.Mention = m
		}
	}
	return card
}

func (s *Service) record(msg Message, err error) {
	it := HistoryItem{At: time.Now(), Kind: msg.Kind, Title: msg.Title}
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if err != nil {
		it.Err = err.Error()
		s.stats.Failed++
	} else {
		s.stats.Sent++
	}
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) Stats() Stats {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return s.stats
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	maxD := cfg.RetryMaxDelay
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
