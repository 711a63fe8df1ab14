package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"copydesk/internal/analysis"

	"github.com/cenkalti/backoff/v4"
)

type Sender interface {
	Send(ctx context.Context, payload analysis.Payload) (analysis.RawResponse, error)
}

// StatusError is implemented by transport errors that carry an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

type Observer interface {
	ObserveAttempt(outcome string)
	ObserveOutcome(kind string)
}

// Policy waits BaseDelay*Multiplier^k after the k-th (0-indexed) failed attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Delay returns the wait after the given 0-indexed failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
}

func (p Policy) backOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Delay(p.MaxAttempts),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		if p.Multiplier <= 0 {
			p.Multiplier = 1
		}
		s.policy = p
	}
}

// WithTimerFactory replaces the wall-clock timer used between attempts.
// A new timer is created per submission.
func WithTimerFactory(newTimer func() backoff.Timer) Option {
	return func(s *Service) {
		s.newTimer = newTimer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

type Service struct {
	sender   Sender
	policy   Policy
	timeout  time.Duration
	newTimer func() backoff.Timer
	logger   *slog.Logger
	observer Observer
}

func New(sender Sender, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		sender:  sender,
		policy:  DefaultPolicy(),
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit runs one analysis: build, send with retry, parse. It returns exactly
// one of a result or an *analysis.Error.
func (s *Service) Submit(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	result, err := s.submit(ctx, req)
	if s.observer != nil {
		kind := "success"
		if err != nil {
			kind = string(analysis.KindOf(err))
			if kind == "" {
				kind = "canceled"
			}
		}
		s.observer.ObserveOutcome(kind)
	}
	return result, err
}

func (s *Service) submit(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	payload, err := analysis.Build(req)
	if err != nil {
		return analysis.Result{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.send(ctx, payload)
	if err != nil {
		return analysis.Result{}, err
	}

	result, err := analysis.Parse(raw.Text)
	if err != nil {
		s.logger.Error("analysis response malformed", "error", err, "raw", truncate(raw.Text))
		return analysis.Result{}, err
	}
	return result, nil
}

func (s *Service) send(ctx context.Context, payload analysis.Payload) (analysis.RawResponse, error) {
	var (
		attempts int
		resp     analysis.RawResponse
	)

	operation := func() error {
		attempts++
		r, err := s.sender.Send(ctx, payload)
		if err != nil {
			s.observeAttempt("transport_failure")
			return transportFailure(err)
		}
		if r.Blocked() {
			s.observeAttempt("safety_blocked")
			return backoff.Permanent(&analysis.Error{
				Kind:    analysis.KindSafetyBlocked,
				Message: "blocked by content safety filter",
				Raw:     blockDetail(r),
			})
		}
		if r.Text == "" {
			s.observeAttempt("empty_response")
			return &analysis.Error{Kind: analysis.KindEmptyResponse, Message: "empty response from model", Raw: r.FinishReason}
		}
		s.observeAttempt("success")
		resp = r
		return nil
	}

	notify := func(err error, next time.Duration) {
		s.logger.Warn("analysis attempt failed",
			"attempt", attempts,
			"max_attempts", s.policy.MaxAttempts,
			"next_delay_ms", next.Milliseconds(),
			"kind", analysis.KindOf(err),
			"error", err,
		)
	}

	var timer backoff.Timer
	if s.newTimer != nil {
		timer = s.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(s.policy.backOff(), ctx), notify, timer)
	if err == nil {
		return resp, nil
	}

	var perr *analysis.Error
	if !errors.As(err, &perr) {
		// context ended while waiting between attempts
		return analysis.RawResponse{}, &analysis.Error{
			Kind:     analysis.KindTransportFailure,
			Message:  "analysis request interrupted",
			Attempts: attempts,
			Cause:    err,
		}
	}
	if perr.Kind != analysis.KindSafetyBlocked {
		perr.Attempts = attempts
	}
	s.logger.Error("analysis request failed", "kind", perr.Kind, "attempts", attempts, "status", perr.StatusCode, "error", err)
	return analysis.RawResponse{}, perr
}

func (s *Service) observeAttempt(outcome string) {
	if s.observer != nil {
		s.observer.ObserveAttempt(outcome)
	}
}

func transportFailure(err error) *analysis.Error {
	e := &analysis.Error{
		Kind:    analysis.KindTransportFailure,
		Message: "upstream request failed",
		Cause:   err,
	}
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		e.StatusCode = statusErr.HTTPStatus()
	}
	return e
}

func blockDetail(r analysis.RawResponse) string {
	if r.BlockReason != "" {
		return "block_reason=" + r.BlockReason
	}
	return "finish_reason=" + r.FinishReason
}

func truncate(s string) string {
	if len(s) <= 2048 {
		return s
	}
	return s[:2048] + "..."
}
