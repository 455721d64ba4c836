package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

var ErrClosed = errors.New("webhook closed")

// Webhook posts finished-match results to an external URL.
// MatchFinished only enqueues; Run delivers in the background so a slow receiver never
// holds up the move pipeline.
type Webhook struct {
	url   string
	token string
	http  *fasthttp.Client

	timeout     time.Duration
	retries     int
	backoffBase time.Duration

	queue chan matchdto.MatchResult
	once  sync.Once
	done  chan struct{}
}

type Option func(*Webhook)

func WithTimeout(d time.Duration) Option { return func(w *Webhook) { w.timeout = d } }

// WithRetry sets how many times a failed delivery is retried after the first attempt.
// Zero sends once; negative values are treated as zero.
func WithRetry(n int) Option { return func(w *Webhook) { w.retries = n } }

func WithBearerToken(tok string) Option {
	return func(w *Webhook) { w.token = strings.TrimSpace(tok) }
}

func WithQueueSize(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.queue = make(chan matchdto.MatchResult, n)
		}
	}
}

// WithBackoff sets the first retry delay; later retries double it.
func WithBackoff(d time.Duration) Option { return func(w *Webhook) { w.backoffBase = d } }

// WithHTTPClient replaces the fasthttp client, mainly for in-memory listeners in tests.
func WithHTTPClient(c *fasthttp.Client) Option { return func(w *Webhook) { w.http = c } }

func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:         strings.TrimSpace(url),
		http:        &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout:     5 * time.Second,
		retries:     3,
		backoffBase: 100 * time.Millisecond,
		queue:       make(chan matchdto.MatchResult, 256),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Result converts a finished match into the webhook payload.
func Result(m *match.Match) matchdto.MatchResult {
	r := matchdto.MatchResult{
		MatchID:       m.ID,
		WhitePlayerID: m.WhitePlayerID,
		BlackPlayerID: m.BlackPlayerID,
		WinnerID:      m.WinnerID,
		Reason:        string(m.EndReason),
		FEN:           m.Position,
		MoveHistory:   strings.TrimSpace(m.MoveHistory),
	}
	if m.FinishedAt != nil {
		r.FinishedAt = *m.FinishedAt
	}
	return r
}

// MatchFinished queues the result. A full queue drops it.
func (w *Webhook) MatchFinished(_ context.Context, m *match.Match) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.queue <- Result(m):
		return nil
	default:
		obslog.L().Warn("webhook_queue_full", zap.String("match_id", m.ID))
		return fmt.Errorf("webhook queue full: %s", m.ID)
	}
}

// Run delivers queued results until ctx ends or Close is called.
func (w *Webhook) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case r := <-w.queue:
			if err := w.Deliver(ctx, r); err != nil {
				obslog.L().Warn("webhook_deliver_error", zap.String("match_id", r.MatchID), zap.Error(err))
				continue
			}
			obslog.L().Debug("webhook_delivered", zap.String("match_id", r.MatchID))
		}
	}
}

func (w *Webhook) Close() { w.once.Do(func() { close(w.done) }) }

// Deliver posts one result, retrying transport errors and 5xx responses.
func (w *Webhook) Deliver(ctx context.Context, r matchdto.MatchResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(w.url)
	req.Header.SetContentType("application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	req.SetBody(payload)

	attempts := 1
	if w.retries > 0 {
		attempts += w.retries
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := w.http.DoDeadline(req, resp, w.deadline(ctx))
		switch {
		case err != nil:
			lastErr = fmt.Errorf("request failed: %w", err)
		case resp.StatusCode() < 200 || resp.StatusCode() >= 300:
			lastErr = fmt.Errorf("webhook status=%d body=%s", resp.StatusCode(), truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(resp.StatusCode()) {
				return lastErr
			}
		default:
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, w.backoff(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (w *Webhook) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(w.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func (w *Webhook) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * w.backoffBase
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
