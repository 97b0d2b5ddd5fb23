package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/pipehunter/internal/mailbox"
)

const errorBackoff = 60 * time.Second

// Poller periodically fetches the monitored inbox and hands each message to
// the email processor, sequentially within a tick so dedup stays race-free.
// A failing tick is logged and retried after a backoff; the loop never dies.
type Poller struct {
	mailbox   mailbox.Client
	processor *EmailProcessor
	interval  time.Duration
	backoff   time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(client mailbox.Client, processor *EmailProcessor, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		mailbox:   client,
		processor: processor,
		interval:  interval,
		backoff:   errorBackoff,
		logger:    logger,
	}
}

// Start launches the polling loop. Calling Start on a running poller is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx)
	p.logger.Info("email polling started", "interval", p.interval)
}

// Stop cancels the polling loop cooperatively and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("email polling stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	since := time.Now().Add(-p.interval)
	for {
		tickStart := time.Now()
		if err := p.tick(ctx, since); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("email poll tick failed", "error", err)
			if !sleepOrDone(ctx, p.backoff) {
				return
			}
			continue
		}

		since = tickStart
		if !sleepOrDone(ctx, p.interval) {
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context, since time.Time) error {
	messages, err := p.mailbox.Fetch(ctx, since)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	p.logger.Debug("fetched inbox messages", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.processor.ProcessMessage(ctx, msg); err != nil {
			// Per-message failures never kill the tick for the rest.
			p.logger.Error("email processing failed", "uid", msg.UID, "error", err)
		}
	}
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
