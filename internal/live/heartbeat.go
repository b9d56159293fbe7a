package live

import (
	"context"
	"sync"
	"time"
)

// heartbeat marks a watcher alive on a fixed interval until its context ends
// or it is stopped. It beats once immediately.
type heartbeat struct {
	watcher  string
	interval time.Duration
	beat     func()
	logf     func(format string, args ...any)

	once  sync.Once
	stop  chan struct{}
	done  chan struct{}
	beats int
}

func startHeartbeat(ctx context.Context, watcher string, interval time.Duration, beat func(), logf func(format string, args ...any)) *heartbeat {
	h := &heartbeat{
		watcher:  watcher,
		interval: interval,
		beat:     beat,
		logf:     logf,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if h.logf == nil {
		h.logf = func(string, ...any) {}
	}
	if interval <= 0 || beat == nil {
		close(h.done)
		return h
	}
	go h.run(ctx)
	return h
}

func (h *heartbeat) run(ctx context.Context) {
	defer close(h.done)
	h.tick()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.tick()
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		}
	}
}

func (h *heartbeat) tick() {
	h.beat()
	h.beats++
}

// Stop ends the heartbeat and waits for it. It is safe to call more than once.
func (h *heartbeat) Stop() int {
	h.once.Do(func() { close(h.stop) })
	<-h.done
	if h.beats > 0 {
		h.logf("%s: heartbeat stopped after %d beats", h.watcher, h.beats)
	}
	return h.beats
}
