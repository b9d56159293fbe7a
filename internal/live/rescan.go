package live

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/engine"
)

const rescanName = "dedupe"

// rescanner reruns the duplicate scan when the record tables change.
type rescanner struct {
	eng      *engine.Engine
	accounts []accounts.Ref
	logf     func(format string, args ...any)

	mu   sync.Mutex
	last string
}

// scan runs one duplicate scan unless the store fingerprint is unchanged
// since the previous one. It reports whether a scan ran.
func (r *rescanner) scan(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp, err := r.eng.Store.Fingerprint(ctx)
	if err != nil {
		return false, err
	}
	if fp == r.last {
		return false, nil
	}
	res, err := r.eng.FindDuplicates(ctx, r.accounts)
	if err != nil {
		return true, err
	}
	if !res.Cancelled {
		r.last = fp
	}
	members := 0
	for _, g := range res.Groups {
		members += len(g.Members)
	}
	r.logf("[%s] Scanned %d accounts: %d duplicate groups (%d records), %d buckets skipped",
		time.Now().Format("15:04:05"),
		res.AccountsScanned,
		len(res.Groups),
		members,
		res.BucketsSkipped,
	)
	return true, nil
}

// NewRescanWatcher watches the directory of dbPath and rescans for
// duplicates once writes to the database settle for debounce.
func NewRescanWatcher(eng *engine.Engine, dbPath string, refs []accounts.Ref, debounce time.Duration, heartbeatInterval time.Duration, logf func(format string, args ...any)) WatcherSpec {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	r := &rescanner{eng: eng, accounts: refs, logf: logf}

	return WatcherSpec{
		Name: rescanName,
		Run: func(ctx context.Context, beat func()) error {
			dir := filepath.Dir(dbPath)
			base := filepath.Base(dbPath)

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}

			logf("Watching for record changes in %s (debounce: %s)", dir, debounce)

			hb := startHeartbeat(ctx, rescanName, heartbeatInterval, beat, logf)
			defer hb.Stop()

			runScan := func() {
				if ctx.Err() != nil {
					return
				}
				beat()
				if _, err := r.scan(ctx); err != nil {
					logf("watch scan error: %v", err)
				}
			}

			logf("[%s] Running initial scan...", time.Now().Format("15:04:05"))
			runScan()

			var debounceTimer *time.Timer
			defer func() {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
			}()
			triggerScan := func() {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, runScan)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if strings.HasPrefix(filepath.Base(event.Name), base) {
						triggerScan()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logf("watch error: %v", err)
				}
			}
		},
	}
}
