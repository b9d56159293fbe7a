package live

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/Napageneral/rolodex/internal/config"
	"github.com/Napageneral/rolodex/internal/engine"
)

type WatcherSpec struct {
	Name string
	Run  func(ctx context.Context, beat func()) error
}

type Manager struct {
	Engine            *engine.Engine
	Config            *config.Config
	HeartbeatInterval time.Duration
	RestartBackoff    time.Duration
	Logf              func(format string, args ...any)
}

func NewManager(eng *engine.Engine, cfg *config.Config) *Manager {
	return &Manager{
		Engine:            eng,
		Config:            cfg,
		HeartbeatInterval: 10 * time.Second,
		RestartBackoff:    3 * time.Second,
		Logf:              log.Printf,
	}
}

func (m *Manager) db() *sql.DB { return m.Engine.Store.DB() }

func (m *Manager) Run(ctx context.Context) error {
	specs, err := m.BuildSpecs()
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("no live watchers enabled")
	}

	for _, spec := range specs {
		spec := spec
		go m.runWatcher(ctx, spec)
	}

	<-ctx.Done()
	return nil
}

func (m *Manager) runWatcher(ctx context.Context, spec WatcherSpec) {
	db := m.db()
	backoff := m.RestartBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := 30 * time.Second

	for {
		if ctx.Err() != nil {
			setLiveStatus(db, spec.Name, "stopped")
			return
		}

		setLiveStatus(db, spec.Name, "running")
		setLiveError(db, spec.Name, nil)
		setLiveHeartbeat(db, spec.Name, time.Now())

		beat := func() {
			setLiveHeartbeat(db, spec.Name, time.Now())
		}

		err := spec.Run(ctx, beat)
		if ctx.Err() != nil {
			setLiveStatus(db, spec.Name, "stopped")
			return
		}

		setLiveStatus(db, spec.Name, "error")
		setLiveError(db, spec.Name, err)
		incrementLiveRestarts(db, spec.Name)
		if err != nil {
			m.Logf("live watcher %s stopped: %v (restarting in %s)", spec.Name, err, backoff)
		} else {
			m.Logf("live watcher %s stopped (restarting in %s)", spec.Name, backoff)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			setLiveStatus(db, spec.Name, "stopped")
			return
		}

		backoff = backoff * 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (m *Manager) BuildSpecs() ([]WatcherSpec, error) {
	if m.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if m.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	dbPath, err := m.Config.DBPath()
	if err != nil {
		return nil, err
	}
	debounce := time.Duration(m.Config.Live.DebounceSeconds) * time.Second
	return []WatcherSpec{
		NewRescanWatcher(m.Engine, dbPath, m.Config.Live.Accounts, debounce, m.HeartbeatInterval, m.Logf),
	}, nil
}
