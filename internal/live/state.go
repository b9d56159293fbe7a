package live

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/Napageneral/rolodex/internal/state"
)

const (
	keyLiveStatus        = "live_status"
	keyLiveLastHeartbeat = "live_last_heartbeat"
	keyLiveLastError     = "live_last_error"
	keyLiveRestarts      = "live_restarts"
)

func liveComponent(watcher string) string { return "live:" + watcher }

func setLiveStatus(db *sql.DB, watcher string, status string) {
	_ = state.Set(db, liveComponent(watcher), keyLiveStatus, status)
}

func setLiveHeartbeat(db *sql.DB, watcher string, t time.Time) {
	_ = state.Set(db, liveComponent(watcher), keyLiveLastHeartbeat, fmt.Sprintf("%d", t.Unix()))
}

func setLiveError(db *sql.DB, watcher string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = state.Set(db, liveComponent(watcher), keyLiveLastError, msg)
}

func incrementLiveRestarts(db *sql.DB, watcher string) {
	v, ok, err := state.Get(db, liveComponent(watcher), keyLiveRestarts)
	if err != nil {
		return
	}
	cur := 0
	if ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cur = n
		}
	}
	_ = state.Set(db, liveComponent(watcher), keyLiveRestarts, fmt.Sprintf("%d", cur+1))
}

func readLiveStatus(db *sql.DB, watcher string) (status string, lastHeartbeat *int64, lastError string, restarts int) {
	if v, ok, _ := state.Get(db, liveComponent(watcher), keyLiveStatus); ok {
		status = v
	}
	if v, ok, _ := state.Get(db, liveComponent(watcher), keyLiveLastHeartbeat); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastHeartbeat = &n
		}
	}
	if v, ok, _ := state.Get(db, liveComponent(watcher), keyLiveLastError); ok {
		lastError = v
	}
	if v, ok, _ := state.Get(db, liveComponent(watcher), keyLiveRestarts); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			restarts = n
		}
	}
	return status, lastHeartbeat, lastError, restarts
}
