package live

import (
	"database/sql"
)

type WatcherStatus struct {
	Watcher       string `json:"watcher"`
	Status        string `json:"status,omitempty"`
	LastHeartbeat *int64 `json:"last_heartbeat,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	Restarts      int    `json:"restarts,omitempty"`
}

// GetStatuses reports the recorded state of every watcher the manager runs.
func GetStatuses(db *sql.DB) []WatcherStatus {
	var out []WatcherStatus
	for _, name := range []string{rescanName} {
		status, lastHeartbeat, lastError, restarts := readLiveStatus(db, name)
		out = append(out, WatcherStatus{
			Watcher:       name,
			Status:        status,
			LastHeartbeat: lastHeartbeat,
			LastError:     lastError,
			Restarts:      restarts,
		})
	}
	return out
}
