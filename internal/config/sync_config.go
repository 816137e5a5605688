package config

import "path/filepath"

type SyncConfig interface {
	GetSyncChannelName() string
	GetSyncStatePath() string
}

type Sync struct{}

var _ SyncConfig = Sync{}

func (Sync) GetSyncChannelName() string {
	return "turnstile_auth_sync"
}

// GetSyncStatePath is the shared state file used as the storage-event
// fallback channel between processes, named after the sync channel so
// every process watching the channel lands on the same file.
func (s Sync) GetSyncStatePath() string {
	return filepath.Join(EnvVars{}.GetDataFolder(), s.GetSyncChannelName()+".json")
}
