package discord

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// commandCache remembers the hash of every command registered per guild so
// unchanged definitions are not re-sent on each start.
type commandCache struct {
	dir string
}

func (c commandCache) path(guildID string) string {
	return filepath.Join(c.dir, guildID+".json")
}

// load returns an empty map when nothing was cached yet.
func (c commandCache) load(guildID string) map[string]string {
	hashes := make(map[string]string)
	data, err := os.ReadFile(c.path(guildID))
	if err == nil {
		_ = json.Unmarshal(data, &hashes)
	}
	return hashes
}

func (c commandCache) save(guildID string, hashes map[string]string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(guildID), data, 0o644)
}
