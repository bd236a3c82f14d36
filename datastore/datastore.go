package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotInteger is returned by Incr when the stored value is not a base-10 integer.
var ErrNotInteger = errors.New("value is not an integer")

// Config holds configuration options for the DataStore
type Config struct {
	FilePath         string // empty = memory only, nothing is written to disk
	AutoSaveInterval time.Duration
	MaxMemorySize    int64 // Maximum memory usage in bytes (0 = unlimited)
	BackupCount      int   // Number of backup files to keep
	Logger           zerolog.Logger
	Now              func() time.Time
}

// DefaultConfig returns a default configuration
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
		MaxMemorySize:    100 * 1024 * 1024, // 100MB
		BackupCount:      3,
		Logger:           zerolog.Nop(),
		Now:              time.Now,
	}
}

// Entry is a stored value with an optional absolute expiry in unix milliseconds.
type Entry struct {
	Value     string `json:"v"`
	ExpiresAt int64  `json:"e,omitempty"`
}

func (e Entry) expired(nowMs int64) bool {
	return e.ExpiresAt != 0 && nowMs >= e.ExpiresAt
}

type DataStore struct {
	data         map[string]Entry   // in-memory data storage
	file         string             // file path for persistent storage
	mu           sync.RWMutex       // mutex for thread-safe access
	ctx          context.Context    // context for cancellation
	cancel       context.CancelFunc // cancel function
	wg           sync.WaitGroup     // wait group for graceful shutdown
	config       *Config            // configuration
	memorySize   int64              // approximate memory usage
	saveMu       sync.Mutex         // serialises saves; guards lastChecksum
	lastChecksum string             // checksum of last saved data
	closed       bool               // flag to indicate if store is closed
	closeMu      sync.RWMutex       // mutex for close flag
}

// New creates a new DataStore with default configuration
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig creates a new DataStore with custom configuration
func NewWithConfig(config *Config) (*DataStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.AutoSaveInterval <= 0 {
		config.AutoSaveInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &DataStore{
		data:   make(map[string]Entry),
		file:   config.FilePath,
		ctx:    ctx,
		cancel: cancel,
		config: config,
	}

	if store.file == "" {
		return store, nil
	}

	// Ensure directory exists
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Initialize empty file if it doesn't exist
	if _, err := os.Stat(config.FilePath); os.IsNotExist(err) {
		if err := store.writeFileAtomic([]byte("{}")); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create empty JSON file: %w", err)
		}
	} else if err == nil {
		if err := store.loadFromFile(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to load data from file: %w", err)
		}
	} else {
		cancel()
		return nil, fmt.Errorf("failed to check file existence: %w", err)
	}

	store.wg.Add(1)
	go store.autoSave()

	return store, nil
}

func (ds *DataStore) isClosed() bool {
	ds.closeMu.RLock()
	defer ds.closeMu.RUnlock()
	return ds.closed
}

func (ds *DataStore) nowMs() int64 {
	return ds.config.Now().UnixMilli()
}

// Set stores a value. ttl <= 0 stores it without expiry.
func (ds *DataStore) Set(key, value string, ttl time.Duration) error {
	if ds.isClosed() {
		return fmt.Errorf("datastore is closed")
	}

	entry := Entry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = ds.nowMs() + ttl.Milliseconds()
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.put(key, entry)
}

// put must be called with mu held.
func (ds *DataStore) put(key string, entry Entry) error {
	oldSize := int64(len(ds.data[key].Value))
	newSize := int64(len(entry.Value))

	if ds.config.MaxMemorySize > 0 {
		newMemorySize := ds.memorySize - oldSize + newSize
		if newMemorySize > ds.config.MaxMemorySize {
			return fmt.Errorf("memory limit would be exceeded")
		}
	}
	ds.memorySize += newSize - oldSize
	ds.data[key] = entry
	return nil
}

// Get retrieves a live value by key. Expired entries are reported as absent
// and removed on the way out.
func (ds *DataStore) Get(key string) (string, bool) {
	if ds.isClosed() {
		return "", false
	}

	now := ds.nowMs()
	ds.mu.RLock()
	entry, exists := ds.data[key]
	ds.mu.RUnlock()
	if !exists {
		return "", false
	}
	if entry.expired(now) {
		ds.mu.Lock()
		if cur, ok := ds.data[key]; ok && cur.expired(now) {
			ds.remove(key)
		}
		ds.mu.Unlock()
		return "", false
	}
	return entry.Value, true
}

// Incr atomically adds one to the integer stored at key. A missing key counts
// as zero; the existing expiry is kept.
func (ds *DataStore) Incr(key string) (int64, error) {
	if ds.isClosed() {
		return 0, fmt.Errorf("datastore is closed")
	}

	now := ds.nowMs()
	ds.mu.Lock()
	defer ds.mu.Unlock()

	entry, exists := ds.data[key]
	if exists && entry.expired(now) {
		entry, exists = Entry{}, false
	}

	var n int64
	if exists {
		v, err := strconv.ParseInt(entry.Value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("incr %q: %w", key, ErrNotInteger)
		}
		n = v
	}
	n++
	entry.Value = strconv.FormatInt(n, 10)
	if err := ds.put(key, entry); err != nil {
		return 0, err
	}
	return n, nil
}

// Expire sets a new ttl on an existing live key. It reports whether the key existed.
func (ds *DataStore) Expire(key string, ttl time.Duration) bool {
	if ds.isClosed() {
		return false
	}

	now := ds.nowMs()
	ds.mu.Lock()
	defer ds.mu.Unlock()

	entry, exists := ds.data[key]
	if !exists || entry.expired(now) {
		return false
	}
	if ttl <= 0 {
		ds.remove(key)
		return true
	}
	entry.ExpiresAt = now + ttl.Milliseconds()
	ds.data[key] = entry
	return true
}

// TTL returns the remaining lifetime of key. ok is false when the key is
// absent or already expired; hasExpiry is false for persistent keys.
func (ds *DataStore) TTL(key string) (remaining time.Duration, hasExpiry bool, ok bool) {
	if ds.isClosed() {
		return 0, false, false
	}

	now := ds.nowMs()
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	entry, exists := ds.data[key]
	if !exists || entry.expired(now) {
		return 0, false, false
	}
	if entry.ExpiresAt == 0 {
		return 0, false, true
	}
	return time.Duration(entry.ExpiresAt-now) * time.Millisecond, true, true
}

// Delete removes key-value pairs and returns how many were live.
func (ds *DataStore) Delete(keys ...string) int {
	if ds.isClosed() {
		return 0
	}

	now := ds.nowMs()
	ds.mu.Lock()
	defer ds.mu.Unlock()

	n := 0
	for _, key := range keys {
		if entry, exists := ds.data[key]; exists {
			if !entry.expired(now) {
				n++
			}
			ds.remove(key)
		}
	}
	return n
}

// remove must be called with mu held.
func (ds *DataStore) remove(key string) {
	ds.memorySize -= int64(len(ds.data[key].Value))
	delete(ds.data, key)
}

// Keys returns live keys accepted by match, sorted.
func (ds *DataStore) Keys(match func(string) bool) []string {
	if ds.isClosed() {
		return nil
	}

	now := ds.nowMs()
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	out := make([]string, 0)
	for k, entry := range ds.data {
		if entry.expired(now) {
			continue
		}
		if match == nil || match(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Reap physically drops expired entries and returns how many were removed.
func (ds *DataStore) Reap() int {
	now := ds.nowMs()
	ds.mu.Lock()
	defer ds.mu.Unlock()

	n := 0
	for k, entry := range ds.data {
		if entry.expired(now) {
			ds.remove(k)
			n++
		}
	}
	return n
}

// Close gracefully shuts down the DataStore
func (ds *DataStore) Close() error {
	ds.closeMu.Lock()
	if ds.closed {
		ds.closeMu.Unlock()
		return nil
	}
	ds.closed = true
	ds.closeMu.Unlock()

	ds.cancel()
	ds.wg.Wait()

	return ds.saveToFile()
}

// saveToFile saves data to disk with atomic write and integrity checking
func (ds *DataStore) saveToFile() error {
	if ds.file == "" {
		return nil
	}

	ds.saveMu.Lock()
	defer ds.saveMu.Unlock()

	ds.Reap()

	ds.mu.RLock()
	data, err := json.MarshalIndent(ds.data, "", "  ")
	ds.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	checksum := ds.calculateChecksum(data)

	// Skip save if data hasn't changed
	if checksum == ds.lastChecksum {
		return nil
	}

	if ds.config.BackupCount > 0 {
		if err := ds.createBackup(); err != nil {
			ds.config.Logger.Warn().Err(err).Msg("failed to create backup")
		}
	}

	if err := ds.writeFileAtomic(data); err != nil {
		return err
	}

	if err := ds.verifyFile(data); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}

	ds.lastChecksum = checksum
	return nil
}

// loadFromFile loads data from disk with validation
func (ds *DataStore) loadFromFile() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	data, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var temp map[string]Entry
	if err := json.Unmarshal(data, &temp); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	if temp == nil {
		temp = make(map[string]Entry)
	}

	ds.data = temp
	ds.memorySize = ds.calculateMemoryUsage()
	ds.lastChecksum = ds.calculateChecksum(data)

	return nil
}

// writeFileAtomic performs atomic file write using temporary file and rename
func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmpFile := ds.file + ".tmp"

	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	file, err := os.OpenFile(tmpFile, os.O_RDWR, 0644)
	if err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to open temp file for sync: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	file.Close()

	if err := os.Rename(tmpFile, ds.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// verifyFile verifies that the written file matches expected data
func (ds *DataStore) verifyFile(expectedData []byte) error {
	actualData, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("failed to read file for verification: %w", err)
	}

	if ds.calculateChecksum(actualData) != ds.calculateChecksum(expectedData) {
		return fmt.Errorf("file checksum mismatch")
	}

	return nil
}

// createBackup creates a timestamped backup of the current file
func (ds *DataStore) createBackup() error {
	if _, err := os.Stat(ds.file); os.IsNotExist(err) {
		return nil
	}

	timestamp := ds.config.Now().Format("20060102_150405.000")
	backupFile := fmt.Sprintf("%s.backup.%s", ds.file, timestamp)

	src, err := os.Open(ds.file)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(backupFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	ds.cleanupOldBackups()

	return nil
}

// cleanupOldBackups removes old backup files beyond the configured limit
func (ds *DataStore) cleanupOldBackups() {
	matches, err := filepath.Glob(ds.file + ".backup.*")
	if err != nil || len(matches) <= ds.config.BackupCount {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}

	var files []fileInfo
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil {
			files = append(files, fileInfo{match, info.ModTime()})
		}
	}

	// oldest first
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for i := 0; i < len(files)-ds.config.BackupCount; i++ {
		os.Remove(files[i].path)
	}
}

// autoSave runs the periodic save routine
func (ds *DataStore) autoSave() {
	defer ds.wg.Done()

	ticker := time.NewTicker(ds.config.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ds.ctx.Done():
			return
		case <-ticker.C:
			if err := ds.saveToFile(); err != nil {
				ds.config.Logger.Error().Err(err).Msg("auto-save failed")
			}
		}
	}
}

// calculateChecksum computes SHA-256 checksum of data
func (ds *DataStore) calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// calculateMemoryUsage calculates total memory usage
func (ds *DataStore) calculateMemoryUsage() int64 {
	var total int64
	for _, entry := range ds.data {
		total += int64(len(entry.Value))
	}
	return total
}

// Stats describes the store's current contents.
type Stats struct {
	Keys       int
	MemorySize int64 // bytes of stored values
	FilePath   string
	Saved      bool // at least one snapshot written or loaded
}

// Stats reports key count, value size and persistence state.
func (ds *DataStore) Stats() Stats {
	ds.mu.RLock()
	st := Stats{Keys: len(ds.data), MemorySize: ds.memorySize, FilePath: ds.file}
	ds.mu.RUnlock()

	ds.saveMu.Lock()
	st.Saved = ds.lastChecksum != ""
	ds.saveMu.Unlock()
	return st
}
