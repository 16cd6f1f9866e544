package shelfsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	syncErrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/record"
)

// PlatformAdapter connects the coordinator to one reading platform.
// Implementations form a closed set checked at compile time; there is
// no base type with runtime "not implemented" errors.
type PlatformAdapter interface {
	// Platform returns the platform identifier used in sync requests
	// and storage keys.
	Platform() string

	// Fetch returns the platform's current book records.
	Fetch(ctx context.Context) ([]record.BookRecord, error)

	// Push writes reconciled records back to the platform.
	Push(ctx context.Context, records []record.BookRecord) error
}

// Compile-time checks for every supported variant.
var (
	_ PlatformAdapter = (*ReadmooAdapter)(nil)
	_ PlatformAdapter = (*StorageAdapter)(nil)
)

// These are the only platform identifiers NewAdapter accepts.
const (
	PlatformReadmoo = "readmoo"
	PlatformStorage = "storage"
)

// NewAdapter constructs the adapter for a supported platform. An
// unsupported platform is a validation failure, surfaced at request
// time rather than mid-sync.
func NewAdapter(platform string, storage Storage) (PlatformAdapter, error) {
	switch platform {
	case PlatformReadmoo:
		return NewReadmooAdapter(nil), nil
	case PlatformStorage:
		if storage == nil {
			return nil, syncErrors.NewValidationError(syncErrors.OpInitialize,
				fmt.Errorf("storage adapter requires a storage backend"))
		}
		return NewStorageAdapter(storage), nil
	default:
		return nil, syncErrors.NewValidationError(syncErrors.OpInitialize,
			fmt.Errorf("unsupported platform %q, supported: %v", platform, SupportedPlatforms()))
	}
}

// SupportedPlatforms returns the closed set of platform identifiers.
func SupportedPlatforms() []string {
	platforms := []string{PlatformReadmoo, PlatformStorage}
	sort.Strings(platforms)
	return platforms
}

// ReadmooAdapter holds a Readmoo library snapshot in memory. Fetch
// serves the snapshot; Push merges reconciled records back by id.
type ReadmooAdapter struct {
	mu      sync.RWMutex
	library map[string]record.BookRecord
}

func NewReadmooAdapter(seed []record.BookRecord) *ReadmooAdapter {
	a := &ReadmooAdapter{library: make(map[string]record.BookRecord, len(seed))}
	for _, r := range seed {
		a.library[r.ID] = r
	}
	return a
}

func (a *ReadmooAdapter) Platform() string { return PlatformReadmoo }

func (a *ReadmooAdapter) Fetch(ctx context.Context) ([]record.BookRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]record.BookRecord, 0, len(a.library))
	for _, r := range a.library {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *ReadmooAdapter) Push(ctx context.Context, records []record.BookRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range records {
		a.library[r.ID] = r
	}
	return nil
}

// StorageAdapter persists a platform library through the Storage
// interface, one JSON document per platform.
type StorageAdapter struct {
	storage Storage
}

func NewStorageAdapter(storage Storage) *StorageAdapter {
	return &StorageAdapter{storage: storage}
}

func (a *StorageAdapter) Platform() string { return PlatformStorage }

func (a *StorageAdapter) libraryKey() string {
	return fmt.Sprintf("%s_library", a.Platform())
}

func (a *StorageAdapter) Fetch(ctx context.Context) ([]record.BookRecord, error) {
	blob, err := a.storage.Get(ctx, a.libraryKey())
	if err != nil {
		// An empty platform is not an error, the first sync seeds it.
		return nil, nil
	}

	var out []record.BookRecord
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpStore,
			fmt.Errorf("corrupt library document: %w", err))
	}
	return out, nil
}

func (a *StorageAdapter) Push(ctx context.Context, records []record.BookRecord) error {
	blob, err := json.Marshal(records)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return a.storage.Set(ctx, a.libraryKey(), blob)
}
