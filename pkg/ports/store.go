package ports

import "context"

// Storage is the key/value backend behind the persistence manager. Values
// are opaque encoded envelopes or checkpoints.
type Storage interface {
	// Save writes data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Load reads the value stored under key.
	// Returns domain.ErrNotFound if the key does not exist.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Stats reports usage of the backend.
	Stats(ctx context.Context) (StorageStats, error)

	// Clear removes every key owned by the backend.
	Clear(ctx context.Context) error
}

// StorageStats describes a backend's content.
type StorageStats struct {
	Backend string `json:"backend"`
	Keys    int    `json:"keys"`
	Bytes   int64  `json:"bytes"`
}
