package auth

import "sync"

// Persisted state keys. Each authenticator flavor owns its own TokenStore
// namespace, so the same key names never collide across authenticators.
const (
	// KeyUserID is the signed-in user identifier (or email hint).
	KeyUserID = "userId"

	// KeyResourceURL is the tenant-specific service endpoint (directory only).
	KeyResourceURL = "resourceUrl"

	// KeyServiceInfo is the serialized discovery-service descriptor (directory only).
	KeyServiceInfo = "serviceInfo"

	// KeyToken is the serialized OAuth2 token, including the refresh token.
	KeyToken = "token"

	// KeyVersionCode marks the schema version of the persisted state.
	// Older versions are not trusted and force a clean logout at Init.
	KeyVersionCode = "versionCode"

	// KeyAccountType records the disambiguation resolution.
	KeyAccountType = "accountType"
)

// loginStateVersion is written under KeyVersionCode with every persisted
// login. Bump when the persisted layout changes incompatibly.
const loginStateVersion = "1"

// TokenStore persists a small set of opaque string key-value pairs for one
// authenticator namespace. PutAll and Clear must be atomic: either every key
// updates or none do, so a crash can never leave the namespace half-written.
type TokenStore interface {
	// Get returns the value for key. The second result is false when the
	// key is absent (not an error).
	Get(key string) (string, bool, error)

	// PutAll writes all given pairs in one atomic operation.
	PutAll(values map[string]string) error

	// Clear atomically removes every key in the namespace.
	Clear() error
}

// MemoryStore is an in-memory TokenStore. Useful for tests and for callers
// that manage persistence themselves.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]

	return v, ok, nil
}

func (m *MemoryStore) PutAll(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range values {
		m.values[k] = v
	}

	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[string]string)

	return nil
}
