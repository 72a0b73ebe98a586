package secret

// SecretStore stores sensitive data such as export target passwords.
// EnvStore layers environment overrides on top of a FileStore; tests use
// MemoryStore.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}
