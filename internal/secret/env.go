package secret

import (
	"os"
	"strings"
)

// EnvPrefix is prepended to the normalized key when looking up overrides.
const EnvPrefix = "CANLOG_SECRET_"

// EnvStore reads secrets from environment variables first and falls back
// to another store. Writes always go to the fallback.
//
// Key "export:1f0c-9a" is looked up as CANLOG_SECRET_EXPORT_1F0C_9A.
type EnvStore struct {
	fallback SecretStore
	lookup   func(string) (string, bool)
}

// NewEnvStore creates an EnvStore over fallback. A nil fallback makes the
// store read-only.
func NewEnvStore(fallback SecretStore) *EnvStore {
	return &EnvStore{fallback: fallback, lookup: os.LookupEnv}
}

// EnvName returns the environment variable consulted for key.
func EnvName(key string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	if v, ok := e.lookup(EnvName(key)); ok {
		return []byte(v), nil
	}
	if e.fallback == nil {
		return nil, nil
	}
	return e.fallback.Get(key)
}

func (e *EnvStore) Set(key string, value []byte) error {
	if e.fallback == nil {
		return ErrReadOnly
	}
	return e.fallback.Set(key, value)
}

func (e *EnvStore) Delete(key string) error {
	if e.fallback == nil {
		return nil
	}
	return e.fallback.Delete(key)
}
