package export

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"canlog/internal/domain"
)

// sqliteDSN opens an SQLite file in WAL mode with a busy timeout.
func sqliteDSN(t *domain.ExportTarget) string {
	return t.Host + "?_journal_mode=WAL&_busy_timeout=5000"
}

// buildMySQLDSN constructs a MySQL DSN from an ExportTarget.
func buildMySQLDSN(t *domain.ExportTarget, password string) string {
	port := t.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?charset=utf8mb4
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4",
		t.Username, password, t.Host, port, t.Database,
	)
	if t.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

// buildPostgresDSN constructs a Postgres connection string from an ExportTarget.
func buildPostgresDSN(t *domain.ExportTarget, password string) string {
	port := t.Port
	if port == 0 {
		port = 5432
	}
	sslMode := t.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		t.Host, port, t.Username, password, t.Database, sslMode,
	)
}

// buildMongoURI returns the connection URI and database name for a target.
// Host may already be a full mongodb:// or mongodb+srv:// URI.
func buildMongoURI(t *domain.ExportTarget, password string) (uri, dbName string) {
	dbName = t.Database
	if dbName == "" {
		dbName = "canlog"
	}

	if strings.HasPrefix(t.Host, "mongodb+srv://") || strings.HasPrefix(t.Host, "mongodb://") {
		uri = t.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", url.QueryEscape(password))
			uri = strings.ReplaceAll(uri, "<db_password>", url.QueryEscape(password))
		}
		return uri, dbName
	}

	port := t.Port
	if port == 0 {
		port = 27017
	}
	host := fmt.Sprintf("%s:%d", t.Host, port)
	if t.Username != "" {
		uri = fmt.Sprintf("mongodb://%s@%s", url.UserPassword(t.Username, password).String(), host)
	} else {
		uri = "mongodb://" + host
	}

	// extraJson carries authSource, replicaSet, etc.
	if t.ExtraJSON != "" && t.ExtraJSON != "{}" {
		var extras map[string]string
		if json.Unmarshal([]byte(t.ExtraJSON), &extras) == nil && len(extras) > 0 {
			keys := make([]string, 0, len(extras))
			for k := range extras {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			params := make([]string, 0, len(keys))
			for _, k := range keys {
				params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(extras[k]))
			}
			uri += "/?" + strings.Join(params, "&")
		}
	}
	return uri, dbName
}
