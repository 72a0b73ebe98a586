package export

import (
	"context"
	"fmt"

	"canlog/internal/domain"
	"canlog/internal/telemetry"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes a reconstructed table into a target system:
// a CSV directory, a SQL database or a MongoDB database. The target
// argument of Write names the file, table or collection inside it.

// Destination writes tables to a target system.
type Destination interface {
	// Write stores every row of t under target and returns the number
	// of rows written.
	Write(ctx context.Context, t *telemetry.Table, target string, mode domain.SyncMode) (int, error)

	// TestConnection verifies the destination is reachable.
	TestConnection(ctx context.Context) error

	Close() error
}

// NewDestination creates a Destination for an export target.
// The password must be provided separately (from SecretStore).
func NewDestination(t *domain.ExportTarget, password string) (Destination, error) {
	switch t.Driver {
	case domain.ExportDriverCSV:
		return NewCSVWriter(t.Host), nil
	case domain.ExportDriverSQLite:
		return newSQLWriter(dialectSQLite, sqliteDSN(t))
	case domain.ExportDriverMySQL:
		return newSQLWriter(dialectMySQL, buildMySQLDSN(t, password))
	case domain.ExportDriverPostgres:
		return newSQLWriter(dialectPostgres, buildPostgresDSN(t, password))
	case domain.ExportDriverMongoDB:
		return newMongoWriter(t, password)
	default:
		return nil, fmt.Errorf("unsupported export driver: %s", t.Driver)
	}
}

// Drivers lists the supported export drivers.
func Drivers() []domain.ExportDriver {
	return []domain.ExportDriver{
		domain.ExportDriverCSV,
		domain.ExportDriverSQLite,
		domain.ExportDriverPostgres,
		domain.ExportDriverMySQL,
		domain.ExportDriverMongoDB,
	}
}
