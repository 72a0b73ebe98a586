package domain

import "time"

// ExportDriver is the kind of system a reconstructed table is written to.
type ExportDriver string

const (
	ExportDriverCSV      ExportDriver = "csv"
	ExportDriverSQLite   ExportDriver = "sqlite"
	ExportDriverMySQL    ExportDriver = "mysql"
	ExportDriverPostgres ExportDriver = "postgres"
	ExportDriverMongoDB  ExportDriver = "mongodb"
)

// ExportTarget holds the metadata for reaching an export destination.
// The password is stored separately in the SecretStore.
type ExportTarget struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Driver    ExportDriver `json:"driver"`
	Host      string       `json:"host"`     // hostname, or file/dir path for csv and sqlite
	Port      int          `json:"port"`     // 0 for file targets
	Database  string       `json:"database"` // db name, empty for file targets
	Username  string       `json:"username"`
	SSLMode   string       `json:"sslMode"`
	ExtraJSON string       `json:"extraJson"` // driver-specific options
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// ExportTargetStore manages CRUD operations for export targets.
type ExportTargetStore interface {
	CreateTarget(t *ExportTarget) error
	GetTarget(id string) (*ExportTarget, error)
	ListTargets() ([]ExportTarget, error)
	UpdateTarget(t *ExportTarget) error
	DeleteTarget(id string) error
}
