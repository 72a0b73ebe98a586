package domain

import "time"

// SyncMode determines how a table is written to its destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // drop existing rows and structure, write fresh
	SyncAppend  SyncMode = "append"  // add missing columns, keep existing rows
)

// Trigger types for conversion jobs.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"   // TriggerConfig is a cron expression
	TriggerFileWatch = "file_watch" // TriggerConfig is the watched path (defaults to LogPath)
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// ConversionJob is a saved log-to-table conversion.
type ConversionJob struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LogPath       string    `json:"logPath"`
	Format        string    `json:"format"` // empty = detect from extension
	ChannelPrefix string    `json:"channelPrefix"`
	Columns       []string  `json:"columns,omitempty"` // column patterns; empty = all
	Placeholder   string    `json:"placeholder"`       // empty = null
	ReorderWindow int       `json:"reorderWindow"`
	TargetID      string    `json:"targetId"`
	Table         string    `json:"table"` // table, collection or file name at the target
	SyncMode      SyncMode  `json:"syncMode"`
	TriggerType   string    `json:"triggerType"`
	TriggerConfig string    `json:"triggerConfig"`
	Enabled       bool      `json:"enabled"`
	LastRunAt     time.Time `json:"lastRunAt"`
	LastStatus    string    `json:"lastStatus"` // "success" | "error" | "running" | ""
	LastError     string    `json:"lastError"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// WatchPath returns the file a file_watch job reacts to.
func (j *ConversionJob) WatchPath() string {
	if j.TriggerConfig != "" {
		return j.TriggerConfig
	}
	return j.LogPath
}

// RunLog records one execution of a conversion job.
type RunLog struct {
	ID           string    `json:"id"`
	JobID        string    `json:"jobId"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Status       string    `json:"status"`
	MessagesRead int       `json:"messagesRead"`
	RowsWritten  int       `json:"rowsWritten"`
	Columns      int       `json:"columns"`
	Error        string    `json:"error,omitempty"`
}

// ConversionJobStore persists conversion jobs and their run logs.
type ConversionJobStore interface {
	CreateJob(job *ConversionJob) error
	GetJob(id string) (*ConversionJob, error)
	ListJobs() ([]ConversionJob, error)
	ListTriggeredJobs() ([]ConversionJob, error)
	UpdateJob(job *ConversionJob) error
	UpdateJobStatus(id, status, errMsg string) error
	DeleteJob(id string) error
	CreateRunLog(l *RunLog) error
	ListRunLogs(jobID string, limit int) ([]RunLog, error)
}
