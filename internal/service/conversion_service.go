package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"canlog/internal/domain"
	"canlog/internal/export"
	"canlog/internal/logfile"
	"canlog/internal/telemetry"
)

// ─────────────────────────────────────────────────────────────
// Conversion Service — saved log-to-table conversions
// ─────────────────────────────────────────────────────────────

const (
	runTimeout      = 5 * time.Minute
	previewTimeout  = 30 * time.Second
	watchDebounce   = 500 * time.Millisecond
	runLogLimit     = 50
	defaultPreviewN = 20
)

// ErrJobRunning is returned when a job is triggered while a run of it is
// still in flight.
var ErrJobRunning = errors.New("job is already running")

// Defaults are the reconstruction settings applied when a job or request
// leaves them empty.
type Defaults struct {
	ChannelPrefix   string
	Fields          telemetry.Fields
	Placeholder     string
	AllowOutOfOrder bool
	ReorderWindow   int
}

// Options builds core options. prefix and placeholder override the
// defaults when non-empty.
func (d Defaults) Options(prefix, placeholder string) telemetry.Options {
	opts := telemetry.DefaultOptions()
	if d.ChannelPrefix != "" {
		opts.ChannelPrefix = d.ChannelPrefix
	}
	if prefix != "" {
		opts.ChannelPrefix = prefix
	}
	opts.Fields = d.Fields
	if placeholder == "" {
		placeholder = d.Placeholder
	}
	if placeholder != "" {
		opts.Placeholder = placeholder
	}
	opts.AllowOutOfOrder = d.AllowOutOfOrder
	return opts
}

// ConversionService manages conversion jobs, scheduling and file watching.
type ConversionService struct {
	store       domain.ConversionJobStore
	targets     *TargetService
	emitter     EventEmitter
	defaults    Defaults
	exportDir   string
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewConversionService creates a ConversionService. Jobs without a target
// write CSV files into exportDir.
func NewConversionService(
	store domain.ConversionJobStore,
	targets *TargetService,
	emitter EventEmitter,
	defaults Defaults,
	exportDir string,
) *ConversionService {
	return &ConversionService{
		store:     store,
		targets:   targets,
		emitter:   emitter,
		defaults:  defaults,
		exportDir: exportDir,
	}
}

// ── Job CRUD ───────────────────────────────────────────────

// JobInput is the service-layer DTO for creating/updating jobs.
type JobInput struct {
	Name          string   `json:"name"`
	LogPath       string   `json:"logPath"`
	Format        string   `json:"format"`
	ChannelPrefix string   `json:"channelPrefix"`
	Columns       []string `json:"columns"`
	Placeholder   string   `json:"placeholder"`
	ReorderWindow int      `json:"reorderWindow"`
	TargetID      string   `json:"targetId"`
	Table         string   `json:"table"`
	SyncMode      string   `json:"syncMode"`
	TriggerType   string   `json:"triggerType"`
	TriggerConfig string   `json:"triggerConfig"`
	Enabled       bool     `json:"enabled"`
}

func (in JobInput) apply(job *domain.ConversionJob) error {
	if in.LogPath == "" {
		return fmt.Errorf("logPath is required")
	}
	if in.Format != "" {
		if _, err := logfile.LookupFormat(in.Format); err != nil {
			return err
		}
	}
	for _, p := range in.Columns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("column pattern %q: %w", p, err)
		}
	}
	if in.ReorderWindow < 0 {
		return fmt.Errorf("reorderWindow must not be negative")
	}

	mode := domain.SyncMode(in.SyncMode)
	switch mode {
	case "":
		mode = domain.SyncReplace
	case domain.SyncReplace, domain.SyncAppend:
	default:
		return fmt.Errorf("unknown sync mode: %q", in.SyncMode)
	}

	trigger := in.TriggerType
	switch trigger {
	case "":
		trigger = domain.TriggerManual
	case domain.TriggerManual, domain.TriggerFileWatch:
	case domain.TriggerSchedule:
		if _, err := cron.ParseStandard(in.TriggerConfig); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", in.TriggerConfig, err)
		}
	default:
		return fmt.Errorf("unknown trigger type: %q", in.TriggerType)
	}

	name := in.Name
	if name == "" {
		name = filepath.Base(in.LogPath)
	}
	table := in.Table
	if table == "" {
		table = defaultTableName(in.LogPath)
	}

	job.Name = name
	job.LogPath = in.LogPath
	job.Format = in.Format
	job.ChannelPrefix = in.ChannelPrefix
	job.Columns = in.Columns
	job.Placeholder = in.Placeholder
	job.ReorderWindow = in.ReorderWindow
	job.TargetID = in.TargetID
	job.Table = table
	job.SyncMode = mode
	job.TriggerType = trigger
	job.TriggerConfig = in.TriggerConfig
	job.Enabled = in.Enabled
	return nil
}

// defaultTableName derives a table name from a log path:
// "/logs/run-12.log.zst" → "run_12".
func defaultTableName(logPath string) string {
	name := filepath.Base(logPath)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func (s *ConversionService) CreateJob(ctx context.Context, input JobInput) (*domain.ConversionJob, error) {
	job := &domain.ConversionJob{}
	if err := input.apply(job); err != nil {
		return nil, err
	}
	if job.TargetID != "" {
		if _, err := s.targets.GetTarget(job.TargetID); err != nil {
			return nil, err
		}
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create conversion job: %w", err)
	}
	s.emitter.Emit(ctx, EventJobsChanged, job.ID)
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ConversionService) GetJob(id string) (*domain.ConversionJob, error) {
	return s.store.GetJob(id)
}

func (s *ConversionService) ListJobs() ([]domain.ConversionJob, error) {
	return s.store.ListJobs()
}

func (s *ConversionService) UpdateJob(ctx context.Context, id string, input JobInput) error {
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	if err := input.apply(job); err != nil {
		return err
	}
	if err := s.store.UpdateJob(job); err != nil {
		return err
	}
	s.emitter.Emit(ctx, EventJobsChanged, id)
	s.RestartWatchers(ctx)
	return nil
}

func (s *ConversionService) DeleteJob(ctx context.Context, id string) error {
	if err := s.store.DeleteJob(id); err != nil {
		return err
	}
	s.emitter.Emit(ctx, EventJobsChanged, id)
	s.RestartWatchers(ctx)
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunResult is the outcome of running a conversion job.
type RunResult struct {
	JobID        string        `json:"jobId"`
	Status       string        `json:"status"` // "success" | "error"
	MessagesRead int           `json:"messagesRead"`
	Relevant     int           `json:"relevant"`
	Columns      []string      `json:"columns"`
	RowsWritten  int           `json:"rowsWritten"`
	Destination  string        `json:"destination"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// RunJob executes a conversion job synchronously: reconstruct the table
// from the job's log, then write it to the job's target.
func (s *ConversionService) RunJob(ctx context.Context, id string) (*RunResult, error) {
	// Prevent concurrent execution of the same job.
	if !s.runningJobs.TryLock(id) {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobRunning)
	}
	defer s.runningJobs.Unlock(id)

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateJobStatus(id, domain.StatusRunning, ""); err != nil {
		log.Printf("conversion: job %s: mark running: %v", id, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	result := &RunResult{JobID: id}
	runErr := s.run(runCtx, job, result)
	result.Duration = time.Since(start)
	result.Status = domain.StatusSuccess
	if runErr != nil {
		result.Status = domain.StatusError
		result.Error = runErr.Error()
	}

	runLog := &domain.RunLog{
		JobID:        id,
		StartedAt:    start,
		FinishedAt:   time.Now(),
		Status:       result.Status,
		MessagesRead: result.MessagesRead,
		RowsWritten:  result.RowsWritten,
		Columns:      len(result.Columns),
		Error:        result.Error,
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		log.Printf("conversion: job %s: write run log: %v", id, err)
	}
	if err := s.store.UpdateJobStatus(id, result.Status, result.Error); err != nil {
		log.Printf("conversion: job %s: update status: %v", id, err)
	}

	s.emitter.Emit(ctx, EventConversionCompleted, result)
	return result, runErr
}

func (s *ConversionService) run(ctx context.Context, job *domain.ConversionJob, result *RunResult) error {
	src, err := s.openSource(job.LogPath, job.Format, job.ReorderWindow)
	if err != nil {
		return err
	}

	schema, table, err := telemetry.Convert(ctx, src, job.Columns, s.defaults.Options(job.ChannelPrefix, job.Placeholder))
	if schema != nil {
		result.MessagesRead = schema.Messages
		result.Relevant = schema.Relevant
	}
	if err != nil {
		return err
	}
	result.Columns = table.Header()[1:]

	dest, name, err := s.destination(job)
	if err != nil {
		return err
	}
	defer dest.Close()
	result.Destination = name

	n, err := dest.Write(ctx, table, job.Table, job.SyncMode)
	result.RowsWritten = n
	if err != nil {
		return fmt.Errorf("export to %s: %w", name, err)
	}
	return nil
}

// destination opens the job's target, or the CSV export directory when
// the job has none.
func (s *ConversionService) destination(job *domain.ConversionJob) (export.Destination, string, error) {
	if job.TargetID == "" {
		w := export.NewCSVWriter(s.exportDir)
		return w, w.Path(job.Table), nil
	}
	dest, target, err := s.targets.Open(job.TargetID)
	if err != nil {
		return nil, "", err
	}
	return dest, fmt.Sprintf("%s (%s)", target.Name, target.Driver), nil
}

func (s *ConversionService) openSource(logPath, format string, window int) (telemetry.Source, error) {
	src, err := logfile.Open(logPath, format)
	if err != nil {
		return nil, err
	}
	if window == 0 {
		window = s.defaults.ReorderWindow
	}
	return logfile.Sequenced(src, window), nil
}

// ListRunLogs returns the last 50 run logs for a job.
func (s *ConversionService) ListRunLogs(jobID string) ([]domain.RunLog, error) {
	return s.store.ListRunLogs(jobID, runLogLimit)
}

// Running returns the IDs of jobs with a run in flight.
func (s *ConversionService) Running() []string {
	return s.runningJobs.Running()
}

// ── Discovery / Preview ────────────────────────────────────

// ListFormats returns the registered log formats.
func (s *ConversionService) ListFormats() []logfile.FormatSpec {
	return logfile.Formats()
}

// DiscoverColumns runs the schema discovery pass over a log file, read
// through the default reorder window like every run and preview.
func (s *ConversionService) DiscoverColumns(ctx context.Context, logPath, format, channelPrefix string) (*telemetry.Schema, error) {
	src, err := s.openSource(logPath, format, 0)
	if err != nil {
		return nil, err
	}
	discCtx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()
	return telemetry.Discover(discCtx, src, s.defaults.Options(channelPrefix, ""))
}

// PreviewInput selects what to preview.
type PreviewInput struct {
	LogPath       string   `json:"logPath"`
	Format        string   `json:"format"`
	ChannelPrefix string   `json:"channelPrefix"`
	Columns       []string `json:"columns"`
	ReorderWindow int      `json:"reorderWindow"`
	MaxRows       int      `json:"maxRows"`
}

// PreviewResult holds the leading rows of a reconstruction.
type PreviewResult struct {
	Header    []string `json:"header"`
	Rows      [][]any  `json:"rows"`
	TotalRows int      `json:"totalRows"`
	Messages  int      `json:"messages"`
	Relevant  int      `json:"relevant"`
}

// Preview reconstructs a log without writing anything and returns the
// first MaxRows rows (20 by default).
func (s *ConversionService) Preview(ctx context.Context, in PreviewInput) (*PreviewResult, error) {
	src, err := s.openSource(in.LogPath, in.Format, in.ReorderWindow)
	if err != nil {
		return nil, err
	}
	previewCtx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	schema, table, err := telemetry.Convert(previewCtx, src, in.Columns, s.defaults.Options(in.ChannelPrefix, ""))
	if err != nil {
		return nil, err
	}

	n := in.MaxRows
	if n <= 0 {
		n = defaultPreviewN
	}
	head := table.Head(n)
	res := &PreviewResult{
		Header:    head.Header(),
		Rows:      make([][]any, 0, head.Len()),
		TotalRows: table.Len(),
		Messages:  schema.Messages,
		Relevant:  schema.Relevant,
	}
	for _, r := range head.Rows {
		res.Rows = append(res.Rows, append([]any{r.Timestamp}, r.Values...))
	}
	return res, nil
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them
// from the enabled triggered jobs.
func (s *ConversionService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	jobs, err := s.store.ListTriggeredJobs()
	if err != nil {
		log.Printf("conversion watcher: failed to list jobs: %v", err)
		return
	}

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != domain.TriggerSchedule || j.TriggerConfig == "" {
			continue
		}
		jid := j.ID
		_, err := c.AddFunc(j.TriggerConfig, func() {
			log.Printf("conversion cron: running job %s", jid)
			if _, err := s.RunJob(ctx, jid); err != nil {
				log.Printf("conversion cron: job %s failed: %v", jid, err)
			}
		})
		if err != nil {
			log.Printf("conversion cron: invalid expression %q for job %s: %v", j.TriggerConfig, jid, err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		log.Printf("conversion cron: scheduled %d job(s)", scheduled)
	}

	// ── File watchers ──
	pathToJobs := make(map[string][]string)
	for _, j := range jobs {
		if j.TriggerType != domain.TriggerFileWatch {
			continue
		}
		absPath, err := filepath.Abs(j.WatchPath())
		if err != nil {
			log.Printf("conversion watcher: bad path %q: %v", j.WatchPath(), err)
			continue
		}
		pathToJobs[absPath] = append(pathToJobs[absPath], j.ID)
	}
	if len(pathToJobs) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("conversion watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	// Watch directories: loggers usually write to a temp name and rename.
	watchedDirs := make(map[string]bool)
	for p := range pathToJobs {
		dir := filepath.Dir(p)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("conversion watcher: failed to watch dir %q: %v", dir, err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watchLoop(ctx, watchCtx, watcher, pathToJobs)

	log.Printf("conversion watcher: watching %d file(s)", len(pathToJobs))
}

func (s *ConversionService) watchLoop(ctx, watchCtx context.Context, watcher *fsnotify.Watcher, pathToJobs map[string][]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			for _, jobID := range pathToJobs[absPath] {
				if t, exists := timers[jobID]; exists {
					t.Stop()
				}
				jid := jobID
				timers[jid] = time.AfterFunc(watchDebounce, func() {
					if watchCtx.Err() != nil {
						return
					}
					log.Printf("conversion watcher: file changed %q, running job %s", absPath, jid)
					if _, err := s.RunJob(ctx, jid); err != nil {
						log.Printf("conversion watcher: run failed for job %s: %v", jid, err)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("conversion watcher: error: %v", err)
		}
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ConversionService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ConversionService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *ConversionService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
