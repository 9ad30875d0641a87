// Package export renders archived simulation runs into downloadable
// artifacts. A background worker drains a queue of export requests, writes
// the rendered payloads into a blob store and keeps a status record per
// request.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"metsicore/internal/blob"
	"metsicore/internal/core"
	"metsicore/pkg/domain"
)

// Format identifies an artifact encoding.
type Format string

const (
	// FormatJSON renders the full run record including the trajectory tree.
	FormatJSON Format = "json"
	// FormatCSV renders one row per trajectory step with derived stand
	// attributes as columns.
	FormatCSV Format = "csv"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures a stored export artifact.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

// Input represents an export request.
type Input struct {
	RunID       string
	Formats     []Format // defaults to json+csv
	RequestedBy string
}

// RunSource resolves archived runs. Satisfied by core.RunArchive.
type RunSource interface {
	GetRun(ctx context.Context, id string) (core.RunRecord, bool, error)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor,omitempty"`
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Worker executes run exports asynchronously.
type Worker struct {
	runs  RunSource
	store blob.Store
	audit AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker over the given run source and blob
// store. The audit logger may be nil.
func NewWorker(runs RunSource, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		runs:   runs,
		store:  store,
		audit:  audit,
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing queued exports.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the loop to finish. Every
// admitted request reaches a terminal status: tasks still queued when the
// loop exits are marked failed.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	for {
		select {
		case t := <-w.queue:
			w.fail(t.id, "worker stopped before export ran")
		default:
			return nil
		}
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export and returns the queued record. The run must
// already exist in the archive.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	record, err := w.admit(ctx, input)
	if err != nil {
		return Record{}, err
	}
	select {
	case w.queue <- task{id: record.ID, input: input}:
	default:
		w.fail(record.ID, "export queue full")
		return Record{}, fmt.Errorf("export queue full")
	}
	return record, nil
}

// Export runs an export synchronously and returns the completed record.
func (w *Worker) Export(ctx context.Context, input Input) (Record, error) {
	record, err := w.admit(ctx, input)
	if err != nil {
		return Record{}, err
	}
	w.process(task{id: record.ID, input: input})
	done, _ := w.Get(record.ID)
	if done.Status == StatusFailed {
		return done, fmt.Errorf("export %s: %s", done.ID, done.Error)
	}
	return done, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) admit(ctx context.Context, input Input) (Record, error) {
	if w.runs == nil {
		return Record{}, fmt.Errorf("run source not configured")
	}
	if w.store == nil {
		return Record{}, fmt.Errorf("blob store not configured")
	}
	if input.RunID == "" {
		return Record{}, fmt.Errorf("run id required")
	}
	if _, ok, err := w.runs.GetRun(ctx, input.RunID); err != nil {
		return Record{}, err
	} else if !ok {
		return Record{}, fmt.Errorf("run %s not found", input.RunID)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, f := range formats {
		if _, dup := seen[f]; dup {
			continue
		}
		if f != FormatJSON && f != FormatCSV {
			return Record{}, fmt.Errorf("unsupported export format %s", f)
		}
		uniq = append(uniq, f)
		seen[f] = struct{}{}
	}

	now := time.Now().UTC()
	record := Record{
		ID:          uuid.NewString(),
		RunID:       input.RunID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.mu.Lock()
	w.jobs[record.ID] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, input.RequestedBy, input.RunID, StatusQueued, "")
	return snapshot, nil
}

func (w *Worker) process(t task) {
	w.setStatus(t.id, StatusRunning, "")

	run, ok, err := w.runs.GetRun(w.ctx, t.input.RunID)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("load run: %v", err))
		return
	}
	if !ok {
		w.fail(t.id, fmt.Sprintf("run %s missing", t.input.RunID))
		return
	}

	record, _ := w.Get(t.id)
	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := render(format, run)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		key := fmt.Sprintf("exports/%s/%s.%s", run.ID, t.id, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"run_id": run.ID, "export_id": t.id},
		})
		if err != nil {
			w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			URL:         info.URL,
			CreatedAt:   info.LastModified,
		})
	}
	w.complete(t.id, artifacts)
}

func (w *Worker) setStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var actor, runID string
	if ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		actor, runID = record.RequestedBy, record.RunID
	}
	w.mu.Unlock()
	if ok {
		w.recordAudit(w.ctx, actor, runID, status, message)
	}
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var actor, runID string
	if ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, runID = record.RequestedBy, record.RunID
	}
	w.mu.Unlock()
	if ok {
		w.recordAudit(w.ctx, actor, runID, StatusSucceeded, "")
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var actor, runID string
	if ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, runID = record.RequestedBy, record.RunID
	}
	w.mu.Unlock()
	if ok {
		w.recordAudit(w.ctx, actor, runID, StatusFailed, reason)
	}
}

func (w *Worker) recordAudit(ctx context.Context, actor, runID string, status Status, detail string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "run_export",
		Actor:      actor,
		RunID:      runID,
		Status:     status,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	})
}

func render(format Format, run core.RunRecord) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal run %s: %w", run.ID, err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		payload, err := renderCSV(run)
		if err != nil {
			return nil, "", err
		}
		return payload, "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

// renderCSV flattens the trajectory tree: one row per step of every
// trajectory, with the derived stand attributes as trailing columns.
func renderCSV(run core.RunRecord) ([]byte, error) {
	if len(run.Tree.Nodes) == 0 {
		return nil, fmt.Errorf("run %s has no trajectory tree", run.ID)
	}
	tree := core.TreeFromSnapshot(run.Tree)
	attrs := domain.AttributeNames()
	header := append([]string{"trajectory", "status", "step", "label"}, attrs...)

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	index := 0
	for trajectory := range tree.Trajectories() {
		for step, s := range trajectory.Steps {
			row := make([]string, 0, len(header))
			row = append(row,
				strconv.Itoa(index),
				string(trajectory.Status),
				strconv.Itoa(step),
				s.Label,
			)
			for _, name := range attrs {
				value, _ := s.State.Attribute(name)
				row = append(row, strconv.FormatFloat(value, 'f', -1, 64))
			}
			if err := writer.Write(row); err != nil {
				return nil, err
			}
		}
		index++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MemoryAuditLog captures audit entries in memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
