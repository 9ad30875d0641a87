package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"metsicore/pkg/domain"
	"metsicore/pkg/simapi"
)

// RunRecord is the archived result of one completed build.
type RunRecord struct {
	ID             string    `json:"id"`
	Scenario       string    `json:"scenario"`
	GrowthModel    string    `json:"growth_model"`
	Horizon        int       `json:"horizon"`
	CreatedAt      time.Time `json:"created_at"`
	Nodes          int       `json:"nodes"`
	Leaves         int       `json:"leaves"`
	FailedBranches int       `json:"failed_branches"`
	Tree           Snapshot  `json:"tree"`
}

// Clone returns an independent copy of the record.
func (r RunRecord) Clone() RunRecord {
	cp := r
	nodes := make([]Node, len(r.Tree.Nodes))
	for i := range r.Tree.Nodes {
		nodes[i] = cloneNode(r.Tree.Nodes[i])
	}
	cp.Tree = Snapshot{Horizon: r.Tree.Horizon, Nodes: nodes}
	return cp
}

// RunArchive persists completed runs. Implementations live under
// internal/archive.
type RunArchive interface {
	SaveRun(ctx context.Context, record RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
}

// PluginMetadata describes an installed model pack.
type PluginMetadata struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	GrowthModels []string `json:"growth_models"`
	Operations   []string `json:"operations"`
}

// Service wires the registry, the schedule builder and the run archive
// together and instruments runs with tracing and metrics.
type Service struct {
	registry *Registry
	archive  RunArchive
	metrics  MetricsRecorder
	tracer   Tracer
	nowFn    func() time.Time
	newID    func() string
	plugins  map[string]PluginMetadata
}

// ServiceOption customises service construction.
type ServiceOption func(*Service)

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer attaches a tracer to the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewService constructs a service backed by the supplied run archive.
func NewService(archive RunArchive, opts ...ServiceOption) *Service {
	s := &Service{
		registry: NewRegistry(),
		archive:  archive,
		nowFn:    func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
		plugins:  make(map[string]PluginMetadata),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry model packs were installed into.
func (s *Service) Registry() *Registry { return s.registry }

// recordingRegistry wraps the service registry to capture what one plugin
// contributed during installation.
type recordingRegistry struct {
	target       *Registry
	growthModels []string
	operations   []string
}

func (r *recordingRegistry) RegisterGrowthModel(name string, model domain.GrowthModel) error {
	if err := r.target.RegisterGrowthModel(name, model); err != nil {
		return err
	}
	r.growthModels = append(r.growthModels, name)
	return nil
}

func (r *recordingRegistry) RegisterOperation(spec domain.OperationSpec) error {
	if err := r.target.RegisterOperation(spec); err != nil {
		return err
	}
	r.operations = append(r.operations, spec.Name)
	return nil
}

// InstallPlugin registers a model pack, wiring its growth models and
// operations into the service registry.
func (s *Service) InstallPlugin(plugin simapi.Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	recorder := &recordingRegistry{target: s.registry}
	if err := plugin.Register(recorder); err != nil {
		return PluginMetadata{}, err
	}

	meta := PluginMetadata{
		Name:         plugin.Name(),
		Version:      plugin.Version(),
		GrowthModels: recorder.growthModels,
		Operations:   recorder.operations,
	}
	s.plugins[plugin.Name()] = meta
	return meta, nil
}

// InstalledPlugins returns metadata describing installed model packs sorted
// by name.
func (s *Service) InstalledPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuildTrajectories validates the declarations against the installed
// registry and runs the schedule builder.
func (s *Service) BuildTrajectories(ctx context.Context, initial domain.StandState, declarations []Declaration, horizon int, growthModel string, opts Options) (tree *Tree, err error) {
	ctx, finish := s.instrument(ctx, "build_trajectories")
	defer func() { finish(err) }()

	table, err := NewDeclarationTable(s.registry, horizon, declarations)
	if err != nil {
		return nil, err
	}
	return BuildTrajectories(ctx, initial, table, s.registry, growthModel, opts)
}

// RunAndArchive builds the trajectory tree for one named scenario and
// persists the completed run.
func (s *Service) RunAndArchive(ctx context.Context, scenario string, initial domain.StandState, declarations []Declaration, horizon int, growthModel string, opts Options) (record RunRecord, err error) {
	ctx, finish := s.instrument(ctx, "run_and_archive")
	defer func() { finish(err) }()

	table, err := NewDeclarationTable(s.registry, horizon, declarations)
	if err != nil {
		return RunRecord{}, err
	}
	tree, err := BuildTrajectories(ctx, initial, table, s.registry, growthModel, opts)
	if err != nil {
		return RunRecord{}, err
	}

	record = RunRecord{
		ID:             s.newID(),
		Scenario:       scenario,
		GrowthModel:    growthModel,
		Horizon:        horizon,
		CreatedAt:      s.nowFn(),
		Nodes:          tree.Len(),
		Leaves:         len(tree.Leaves()),
		FailedBranches: len(tree.FailedBranches()),
		Tree:           tree.Snapshot(),
	}
	if s.archive != nil {
		if err = s.archive.SaveRun(ctx, record); err != nil {
			return RunRecord{}, fmt.Errorf("archive run %s: %w", record.ID, err)
		}
	}
	return record, nil
}

// GetRun fetches an archived run by ID.
func (s *Service) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	if s.archive == nil {
		return RunRecord{}, false, nil
	}
	return s.archive.GetRun(ctx, id)
}

// ListRuns returns all archived runs.
func (s *Service) ListRuns(ctx context.Context) ([]RunRecord, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.ListRuns(ctx)
}

// instrument opens a trace span and returns a completion callback feeding the
// metrics recorder.
func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	started := s.nowFn()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	return ctx, func(err error) {
		if span != nil {
			span.End(err)
		}
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, s.nowFn().Sub(started))
		}
	}
}
