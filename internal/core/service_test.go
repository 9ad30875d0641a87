package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"metsicore/pkg/domain"
	"metsicore/pkg/simapi"
)

// fakeArchive is a minimal in-memory RunArchive for service tests.
type fakeArchive struct {
	mu   sync.Mutex
	runs map[string]RunRecord
	err  error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{runs: make(map[string]RunRecord)}
}

func (a *fakeArchive) SaveRun(_ context.Context, record RunRecord) error {
	if a.err != nil {
		return a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.runs[record.ID]; exists {
		return fmt.Errorf("run %s already archived", record.ID)
	}
	a.runs[record.ID] = record.Clone()
	return nil
}

func (a *fakeArchive) GetRun(_ context.Context, id string) (RunRecord, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record, ok := a.runs[id]
	if !ok {
		return RunRecord{}, false, nil
	}
	return record.Clone(), true, nil
}

func (a *fakeArchive) ListRuns(context.Context) ([]RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RunRecord, 0, len(a.runs))
	for _, record := range a.runs {
		out = append(out, record.Clone())
	}
	return out, nil
}

// testPlugin registers the shared test growth model and thin operation.
type testPlugin struct {
	name string
	fail bool
}

func (p testPlugin) Name() string  { return p.name }
func (testPlugin) Version() string { return "0.0.1" }
func (p testPlugin) Register(registry simapi.Registry) error {
	if p.fail {
		return errors.New("broken pack")
	}
	if err := registry.RegisterGrowthModel(testModel, testGrowth); err != nil {
		return err
	}
	return registry.RegisterOperation(thinOp())
}

func TestInstallPlugin(t *testing.T) {
	service := NewService(newFakeArchive())

	meta, err := service.InstallPlugin(testPlugin{name: "testpack"})
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if meta.Name != "testpack" || meta.Version != "0.0.1" {
		t.Fatalf("metadata = %+v", meta)
	}
	if len(meta.GrowthModels) != 1 || meta.GrowthModels[0] != testModel {
		t.Fatalf("growth models = %v", meta.GrowthModels)
	}
	if len(meta.Operations) != 1 || meta.Operations[0] != "thin" {
		t.Fatalf("operations = %v", meta.Operations)
	}

	if _, err := service.InstallPlugin(testPlugin{name: "testpack"}); err == nil {
		t.Fatalf("duplicate install accepted")
	}
	if _, err := service.InstallPlugin(nil); err == nil {
		t.Fatalf("nil plugin accepted")
	}
	if _, err := service.InstallPlugin(testPlugin{name: "broken", fail: true}); err == nil {
		t.Fatalf("failing plugin install accepted")
	}

	installed := service.InstalledPlugins()
	if len(installed) != 1 || installed[0].Name != "testpack" {
		t.Fatalf("installed = %+v", installed)
	}
}

func TestRunAndArchive(t *testing.T) {
	archive := newFakeArchive()
	service := NewService(archive)
	if _, err := service.InstallPlugin(testPlugin{name: "testpack"}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	declarations := []Declaration{{Period: 0, Operation: "thin"}}
	record, err := service.RunAndArchive(context.Background(), "thin-study", testState(), declarations, 2, testModel, DefaultOptions())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if record.ID == "" {
		t.Fatalf("record has no id")
	}
	if record.Scenario != "thin-study" || record.GrowthModel != testModel || record.Horizon != 2 {
		t.Fatalf("record metadata = %+v", record)
	}
	if record.Nodes != 5 || record.Leaves != 2 || record.FailedBranches != 0 {
		t.Fatalf("record counts = nodes %d leaves %d failed %d", record.Nodes, record.Leaves, record.FailedBranches)
	}

	stored, ok, err := service.GetRun(context.Background(), record.ID)
	if err != nil || !ok {
		t.Fatalf("archived run not found: ok=%v err=%v", ok, err)
	}
	if stored.Nodes != record.Nodes || len(stored.Tree.Nodes) != 5 {
		t.Fatalf("archived tree wrong: %+v", stored)
	}

	runs, err := service.ListRuns(context.Background())
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs = %d, err %v", len(runs), err)
	}
}

func TestRunAndArchiveSaveError(t *testing.T) {
	archive := newFakeArchive()
	archive.err = errors.New("disk full")
	service := NewService(archive)
	if _, err := service.InstallPlugin(testPlugin{name: "testpack"}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	_, err := service.RunAndArchive(context.Background(), "s", testState(), nil, 1, testModel, DefaultOptions())
	if err == nil || !errors.Is(err, archive.err) {
		t.Fatalf("save error not surfaced: %v", err)
	}
}

func TestBuildTrajectoriesRejectsInvalidDeclarations(t *testing.T) {
	service := NewService(nil)
	if _, err := service.InstallPlugin(testPlugin{name: "testpack"}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	_, err := service.BuildTrajectories(context.Background(), testState(), []Declaration{{Period: 5, Operation: "thin"}}, 2, testModel, DefaultOptions())
	var invalid domain.InvalidDeclaration
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDeclaration, got %v", err)
	}
}

func TestServiceWithoutArchive(t *testing.T) {
	service := NewService(nil)
	if _, err := service.InstallPlugin(testPlugin{name: "testpack"}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	record, err := service.RunAndArchive(context.Background(), "s", testState(), nil, 1, testModel, DefaultOptions())
	if err != nil {
		t.Fatalf("run without archive failed: %v", err)
	}
	if _, ok, _ := service.GetRun(context.Background(), record.ID); ok {
		t.Fatalf("GetRun found a run without an archive")
	}
	if runs, err := service.ListRuns(context.Background()); err != nil || runs != nil {
		t.Fatalf("ListRuns without archive = %v, %v", runs, err)
	}
}

func TestServiceInstrumentation(t *testing.T) {
	tracer := NewJSONTracer(nil)
	metrics := NewExpvarMetricsRecorder("")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := NewService(newFakeArchive(),
		WithTracer(tracer),
		WithMetricsRecorder(metrics),
		WithClock(func() time.Time { return now }),
	)
	if _, err := service.InstallPlugin(testPlugin{name: "testpack"}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	if _, err := service.RunAndArchive(context.Background(), "s", testState(), nil, 1, testModel, DefaultOptions()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := service.BuildTrajectories(context.Background(), testState(), nil, 0, testModel, DefaultOptions()); err == nil {
		t.Fatalf("expected error for zero horizon")
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("trace entries = %d, want 2", len(entries))
	}
	if entries[0].Operation != "run_and_archive" || entries[0].Status != "success" {
		t.Fatalf("first span = %+v", entries[0])
	}
	if entries[1].Operation != "build_trajectories" || entries[1].Status != "error" {
		t.Fatalf("second span = %+v", entries[1])
	}

	snapshot := metrics.Snapshot()
	if snapshot.Results["run_and_archive"]["success"] != 1 {
		t.Fatalf("metrics missing success count: %+v", snapshot.Results)
	}
	if snapshot.Results["build_trajectories"]["error"] != 1 {
		t.Fatalf("metrics missing error count: %+v", snapshot.Results)
	}
}
