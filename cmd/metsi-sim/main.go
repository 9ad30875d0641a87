// Command metsi-sim runs a simulation scenario: it loads the YAML scenario,
// builds the trajectory tree with the pine model pack installed, archives the
// run, and optionally exports the result as JSON and CSV artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"metsicore/internal/archive"
	"metsicore/internal/blob"
	"metsicore/internal/core"
	"metsicore/internal/export"
	"metsicore/internal/scenario"
	"metsicore/plugins/pine"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("metsi-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var scenarioPath string
	var exportDir string
	fs.StringVar(&scenarioPath, "scenario", "", "path to scenario yaml (required)")
	fs.StringVar(&exportDir, "export-dir", "", "when set, export the run as json and csv under this directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if scenarioPath == "" {
		fmt.Fprintln(stderr, "metsi-sim: -scenario is required")
		fs.Usage()
		return 2
	}
	if err := run(context.Background(), scenarioPath, exportDir, stdout); err != nil {
		fmt.Fprintf(stderr, "metsi-sim: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, scenarioPath, exportDir string, stdout io.Writer) error {
	doc, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}
	initial, err := doc.InitialState()
	if err != nil {
		return err
	}

	store, err := archive.Open(ctx)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	service := core.NewService(store)
	if _, err := service.InstallPlugin(pine.New()); err != nil {
		return fmt.Errorf("install pine plugin: %w", err)
	}

	record, err := service.RunAndArchive(ctx, doc.Name, initial, doc.CoreDeclarations(), doc.Horizon, doc.GrowthModel, doc.BuildOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run %s: scenario=%s model=%s horizon=%d nodes=%d leaves=%d failed=%d\n",
		record.ID, record.Scenario, record.GrowthModel, record.Horizon,
		record.Nodes, record.Leaves, record.FailedBranches)

	if exportDir == "" {
		return nil
	}
	blobs, err := blob.NewFilesystem(exportDir)
	if err != nil {
		return fmt.Errorf("open export dir: %w", err)
	}
	worker := export.NewWorker(service, blobs, nil)
	result, err := worker.Export(ctx, export.Input{RunID: record.ID})
	if err != nil {
		return err
	}
	for _, artifact := range result.Artifacts {
		fmt.Fprintf(stdout, "exported %s (%s, %d bytes)\n", artifact.Key, artifact.Format, artifact.SizeBytes)
	}
	return nil
}
