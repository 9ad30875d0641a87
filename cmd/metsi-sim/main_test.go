package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testScenario = `
name: thinning-study
growth_model: pine.basic
horizon: 2
initial_stand:
  site:
    soil: mineral
    fertility: mesic
  trees:
    - species: pine
      stems_per_ha: 900
      diameter_cm: 24
      height_m: 19
      age_years: 65
declarations:
  - period: 0
    operation: thinning
    parameters:
      intensity: 0.3
`

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(testScenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestCLIMissingScenarioFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "-scenario is required") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestCLIUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestCLIScenarioNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-scenario", filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestCLIRunsScenario(t *testing.T) {
	t.Setenv("METSI_ARCHIVE_DRIVER", "memory")
	path := writeScenario(t)

	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-scenario", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "scenario=thinning-study") || !strings.Contains(out, "leaves=2") {
		t.Fatalf("stdout = %q", out)
	}
}

func TestCLIRunsAndExports(t *testing.T) {
	t.Setenv("METSI_ARCHIVE_DRIVER", "memory")
	path := writeScenario(t)
	exportDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-scenario", path, "-export-dir", exportDir}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "exported exports/") {
		t.Fatalf("stdout = %q", out)
	}

	entries, err := os.ReadDir(filepath.Join(exportDir, "exports"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("export dir = %v, err %v", entries, err)
	}
}
