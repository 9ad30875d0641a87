package core

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestPluginsDependOnPublicAPIOnly ensures that model packs under plugins/
// reach the core through pkg/simapi and pkg/domain instead of importing
// internal packages. Packs are meant to compile against the stable plugin
// surface only.
func TestPluginsDependOnPublicAPIOnly(t *testing.T) {
	pluginPrefix := "metsicore/plugins"
	internalPrefix := "metsicore/internal"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "metsicore/plugins/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(pkgs) == 0 {
		t.Fatalf("no plugin packages found")
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if !strings.HasPrefix(pkg.PkgPath, pluginPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == internalPrefix || strings.HasPrefix(importPath, internalPrefix+"/") {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden internal import from plugin: %s", v)
		}
		t.Fatalf("found %d forbidden imports in plugin packages", len(violations))
	}
}
