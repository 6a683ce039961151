package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"freightline/internal/workflow"
)

func TestDefaultMatchesBuiltInCatalog(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !reflect.DeepEqual(cfg.Catalog(), workflow.DefaultCatalog()) {
		t.Fatalf("default config catalog diverged:\n%+v\n%+v", cfg.Catalog(), workflow.DefaultCatalog())
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
	if cfg.Workflow.DefaultRoute != "JAFZA_TO_KSA" {
		t.Fatalf("default route = %s", cfg.Workflow.DefaultRoute)
	}
}

func TestLoadFallsBackWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Workflow.Steps) == 0 {
		t.Fatal("fallback config empty")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	yml := `workflow:
  steps: [intake, deliver]
  default_route: DIRECT
  routes:
    DIRECT:
      checkpoints: {}
`
	if err := os.WriteFile(filepath.Join(dir, "freightline.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Workflow.Steps) != 2 || cfg.Workflow.DefaultRoute != "DIRECT" {
		t.Fatalf("loaded = %+v", cfg.Workflow)
	}
}

func TestValidateRejectsInconsistencies(t *testing.T) {
	cases := []struct {
		name string
		yml  string
		want string
	}{
		{"no steps", `workflow: {routes: {R: {}}, default_route: R}`, "steps is required"},
		{"dup step", `workflow:
  steps: [a, a]
  default_route: R
  routes: {R: {}}`, "duplicate step"},
		{"unknown checkpoint", `workflow:
  steps: [a]
  checkpoints: [b]
  default_route: R
  routes: {R: {}}`, "not in step list"},
		{"route unknown checkpoint", `workflow:
  steps: [a]
  default_route: R
  routes:
    R:
      checkpoints:
        b: {flag: f}`, "unknown checkpoint"},
		{"terminal empty", `workflow:
  steps: [a]
  checkpoints: [a]
  default_route: R
  routes:
    R:
      checkpoints:
        a: {}`, "terminal flag or date"},
		{"default route missing", `workflow:
  steps: [a]
  default_route: X
  routes: {R: {}}`, "not defined"},
	}
	for _, tc := range cases {
		_, err := FromYAML([]byte(tc.yml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.want)
		}
	}
}
