package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AZURE_ORGANIZATION", "acme")
	t.Setenv("AZURE_PROJECT", "Phoenix")
	t.Setenv("AZURE_PAT", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q, want \":3000\"", cfg.HTTPAddr)
	}
	if cfg.Azure.APIVersion != "7.0" {
		t.Errorf("APIVersion = %q, want 7.0", cfg.Azure.APIVersion)
	}
	if cfg.Azure.Timeout != 20*time.Second {
		t.Errorf("Timeout = %v, want 20s", cfg.Azure.Timeout)
	}
	if cfg.NumSprints != 5 {
		t.Errorf("NumSprints = %d, want 5", cfg.NumSprints)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.Fields.AutomationStatus != "Microsoft.VSTS.TCM.AutomationStatus" {
		t.Errorf("automation status field = %q, want the default reference name", cfg.Fields.AutomationStatus)
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("AZURE_ORGANIZATION", "acme")
	t.Setenv("AZURE_PROJECT", "Phoenix")
	t.Setenv("AZURE_PAT", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without a PAT, want error")
	}
}

func TestLoad_FieldsFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fields.yaml")
	content := "severityField: Custom.BugSeverity\nproductionLabel: PRD\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AZURE_ORGANIZATION", "acme")
	t.Setenv("AZURE_PROJECT", "Phoenix")
	t.Setenv("AZURE_PAT", "secret")
	t.Setenv("FIELDS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Fields.Severity != "Custom.BugSeverity" {
		t.Errorf("severity field = %q, want the YAML override", cfg.Fields.Severity)
	}
	if cfg.Fields.ProductionLabel != "PRD" {
		t.Errorf("production label = %q, want PRD", cfg.Fields.ProductionLabel)
	}
	// keys omitted from the file keep their defaults
	if cfg.Fields.Environment != "Custom.Environment" {
		t.Errorf("environment field = %q, want default", cfg.Fields.Environment)
	}
}
