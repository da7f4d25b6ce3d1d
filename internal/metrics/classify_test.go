package metrics

import (
	"testing"

	"qametrics/internal/azure"
)

func TestIsAutomatedValue(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"Automated", true},
		{"automated", true},
		{"Fully Automated", true},
		{"Automated Regression", true},
		{"Not Automated", false},
		{"not automated", false},
		{"NotAutomated", false}, // no standalone "automated" word
		{"X-Migrated", true},
		{"migrated", true},
		{"Migrated Suite", false}, // "migrated" only counts as a suffix
		{"Planned", false},
		{"Manual", false},
	}

	for _, tt := range tests {
		if got := IsAutomatedValue(tt.raw); got != tt.want {
			t.Errorf("IsAutomatedValue(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestEffectiveStatus_EitherFieldWins(t *testing.T) {
	f := testFields()

	tests := []struct {
		name     string
		standard any
		custom   any
		want     AutomationStatus
	}{
		{"both empty", "", "", StatusManual},
		{"standard automated", "Automated", "", StatusAutomated},
		{"custom automated", "", "Automated", StatusAutomated},
		{"both automated", "Automated", "Automated", StatusAutomated},
		{"standard negated", "Not Automated", "", StatusManual},
		{"custom overrides negated standard", "Not Automated", "Automated", StatusAutomated},
		{"non-string field values", 42, true, StatusManual},
	}

	for _, tt := range tests {
		item := azure.WorkItem{ID: 1, Fields: map[string]any{
			f.AutomationStatus:       tt.standard,
			f.CustomAutomationStatus: tt.custom,
		}}
		if got := f.EffectiveStatus(item); got != tt.want {
			t.Errorf("%s: EffectiveStatus = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEffectiveStatus_MissingFields(t *testing.T) {
	f := testFields()
	item := azure.WorkItem{ID: 1, Fields: map[string]any{}}
	if got := f.EffectiveStatus(item); got != StatusManual {
		t.Errorf("EffectiveStatus with no fields = %v, want Manual", got)
	}
	if got := f.EffectiveStatus(azure.WorkItem{ID: 2}); got != StatusManual {
		t.Errorf("EffectiveStatus with nil field map = %v, want Manual", got)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Critical", SeverityCritical},
		{"Crítica", SeverityCritical},
		{"Critica", SeverityCritical},
		{"Alta", SeverityHigh},
		{"High", SeverityHigh},
		{"Média", SeverityMedium},
		{"Media", SeverityMedium},
		{"Baixa", SeverityLow},
		{"Desconhecido", SeverityUnknown},
		{"  Alta  ", SeverityHigh},
		{"", SeverityUnknown},
		{"whatever", SeverityUnknown},
		{"alta", SeverityUnknown}, // matching is case-sensitive
	}

	for _, tt := range tests {
		if got := NormalizeSeverity(tt.raw); got != tt.want {
			t.Errorf("NormalizeSeverity(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeSeverity_Idempotent(t *testing.T) {
	for _, raw := range []string{"Crítica", "Alta", "Média", "Baixa", "Desconhecido", "junk", ""} {
		once := NormalizeSeverity(raw)
		if twice := NormalizeSeverity(once); twice != once {
			t.Errorf("NormalizeSeverity(%q): second pass changed %q to %q", raw, once, twice)
		}
	}
}

func TestItemEnvironment(t *testing.T) {
	f := testFields()

	tests := []struct {
		raw  any
		want string
	}{
		{"Production", "PRODUCTION"},
		{"  staging ", "STAGING"},
		{"", EnvUnknown},
		{nil, EnvUnknown},
	}

	for _, tt := range tests {
		item := azure.WorkItem{ID: 1, Fields: map[string]any{f.Environment: tt.raw}}
		if got := f.ItemEnvironment(item); got != tt.want {
			t.Errorf("ItemEnvironment(%v) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIsProduction(t *testing.T) {
	f := testFields()

	tests := []struct {
		env  string
		want bool
	}{
		{"PROD", true},
		{"PRODUCTION", true},
		{"PROD - EU", true},
		{"PREPROD", true}, // substring match is intentional for label "PROD"
		{"UAT", false},
		{EnvUnknown, false},
	}

	for _, tt := range tests {
		if got := f.IsProduction(tt.env); got != tt.want {
			t.Errorf("IsProduction(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}

	f.ProductionLabel = ""
	if f.IsProduction("PROD") {
		t.Error("IsProduction with empty label should never match")
	}
}
