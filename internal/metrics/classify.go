package metrics

import (
	"regexp"
	"strings"

	"qametrics/internal/azure"
)

// FieldConfig names the tracker fields the classifier and the aggregation
// engine read. Resolved once at startup and injected; never read from the
// environment per call.
type FieldConfig struct {
	AutomationStatus       string `yaml:"automationStatusField"`
	CustomAutomationStatus string `yaml:"customAutomationStatusField"`
	TestingType            string `yaml:"testingTypeField"`
	AutomationTools        string `yaml:"automationToolsField"`
	Severity               string `yaml:"severityField"`
	Environment            string `yaml:"environmentField"`
	ProductionLabel        string `yaml:"productionLabel"`
}

var (
	notPrefixRe = regexp.MustCompile(`(?i)^not\b`)
	automatedRe = regexp.MustCompile(`(?i)\bautomated\b`)
	migratedRe  = regexp.MustCompile(`(?i)\bmigrated$`)
)

// IsAutomatedValue reports whether a raw automation-status value counts as
// automated: non-empty, not prefixed with the word "Not", and either
// containing the word "Automated" or ending in "migrated".
func IsAutomatedValue(raw string) bool {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return false
	}
	if notPrefixRe.MatchString(normalized) {
		return false
	}
	return automatedRe.MatchString(normalized) || migratedRe.MatchString(normalized)
}

// EffectiveStatus reconciles the standard and custom automation-status fields
// of a work item. Automated wins if either field classifies as automated;
// absent, empty or unrecognized values resolve to Manual. Total and
// deterministic for any field map.
func (f FieldConfig) EffectiveStatus(item azure.WorkItem) AutomationStatus {
	standard := item.StringField(f.AutomationStatus)
	custom := item.StringField(f.CustomAutomationStatus)

	if IsAutomatedValue(standard) || IsAutomatedValue(custom) {
		return StatusAutomated
	}
	return StatusManual
}

// Severity labels after normalization.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
	SeverityUnknown  = "Unknown"
)

// severityLabels maps English and Portuguese tracker labels to the canonical
// English label.
var severityLabels = map[string]string{
	"Critical": SeverityCritical,
	"High":     SeverityHigh,
	"Medium":   SeverityMedium,
	"Low":      SeverityLow,
	"Unknown":  SeverityUnknown,

	"Critica":      SeverityCritical,
	"Crítica":      SeverityCritical,
	"Alta":         SeverityHigh,
	"Média":        SeverityMedium,
	"Media":        SeverityMedium,
	"Baixa":        SeverityLow,
	"Desconhecido": SeverityUnknown,
}

// NormalizeSeverity collapses a raw severity value to a canonical label.
// Unmapped or missing values yield Unknown; canonical labels map to
// themselves, so the function is idempotent.
func NormalizeSeverity(raw string) string {
	if label, ok := severityLabels[strings.TrimSpace(raw)]; ok {
		return label
	}
	return SeverityUnknown
}

// ItemSeverity reads and normalizes the severity field of a work item.
func (f FieldConfig) ItemSeverity(item azure.WorkItem) string {
	return NormalizeSeverity(item.StringField(f.Severity))
}

// EnvUnknown is the bucket for bugs with no reported environment.
const EnvUnknown = "UNKNOWN"

// ItemEnvironment normalizes the reported environment to a trimmed upper-case
// bucket key.
func (f FieldConfig) ItemEnvironment(item azure.WorkItem) string {
	env := strings.ToUpper(strings.TrimSpace(item.StringField(f.Environment)))
	if env == "" {
		return EnvUnknown
	}
	return env
}

// IsProduction reports whether a normalized environment counts as leaked to
// production. Matching is by substring so variants like "PROD - EU" qualify.
func (f FieldConfig) IsProduction(env string) bool {
	label := strings.ToUpper(strings.TrimSpace(f.ProductionLabel))
	if label == "" {
		return false
	}
	return strings.Contains(env, label)
}
