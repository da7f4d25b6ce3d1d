package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"qametrics/internal/azure"
	"qametrics/internal/metrics"
	"qametrics/internal/sonar"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	HTTPAddr string

	Azure  azure.Config
	Sonar  sonar.Config
	Fields metrics.FieldConfig

	Strategy      metrics.ClientStrategy
	NumSprints    int
	RunWindowDays int
	CacheTTL      time.Duration

	DataPath string
	LogDir   string
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority
	// for packaged deployments)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}
	logDir := filepath.Join(dataPath, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}

	azureCfg := azure.Config{
		Organization:        getEnv("AZURE_ORGANIZATION", ""),
		Project:             getEnv("AZURE_PROJECT", ""),
		PersonalAccessToken: getEnv("AZURE_PAT", ""),
		APIVersion:          getEnv("AZURE_API_VERSION", "7.0"),
		Timeout:             getEnvSeconds("AZURE_TIMEOUT_SECONDS", 20),
		MaxSockets:          getEnvInt("AZURE_MAX_SOCKETS", 10),
		Retries:             getEnvInt("AZURE_RETRIES", 3),
	}
	if azureCfg.Organization == "" || azureCfg.Project == "" || azureCfg.PersonalAccessToken == "" {
		return nil, fmt.Errorf("AZURE_ORGANIZATION, AZURE_PROJECT and AZURE_PAT must be set")
	}

	fields, err := loadFields()
	if err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		HTTPAddr: getEnv("HTTP_ADDR", ":3000"),
		Azure:    azureCfg,
		Sonar: sonar.Config{
			BaseURL:     getEnv("SONAR_URL", ""),
			AccessToken: getEnv("SONAR_TOKEN", ""),
			MetricKeys:  getEnv("SONAR_METRIC_KEYS", sonar.DefaultMetricKeys),
			Timeout:     getEnvSeconds("SONAR_TIMEOUT_SECONDS", 20),
			MaxSockets:  getEnvInt("SONAR_MAX_SOCKETS", 10),
		},
		Fields:        fields,
		Strategy:      metrics.ParseStrategy(getEnv("CLIENT_ID", "")),
		NumSprints:    getEnvInt("NUM_SPRINTS", 5),
		RunWindowDays: getEnvInt("RUN_WINDOW_DAYS", 30),
		CacheTTL:      getEnvSeconds("CACHE_TTL_SECONDS", 300),
		DataPath:      dataPath,
		LogDir:        logDir,
	}

	return cfg, nil
}

// loadFields resolves the tracker field mapping: built-in defaults, then env
// overrides, then an optional YAML mapping file named by FIELDS_FILE.
func loadFields() (metrics.FieldConfig, error) {
	fields := metrics.FieldConfig{
		AutomationStatus:       getEnv("FIELD_AUTOMATION_STATUS", "Microsoft.VSTS.TCM.AutomationStatus"),
		CustomAutomationStatus: getEnv("FIELD_CUSTOM_AUTOMATION_STATUS", "Custom.AutomationStatus"),
		TestingType:            getEnv("FIELD_TESTING_TYPE", "Custom.TestingType"),
		AutomationTools:        getEnv("FIELD_AUTOMATION_TOOLS", "Custom.AutomationTool"),
		Severity:               getEnv("FIELD_SEVERITY", "Microsoft.VSTS.Common.Severity"),
		Environment:            getEnv("FIELD_ENVIRONMENT", "Custom.Environment"),
		ProductionLabel:        getEnv("PRODUCTION_LABEL", "PROD"),
	}

	path := os.Getenv("FIELDS_FILE")
	if path == "" {
		return fields, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fields, fmt.Errorf("read fields file %s: %w", path, err)
	}
	// Unmarshal over the defaults so omitted keys keep their values.
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return fields, fmt.Errorf("parse fields file %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Loaded field mapping overrides")
	return fields, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
