package sonar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMetricKeys is the coverage metric set requested when none is
// configured.
const DefaultMetricKeys = "coverage,branch_coverage,tests,test_errors,test_failures,skipped_tests,test_success_density"

// Config holds the connection settings for the code-quality server.
type Config struct {
	BaseURL     string
	AccessToken string
	MetricKeys  string
	Timeout     time.Duration
	MaxSockets  int
}

// Client reads components and measures from the code-quality API.
type Client interface {
	SearchComponents(ctx context.Context, qualifiers []string, page, pageSize int) (*ComponentsResponse, error)
	ComponentMeasures(ctx context.Context, componentKey string) (*MeasuresResponse, error)
}

// ComponentsResponse is a paginated component search result.
type ComponentsResponse struct {
	Paging struct {
		PageIndex int `json:"pageIndex"`
		PageSize  int `json:"pageSize"`
		Total     int `json:"total"`
	} `json:"paging"`
	Components []Component `json:"components"`
}

// Component is a single project/view entry.
type Component struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Qualifier string `json:"qualifier"`
}

// MeasuresResponse carries the measures of one component.
type MeasuresResponse struct {
	Component struct {
		Key      string    `json:"key"`
		Name     string    `json:"name"`
		Measures []Measure `json:"measures"`
	} `json:"component"`
}

// Measure is a single metric value.
type Measure struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

type restClient struct {
	cfg        Config
	authHeader string
	httpClient *http.Client
}

// NewClient creates a code-quality client for the given configuration.
func NewClient(cfg Config) Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxSockets == 0 {
		cfg.MaxSockets = 10
	}
	if cfg.MetricKeys == "" {
		cfg.MetricKeys = DefaultMetricKeys
	}

	return &restClient{
		cfg:        cfg,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.AccessToken+":")),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     cfg.MaxSockets,
				MaxIdleConnsPerHost: cfg.MaxSockets,
			},
		},
	}
}

func (c *restClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("code-quality request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("code-quality authentication failed (%d), check the access token", resp.StatusCode)
		case http.StatusNotFound:
			return fmt.Errorf("code-quality resource %s not found", path)
		default:
			return fmt.Errorf("code-quality API returned status %d for %s", resp.StatusCode, path)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode code-quality response for %s: %w", path, err)
	}
	return nil
}

func (c *restClient) SearchComponents(ctx context.Context, qualifiers []string, page, pageSize int) (*ComponentsResponse, error) {
	if len(qualifiers) == 0 {
		qualifiers = []string{"VW"}
	}

	params := url.Values{}
	params.Set("qualifiers", strings.Join(qualifiers, ","))
	params.Set("p", strconv.Itoa(page))
	params.Set("ps", strconv.Itoa(pageSize))

	var result ComponentsResponse
	if err := c.get(ctx, "/api/components/search?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	log.Debug().Int("count", len(result.Components)).Msg("Component search resolved")
	return &result, nil
}

func (c *restClient) ComponentMeasures(ctx context.Context, componentKey string) (*MeasuresResponse, error) {
	params := url.Values{}
	params.Set("component", componentKey)
	params.Set("metricKeys", c.cfg.MetricKeys)

	var result MeasuresResponse
	if err := c.get(ctx, "/api/measures/component?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
