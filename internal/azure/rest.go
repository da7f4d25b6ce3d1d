package azure

import (
	"bytes"
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

type restClient struct {
	cfg        Config
	baseURL    string
	authHeader string
	httpClient *http.Client
}

func newRESTClient(cfg Config) *restClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "7.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxSockets == 0 {
		cfg.MaxSockets = 10
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}

	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxSockets,
		MaxIdleConnsPerHost: cfg.MaxSockets,
	}

	return &restClient{
		cfg:        cfg,
		baseURL:    "https://dev.azure.com/" + cfg.Organization,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+cfg.PersonalAccessToken)),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// doJSON issues a request with auth, retrying transport-level failures with
// exponential delay. Non-2xx statuses are not retried.
func (c *restClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
			log.Debug().Str("path", path).Dur("delay", delay).Int("attempt", attempt).Msg("Retrying tracker request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var reader *bytes.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", c.authHeader)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		err = decodeResponse(resp, path, out)
		resp.Body.Close()
		return err
	}

	return fmt.Errorf("tracker request failed after %d retries: %w", c.cfg.Retries, lastErr)
}

func decodeResponse(resp *http.Response, path string, out any) error {
	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("tracker authentication failed (%d), check the personal access token", resp.StatusCode)
		case http.StatusNotFound:
			return fmt.Errorf("tracker resource %s not found", path)
		case http.StatusTooManyRequests:
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				return fmt.Errorf("tracker rate limit exceeded (429), retry after %s seconds", retryAfter)
			}
			return fmt.Errorf("tracker rate limit exceeded (429)")
		default:
			return fmt.Errorf("tracker returned status %d for %s", resp.StatusCode, path)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tracker response for %s: %w", path, err)
	}
	return nil
}

func (c *restClient) apiVersion() string {
	return "api-version=" + c.cfg.APIVersion
}

func (c *restClient) QueryWorkItemIDs(ctx context.Context, wiql string) ([]int, error) {
	path := fmt.Sprintf("/%s/_apis/wit/wiql?%s", c.cfg.Project, c.apiVersion())

	var result WiqlResponse
	body := map[string]string{"query": wiql}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(result.WorkItems))
	for _, ref := range result.WorkItems {
		ids = append(ids, ref.ID)
	}
	log.Debug().Int("count", len(ids)).Msg("WIQL query resolved")
	return ids, nil
}

func (c *restClient) GetWorkItemsBatch(ctx context.Context, ids []int, fields []string) ([]WorkItem, error) {
	path := "/_apis/wit/workitemsbatch?" + c.apiVersion()

	var result WorkItemsResponse
	body := map[string]any{"ids": ids, "fields": fields}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetWorkItems(ctx context.Context, ids []int, fields []string) ([]WorkItem, error) {
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = strconv.Itoa(id)
	}
	params := url.Values{}
	params.Set("ids", strings.Join(idStrs, ","))
	params.Set("fields", strings.Join(fields, ","))
	path := fmt.Sprintf("/_apis/wit/workitems?%s&%s", params.Encode(), c.apiVersion())

	var result WorkItemsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetWorkItemRevisions(ctx context.Context, id int) ([]WorkItem, error) {
	path := fmt.Sprintf("/%s/_apis/wit/workitems/%d/revisions?%s", c.cfg.Project, id, c.apiVersion())

	var result WorkItemsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetClassificationNodes(ctx context.Context, kind NodeKind, depth int) (ClassificationNode, error) {
	path := fmt.Sprintf("/%s/_apis/wit/classificationnodes/%s?$depth=%d&%s",
		c.cfg.Project, kind, depth, c.apiVersion())

	var result ClassificationNode
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return ClassificationNode{}, err
	}
	return result, nil
}

func (c *restClient) GetTeamIterations(ctx context.Context) ([]Iteration, error) {
	path := fmt.Sprintf("/%s/_apis/work/teamsettings/iterations?%s", c.cfg.Project, c.apiVersion())

	var result IterationsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetPlanSuites(ctx context.Context, planID int) ([]TestSuite, error) {
	path := fmt.Sprintf("/%s/_apis/testplan/plans/%d/suites?%s", c.cfg.Project, planID, c.apiVersion())

	var result testSuitesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetSuiteTestCases(ctx context.Context, planID, suiteID int) ([]SuiteTestCase, error) {
	path := fmt.Sprintf("/%s/_apis/test/plans/%d/suites/%d/testcases?%s",
		c.cfg.Project, planID, suiteID, c.apiVersion())

	var result suiteTestCasesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetSuiteTestPoints(ctx context.Context, planID, suiteID int) ([]TestPoint, error) {
	path := fmt.Sprintf("/%s/_apis/test/plans/%d/suites/%d/points?%s",
		c.cfg.Project, planID, suiteID, c.apiVersion())

	var result testPointsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetRecentTestRuns(ctx context.Context, windowDays int) ([]TestRun, error) {
	now := time.Now().UTC()
	params := url.Values{}
	params.Set("minLastUpdatedDate", now.AddDate(0, 0, -windowDays).Format("2006-01-02"))
	params.Set("maxLastUpdatedDate", now.Format("2006-01-02"))
	path := fmt.Sprintf("/%s/_apis/test/runs?%s&%s", c.cfg.Project, params.Encode(), c.apiVersion())

	var result testRunsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) GetTestResultsByRun(ctx context.Context, runID int) ([]TestResult, error) {
	path := fmt.Sprintf("/%s/_apis/test/runs/%d/results?%s", c.cfg.Project, runID, c.apiVersion())

	var result testResultsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *restClient) WorkItemURL(id int) string {
	return fmt.Sprintf("https://dev.azure.com/%s/%s/_workitems/edit/%d", c.cfg.Organization, c.cfg.Project, id)
}
