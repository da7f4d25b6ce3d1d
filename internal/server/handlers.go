package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qametrics/internal/metrics"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleAreaPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := s.engine.AllAreaPaths(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, paths)
}

func (s *Server) handleTestPlans(w http.ResponseWriter, r *http.Request) {
	areaPaths, ok := areaPathsParam(w, r)
	if !ok {
		return
	}

	key := "testplans:" + strings.Join(areaPaths, "|")
	s.respondCached(w, key, func() (any, error) {
		return s.engine.TestPlansByAreaPaths(r.Context(), areaPaths)
	})
}

func (s *Server) handleAutomationMetrics(w http.ResponseWriter, r *http.Request) {
	var plans []metrics.TestPlan
	if !decodeBody(w, r, &plans) {
		return
	}
	if len(plans) == 0 {
		writeError(w, http.StatusBadRequest, "request body must carry at least one test plan")
		return
	}

	window, ok := optionalWindow(w, r.URL.Query().Get("startDate"), r.URL.Query().Get("endDate"))
	if !ok {
		return
	}

	key := automationKey(plans, window)
	s.respondCached(w, key, func() (any, error) {
		return s.engine.AutomationMetricsForPlans(r.Context(), plans, window)
	})
}

func (s *Server) handleNewAutomations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plans     []metrics.TestPlan `json:"plans"`
		StartDate string             `json:"startDate"`
		EndDate   string             `json:"endDate"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Plans) == 0 {
		writeError(w, http.StatusBadRequest, "plans is required")
		return
	}

	window, ok := requiredWindow(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	report, err := s.engine.NewAutomationsForPlans(r.Context(), req.Plans, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSuiteCoverage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plans []metrics.TestPlan `json:"plans"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Plans) == 0 {
		writeError(w, http.StatusBadRequest, "plans is required")
		return
	}

	coverage, err := s.engine.CoveragePerSuite(r.Context(), req.Plans)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, coverage)
}

func (s *Server) handleReadyCases(w http.ResponseWriter, r *http.Request) {
	areaPaths, ok := areaPathsParam(w, r)
	if !ok {
		return
	}

	report, err := s.engine.ReadyTestCases(r.Context(), areaPaths)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TestCases []metrics.TestCaseInfo `json:"testCases"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.TestCases) == 0 {
		writeError(w, http.StatusBadRequest, "testCases is required")
		return
	}

	report, err := s.engine.TestCaseUsage(r.Context(), req.TestCases)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBugsBySprint(w http.ResponseWriter, r *http.Request) {
	areaPaths, ok := areaPathsParam(w, r)
	if !ok {
		return
	}

	report, err := s.engine.BugMetricsBySprints(r.Context(), areaPaths, s.sprintCount(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBugDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Links []string `json:"links"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Links) == 0 {
		writeError(w, http.StatusBadRequest, "links is required")
		return
	}

	details, err := s.engine.BugDetailsFromLinks(r.Context(), req.Links)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleBugLeakage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AreaPaths []string `json:"areaPaths"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.AreaPaths) == 0 {
		writeError(w, http.StatusBadRequest, "areaPaths is required")
		return
	}

	report, err := s.engine.BugLeakageBreakdown(r.Context(), req.AreaPaths)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBugLeakageSprint(w http.ResponseWriter, r *http.Request) {
	areaPaths, ok := areaPathsParam(w, r)
	if !ok {
		return
	}

	report, err := s.engine.BugLeakageBySprint(r.Context(), areaPaths, s.sprintCount(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSprintMetrics(w http.ResponseWriter, r *http.Request) {
	areaPaths, ok := areaPathsParam(w, r)
	if !ok {
		return
	}

	report, err := s.engine.SprintTestMetrics(r.Context(), areaPaths, s.sprintCount(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleComponentSearch(w http.ResponseWriter, r *http.Request) {
	if s.quality == nil {
		writeError(w, http.StatusServiceUnavailable, "code-quality backend not configured")
		return
	}

	var qualifiers []string
	if raw := r.URL.Query().Get("qualifiers"); raw != "" {
		qualifiers = splitList(raw)
	}
	page := intParam(r, "page", 1)
	size := intParam(r, "size", 100)

	result, err := s.quality.SearchComponents(r.Context(), qualifiers, page, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleComponentMeasures(w http.ResponseWriter, r *http.Request) {
	if s.quality == nil {
		writeError(w, http.StatusServiceUnavailable, "code-quality backend not configured")
		return
	}

	key := r.URL.Query().Get("componentKey")
	if key == "" {
		writeError(w, http.StatusBadRequest, "componentKey query parameter is required")
		return
	}

	result, err := s.quality.ComponentMeasures(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- request parsing helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func areaPathsParam(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	raw := r.URL.Query().Get("areaPaths")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "areaPaths query parameter is required")
		return nil, false
	}
	paths := splitList(raw)
	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, "areaPaths query parameter is required")
		return nil, false
	}
	return paths, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (s *Server) sprintCount(r *http.Request) int {
	return intParam(r, "numSprints", s.numSprints)
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

var dateLayouts = []string{"2006-01-02", time.RFC3339}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
}

// optionalWindow parses a start/end pair where both or neither must be set.
func optionalWindow(w http.ResponseWriter, startRaw, endRaw string) (*metrics.DateWindow, bool) {
	if startRaw == "" && endRaw == "" {
		return nil, true
	}
	if startRaw == "" || endRaw == "" {
		writeError(w, http.StatusBadRequest, "startDate and endDate must be provided together")
		return nil, false
	}
	window, ok := requiredWindow(w, startRaw, endRaw)
	if !ok {
		return nil, false
	}
	return &window, true
}

func requiredWindow(w http.ResponseWriter, startRaw, endRaw string) (metrics.DateWindow, bool) {
	if startRaw == "" || endRaw == "" {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required")
		return metrics.DateWindow{}, false
	}
	start, err := parseDate(startRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return metrics.DateWindow{}, false
	}
	end, err := parseDate(endRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return metrics.DateWindow{}, false
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "endDate must not precede startDate")
		return metrics.DateWindow{}, false
	}
	// a bare end date covers its whole day
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
	return metrics.DateWindow{Start: start, End: end}, true
}

func automationKey(plans []metrics.TestPlan, window *metrics.DateWindow) string {
	var sb strings.Builder
	sb.WriteString("automation:")
	for _, p := range plans {
		fmt.Fprintf(&sb, "%d,", p.ID)
	}
	if window != nil {
		fmt.Fprintf(&sb, "%s-%s", window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))
	}
	return sb.String()
}
