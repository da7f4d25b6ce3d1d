package sonar

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearchComponents(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"paging":{"pageIndex":1,"pageSize":100,"total":1},"components":[{"key":"phoenix","name":"Phoenix","qualifier":"TRK"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AccessToken: "secret"})
	resp, err := c.SearchComponents(context.Background(), []string{"TRK"}, 1, 100)
	if err != nil {
		t.Fatalf("SearchComponents: %v", err)
	}

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("secret:"))
	if gotAuth != wantAuth {
		t.Errorf("Authorization = %q, want %q", gotAuth, wantAuth)
	}
	if !strings.Contains(gotQuery, "qualifiers=TRK") || !strings.Contains(gotQuery, "p=1") || !strings.Contains(gotQuery, "ps=100") {
		t.Errorf("query = %q, missing expected parameters", gotQuery)
	}
	if len(resp.Components) != 1 || resp.Components[0].Key != "phoenix" {
		t.Errorf("Components = %+v, want one entry with key phoenix", resp.Components)
	}
}

func TestSearchComponentsDefaultQualifier(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"components":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.SearchComponents(context.Background(), nil, 1, 50); err != nil {
		t.Fatalf("SearchComponents: %v", err)
	}
	if !strings.Contains(gotQuery, "qualifiers=VW") {
		t.Errorf("query = %q, want default qualifier VW", gotQuery)
	}
}

func TestComponentMeasures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("component"); got != "phoenix" {
			t.Errorf("component = %q, want %q", got, "phoenix")
		}
		if got := r.URL.Query().Get("metricKeys"); got != "coverage,tests" {
			t.Errorf("metricKeys = %q, want %q", got, "coverage,tests")
		}
		w.Write([]byte(`{"component":{"key":"phoenix","name":"Phoenix","measures":[{"metric":"coverage","value":"81.3"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MetricKeys: "coverage,tests"})
	resp, err := c.ComponentMeasures(context.Background(), "phoenix")
	if err != nil {
		t.Fatalf("ComponentMeasures: %v", err)
	}
	if len(resp.Component.Measures) != 1 || resp.Component.Measures[0].Value != "81.3" {
		t.Errorf("Measures = %+v, want coverage 81.3", resp.Component.Measures)
	}
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		status  int
		wantSub string
	}{
		{http.StatusUnauthorized, "authentication failed"},
		{http.StatusForbidden, "authentication failed"},
		{http.StatusNotFound, "not found"},
		{http.StatusInternalServerError, "status 500"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := NewClient(Config{BaseURL: srv.URL})
		_, err := c.ComponentMeasures(context.Background(), "phoenix")
		srv.Close()

		if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
			t.Errorf("status %d: err = %v, want substring %q", tt.status, err, tt.wantSub)
		}
	}
}
