package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/meridian-data/governance-gateway/internal/apiclient"
	"github.com/meridian-data/governance-gateway/internal/groups"
)

type fakeProber struct {
	results map[string]apiclient.ProbeResult
}

func (f *fakeProber) Probe(_ context.Context, _, path string) apiclient.ProbeResult {
	if res, ok := f.results[path]; ok {
		return res
	}
	return apiclient.ProbeResult{StatusCode: http.StatusOK, Body: []byte(`{}`), Latency: 10 * time.Millisecond}
}

func testGroup(eps ...groups.Endpoint) groups.Group {
	g := groups.Group{ID: groups.Scans, Name: "Scans", Endpoints: eps}
	for i := range g.Endpoints {
		if g.Endpoints[i].Method == "" {
			g.Endpoints[i].Method = http.MethodGet
		}
	}
	return g
}

func TestHealthyGroupScoresFull(t *testing.T) {
	t.Parallel()

	v := New(Options{Prober: &fakeProber{}})
	report := v.ValidateGroup(context.Background(), testGroup(
		groups.Endpoint{Name: "list", Path: "/api/v1/scans"},
		groups.Endpoint{Name: "active", Path: "/api/v1/scans/active"},
	))

	if report.Score != 100 {
		t.Fatalf("expected score 100, got %d", report.Score)
	}
	if report.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", report.Status)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("unexpected issues: %+v", report.Issues)
	}
}

func TestConnectionRefusedIsCritical(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{results: map[string]apiclient.ProbeResult{
		"/api/v1/scans": {Err: errors.New("dial tcp: connection refused")},
	}}
	v := New(Options{Prober: prober})
	report := v.ValidateGroup(context.Background(), testGroup(
		groups.Endpoint{Name: "list", Path: "/api/v1/scans"},
		groups.Endpoint{Name: "active", Path: "/api/v1/scans/active"},
	))

	if report.Score != 75 {
		t.Fatalf("expected score 75, got %d", report.Score)
	}
	if report.Status != StatusCritical {
		t.Fatalf("expected critical, got %s", report.Status)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failed endpoint, got %d", report.Failed)
	}
}

func TestAllEndpointsUnreachableIsOffline(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{results: map[string]apiclient.ProbeResult{
		"/api/v1/scans":        {Err: errors.New("connection refused")},
		"/api/v1/scans/active": {Err: errors.New("connection refused")},
	}}
	v := New(Options{Prober: prober})
	report := v.ValidateGroup(context.Background(), testGroup(
		groups.Endpoint{Name: "list", Path: "/api/v1/scans"},
		groups.Endpoint{Name: "active", Path: "/api/v1/scans/active"},
	))

	if report.Status != StatusOffline {
		t.Fatalf("expected offline, got %s", report.Status)
	}
	if report.Score != 50 {
		t.Fatalf("expected score 50, got %d", report.Score)
	}
}

func TestIssueCategories(t *testing.T) {
	t.Parallel()

	schema := json.RawMessage(`{"type":"object","required":["scans"],"properties":{"scans":{"type":"array"}}}`)
	prober := &fakeProber{results: map[string]apiclient.ProbeResult{
		"/permission": {StatusCode: http.StatusForbidden, Latency: time.Millisecond},
		"/schema":     {StatusCode: http.StatusOK, Body: []byte(`{"scans":"not-an-array"}`), Latency: time.Millisecond},
		"/mock":       {StatusCode: http.StatusOK, Body: []byte(`{"mock":true,"items":[]}`), Latency: time.Millisecond},
		"/slow":       {StatusCode: http.StatusOK, Body: []byte(`{}`), Latency: 3 * time.Second},
	}}
	v := New(Options{Prober: prober, LatencyBudget: 2 * time.Second})

	report := v.ValidateGroup(context.Background(), testGroup(
		groups.Endpoint{Name: "permission", Path: "/permission"},
		groups.Endpoint{Name: "schema", Path: "/schema", Schema: schema},
		groups.Endpoint{Name: "mock", Path: "/mock"},
		groups.Endpoint{Name: "slow", Path: "/slow"},
	))

	want := map[Category]bool{
		CategoryPermission:  false,
		CategorySchema:      false,
		CategoryMockData:    false,
		CategoryPerformance: false,
	}
	for _, issue := range report.Issues {
		want[issue.Category] = true
	}
	for cat, seen := range want {
		if !seen {
			t.Fatalf("missing issue category %s in %+v", cat, report.Issues)
		}
	}

	// 100 - 15 - 10 - 10 - 5
	if report.Score != 60 {
		t.Fatalf("expected score 60, got %d", report.Score)
	}
	if report.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
}

func TestCriticalEndpointEscalatesStatus(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{results: map[string]apiclient.ProbeResult{
		"/api/v1/scans": {StatusCode: http.StatusForbidden, Latency: time.Millisecond},
	}}
	v := New(Options{Prober: prober})

	report := v.ValidateGroup(context.Background(), testGroup(
		groups.Endpoint{Name: "list", Path: "/api/v1/scans"},
	))
	if report.Status != StatusWarning {
		t.Fatalf("permission denial on ordinary endpoint should warn, got %s", report.Status)
	}

	report = v.ValidateGroup(context.Background(), testGroup(
		groups.Endpoint{Name: "list", Path: "/api/v1/scans", Critical: true},
	))
	if report.Status != StatusCritical {
		t.Fatalf("permission denial on critical endpoint should be critical, got %s", report.Status)
	}
	if report.Score != 85 {
		t.Fatalf("penalty must stay fixed per category, got score %d", report.Score)
	}
	if len(report.Issues) != 1 || report.Issues[0].Severity != SeverityCritical {
		t.Fatalf("expected escalated severity, got %+v", report.Issues)
	}

	slow := &fakeProber{results: map[string]apiclient.ProbeResult{
		"/api/v1/scans": {StatusCode: http.StatusOK, Body: []byte(`{}`), Latency: 3 * time.Second},
	}}
	v = New(Options{Prober: slow, LatencyBudget: 2 * time.Second})
	report = v.ValidateGroup(context.Background(), testGroup(
		groups.Endpoint{Name: "list", Path: "/api/v1/scans", Critical: true},
	))
	if report.Status == StatusCritical {
		t.Fatalf("a slow critical endpoint should not force critical status, got %s", report.Status)
	}
}

func TestScoreIsMonotoneAndClamped(t *testing.T) {
	t.Parallel()

	var issues []Issue
	prev := Score(issues)
	if prev != 100 {
		t.Fatalf("empty issue list should score 100, got %d", prev)
	}

	for _, cat := range []Category{
		CategoryAvailability, CategoryAvailability, CategoryAvailability,
		CategoryPermission, CategoryPermission, CategorySchema, CategoryMockData, CategoryPerformance,
	} {
		issues = append(issues, issueFor(cat, "ep", "msg"))
		score := Score(issues)
		if score > prev {
			t.Fatalf("score increased after adding issue: %d > %d", score, prev)
		}
		if score < 0 || score > 100 {
			t.Fatalf("score out of range: %d", score)
		}
		prev = score
	}
	if prev != 0 {
		t.Fatalf("expected score floored at 0, got %d", prev)
	}
}

func TestStatusBuckets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score  int
		issues []Issue
		want   Status
	}{
		{100, nil, StatusHealthy},
		{90, nil, StatusHealthy},
		{85, []Issue{issueFor(CategoryPermission, "ep", "")}, StatusWarning},
		{65, nil, StatusDegraded},
		{30, nil, StatusCritical},
		{75, []Issue{issueFor(CategoryAvailability, "ep", "")}, StatusCritical},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.score, tc.issues, false); got != tc.want {
			t.Fatalf("StatusFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
	if got := StatusFor(0, nil, true); got != StatusOffline {
		t.Fatalf("expected offline, got %s", got)
	}
}

func TestValidateAllCoversRegistry(t *testing.T) {
	t.Parallel()

	v := New(Options{Prober: &fakeProber{}, Registry: groups.Defaults()})
	summary := v.ValidateAll(context.Background())

	if len(summary.Reports) != 6 {
		t.Fatalf("expected 6 reports, got %d", len(summary.Reports))
	}
	if summary.Score != 100 || summary.Status != StatusHealthy {
		t.Fatalf("healthy backend should summarize to 100/healthy, got %d/%s", summary.Score, summary.Status)
	}
}

func TestOverallTakesWorstStatus(t *testing.T) {
	t.Parallel()

	summary := Overall([]Report{
		{Group: groups.Catalog, Score: 100, Status: StatusHealthy},
		{Group: groups.Scans, Score: 50, Status: StatusOffline},
	})
	if summary.Status != StatusOffline {
		t.Fatalf("expected offline, got %s", summary.Status)
	}
	if summary.Score != 75 {
		t.Fatalf("expected mean score 75, got %d", summary.Score)
	}
}
