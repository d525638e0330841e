package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/meridian-data/governance-gateway/internal/apiclient"
	"github.com/meridian-data/governance-gateway/internal/groups"
	"github.com/meridian-data/governance-gateway/internal/metrics"
)

// Prober issues a single unretried probe request.
type Prober interface {
	Probe(ctx context.Context, method, path string) apiclient.ProbeResult
}

// Options configure the validator.
type Options struct {
	Prober   Prober
	Registry *groups.Registry
	// LatencyBudget applies to endpoints without their own budget.
	LatencyBudget time.Duration
	Logger        *log.Logger
}

// Validator probes every endpoint of the registered service groups and
// converts failures into scored issues. It never fails outright: a broken
// backend degrades the score instead of raising an error.
type Validator struct {
	prober        Prober
	registry      *groups.Registry
	latencyBudget time.Duration
	logger        *log.Logger
}

// New creates a validator.
func New(opts Options) *Validator {
	if opts.LatencyBudget <= 0 {
		opts.LatencyBudget = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Validator{
		prober:        opts.Prober,
		registry:      opts.Registry,
		latencyBudget: opts.LatencyBudget,
		logger:        opts.Logger,
	}
}

// ValidateAll runs one validation pass over every registered group.
func (v *Validator) ValidateAll(ctx context.Context) Summary {
	list := v.registry.List()
	reports := make([]Report, 0, len(list))
	for _, g := range list {
		reports = append(reports, v.ValidateGroup(ctx, g))
	}
	return Overall(reports)
}

// ValidateGroup probes every endpoint of one group and scores the result.
func (v *Validator) ValidateGroup(ctx context.Context, g groups.Group) Report {
	report := Report{
		Group:     g.ID,
		GroupName: g.Name,
		Endpoints: len(g.Endpoints),
		CheckedAt: time.Now().UTC(),
	}

	var totalLatency time.Duration
	unreachable := 0
	failedEndpoints := map[string]bool{}

	for _, ep := range g.Endpoints {
		res := v.prober.Probe(ctx, ep.Method, ep.Path)
		totalLatency += res.Latency
		if res.Latency.Milliseconds() > report.MaxLatencyMs {
			report.MaxLatencyMs = res.Latency.Milliseconds()
		}

		issues := v.classify(ep, res)
		if res.Err != nil {
			unreachable++
		}
		outcome := "ok"
		if len(issues) > 0 {
			outcome = string(issues[0].Category)
			failedEndpoints[ep.Name] = true
		}
		metrics.ObserveProbe(string(g.ID), outcome, res.Latency)
		report.Issues = append(report.Issues, issues...)
	}

	report.Failed = len(failedEndpoints)
	if len(g.Endpoints) > 0 {
		report.AvgLatencyMs = (totalLatency / time.Duration(len(g.Endpoints))).Milliseconds()
	}
	report.Score = Score(report.Issues)
	report.Status = StatusFor(report.Score, report.Issues, len(g.Endpoints) > 0 && unreachable == len(g.Endpoints))
	metrics.SetIntegrationScore(string(g.ID), report.Score)
	return report
}

// classify converts one probe outcome into zero or more issues.
func (v *Validator) classify(ep groups.Endpoint, res apiclient.ProbeResult) []Issue {
	if res.Err != nil {
		return []Issue{issueFor(CategoryAvailability, ep.Name, fmt.Sprintf("endpoint unreachable: %v", res.Err))}
	}

	var issues []Issue
	switch {
	case res.StatusCode == 401 || res.StatusCode == 403:
		issues = append(issues, issueFor(CategoryPermission, ep.Name, fmt.Sprintf("access denied (%d)", res.StatusCode)))
	case res.StatusCode >= 300:
		issues = append(issues, issueFor(CategoryAvailability, ep.Name, fmt.Sprintf("unexpected status %d", res.StatusCode)))
	default:
		if issue := v.checkSchema(ep, res.Body); issue != nil {
			issues = append(issues, *issue)
		}
		if containsMockMarker(res.Body) {
			issues = append(issues, issueFor(CategoryMockData, ep.Name, "response carries mock-data markers"))
		}
	}

	budget := ep.LatencyBudget
	if budget <= 0 {
		budget = v.latencyBudget
	}
	if res.Latency > budget {
		issues = append(issues, issueFor(CategoryPerformance, ep.Name, fmt.Sprintf("probe took %s (budget %s)", res.Latency.Round(time.Millisecond), budget)))
	}

	// A broken critical endpoint takes the whole group to critical status.
	// Penalties stay fixed per category; only the severity escalates, and a
	// slow-but-working critical endpoint stays low severity.
	if ep.Critical {
		for i := range issues {
			if issues[i].Category != CategoryPerformance {
				issues[i].Severity = SeverityCritical
			}
		}
	}
	return issues
}

func (v *Validator) checkSchema(ep groups.Endpoint, body []byte) *Issue {
	if len(ep.Schema) == 0 {
		return nil
	}
	if len(body) == 0 || !json.Valid(body) {
		issue := issueFor(CategorySchema, ep.Name, "response is not valid JSON")
		return &issue
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(ep.Schema),
		gojsonschema.NewBytesLoader(body),
	)
	if err != nil {
		v.logger.Printf("health: schema check for %s failed: %v", ep.Name, err)
		issue := issueFor(CategorySchema, ep.Name, fmt.Sprintf("schema validation error: %v", err))
		return &issue
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		issue := issueFor(CategorySchema, ep.Name, "response does not match contract: "+strings.Join(msgs, "; "))
		return &issue
	}
	return nil
}

func issueFor(cat Category, endpoint, message string) Issue {
	return Issue{
		Category: cat,
		Severity: severities[cat],
		Endpoint: endpoint,
		Message:  message,
	}
}

var mockMarkers = []string{
	`"mock":true`,
	`"mock": true`,
	`"ismock":true`,
	`"ismock": true`,
	`"mockdata"`,
	`"mock_data"`,
	"lorem ipsum",
}

// containsMockMarker flags responses that still ship placeholder data.
func containsMockMarker(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, marker := range mockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
