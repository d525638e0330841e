// Package health probes backend service group endpoints and produces the
// 0-100 integration score shown in the console.
package health

import (
	"time"

	"github.com/meridian-data/governance-gateway/internal/groups"
)

// Category classifies a probe failure.
type Category string

const (
	CategoryAvailability Category = "availability"
	CategoryPermission   Category = "permission"
	CategorySchema       Category = "schema"
	CategoryMockData     Category = "mock-data"
	CategoryPerformance  Category = "performance"
)

// Severity ranks an issue category.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Fixed penalty weights per issue category.
var penalties = map[Category]int{
	CategoryAvailability: 25,
	CategoryPermission:   15,
	CategorySchema:       10,
	CategoryMockData:     10,
	CategoryPerformance:  5,
}

var severities = map[Category]Severity{
	CategoryAvailability: SeverityCritical,
	CategoryPermission:   SeverityHigh,
	CategorySchema:       SeverityMedium,
	CategoryMockData:     SeverityMedium,
	CategoryPerformance:  SeverityLow,
}

// Issue is one categorized probe failure.
type Issue struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Endpoint string   `json:"endpoint"`
	Message  string   `json:"message"`
}

// Status buckets a group's score.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
	StatusOffline  Status = "offline"
)

// Report is the integration health of one service group. It is recomputed
// wholesale on every validation pass.
type Report struct {
	Group        groups.ID `json:"group"`
	GroupName    string    `json:"groupName,omitempty"`
	Score        int       `json:"score"`
	Status       Status    `json:"status"`
	Issues       []Issue   `json:"issues,omitempty"`
	Endpoints    int       `json:"endpoints"`
	Failed       int       `json:"failed"`
	AvgLatencyMs int64     `json:"avgLatencyMs"`
	MaxLatencyMs int64     `json:"maxLatencyMs"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// Summary aggregates the per-group reports for one validation pass.
type Summary struct {
	Score     int       `json:"score"`
	Status    Status    `json:"status"`
	Reports   []Report  `json:"reports"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Score computes 100 minus the penalty sum, clamped to [0,100].
func Score(issues []Issue) int {
	score := 100
	for _, issue := range issues {
		score -= penalties[issue.Category]
	}
	if score < 0 {
		score = 0
	}
	return score
}

// StatusFor buckets a score. Any critical issue forces at least critical,
// and a group whose every probe failed to connect is offline.
func StatusFor(score int, issues []Issue, allUnreachable bool) Status {
	if allUnreachable {
		return StatusOffline
	}
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return StatusCritical
		}
	}
	switch {
	case score < 40:
		return StatusCritical
	case score < 70:
		return StatusDegraded
	case score < 90:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

var statusRank = map[Status]int{
	StatusHealthy:  0,
	StatusWarning:  1,
	StatusDegraded: 2,
	StatusCritical: 3,
	StatusOffline:  4,
}

// Overall folds per-group reports into a console-level summary: the mean
// score and the worst group status.
func Overall(reports []Report) Summary {
	s := Summary{Status: StatusHealthy, Reports: reports, CheckedAt: time.Now().UTC()}
	if len(reports) == 0 {
		s.Score = 100
		return s
	}
	total := 0
	for _, r := range reports {
		total += r.Score
		if statusRank[r.Status] > statusRank[s.Status] {
			s.Status = r.Status
		}
	}
	s.Score = total / len(reports)
	return s
}
