// Package groups describes the backend service groups the gateway
// coordinates and the endpoints each one exposes for probing.
package groups

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ID identifies a backend service group.
type ID string

// The six governance service groups.
const (
	DataSources     ID = "data-sources"
	ScanRuleSets    ID = "scan-rule-sets"
	Scans           ID = "scans"
	Catalog         ID = "catalog"
	Classifications ID = "classifications"
	Compliance      ID = "compliance"
)

// Endpoint is a single probe target within a service group.
type Endpoint struct {
	Name   string `json:"name"`
	Method string `json:"method,omitempty"`
	Path   string `json:"path"`
	// Critical endpoints escalate any non-performance probe failure to
	// critical severity, which forces the group into critical status.
	Critical      bool            `json:"critical,omitempty"`
	LatencyBudget time.Duration   `json:"-"`
	LatencyMs     int             `json:"latencyBudgetMs,omitempty"`
	Schema        json.RawMessage `json:"schema,omitempty"`
}

// Group is one backend service group with its probe endpoints.
type Group struct {
	ID        ID         `json:"id"`
	Name      string     `json:"name"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Registry holds the configured service groups.
type Registry struct {
	groups map[ID]Group
}

// NewRegistry builds a registry from the provided groups.
func NewRegistry(list []Group) (*Registry, error) {
	r := &Registry{groups: make(map[ID]Group, len(list))}
	for _, g := range list {
		if g.ID == "" {
			return nil, fmt.Errorf("group with empty id")
		}
		if _, exists := r.groups[g.ID]; exists {
			return nil, fmt.Errorf("duplicate group %q", g.ID)
		}
		for i := range g.Endpoints {
			ep := &g.Endpoints[i]
			if ep.Path == "" {
				return nil, fmt.Errorf("group %q: endpoint %q has empty path", g.ID, ep.Name)
			}
			if ep.Method == "" {
				ep.Method = http.MethodGet
			}
			if ep.LatencyMs > 0 {
				ep.LatencyBudget = time.Duration(ep.LatencyMs) * time.Millisecond
			}
		}
		r.groups[g.ID] = g
	}
	return r, nil
}

// Get returns the group with the given id.
func (r *Registry) Get(id ID) (Group, bool) {
	g, ok := r.groups[id]
	return g, ok
}

// List returns all groups ordered by id.
func (r *Registry) List() []Group {
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered groups.
func (r *Registry) Count() int {
	return len(r.groups)
}

// Defaults returns the built-in registry covering all six service groups
// with their standard /api/v1 probe endpoints.
func Defaults() *Registry {
	list := []Group{
		{
			ID:   DataSources,
			Name: "Data Sources",
			Endpoints: []Endpoint{
				{Name: "list", Path: "/api/v1/data-sources", Critical: true},
				{Name: "health", Path: "/api/v1/data-sources/health"},
				{Name: "connection-stats", Path: "/api/v1/data-sources/stats"},
			},
		},
		{
			ID:   ScanRuleSets,
			Name: "Scan Rule Sets",
			Endpoints: []Endpoint{
				{Name: "list", Path: "/api/v1/scan-rule-sets", Critical: true},
				{Name: "templates", Path: "/api/v1/scan-rule-sets/templates"},
			},
		},
		{
			ID:   Scans,
			Name: "Scans",
			Endpoints: []Endpoint{
				{Name: "list", Path: "/api/v1/scans", Critical: true},
				{Name: "schedules", Path: "/api/v1/scans/schedules"},
				{Name: "active", Path: "/api/v1/scans/active"},
			},
		},
		{
			ID:   Catalog,
			Name: "Data Catalog",
			Endpoints: []Endpoint{
				{Name: "assets", Path: "/api/v1/catalog/assets", Critical: true},
				{Name: "lineage", Path: "/api/v1/catalog/lineage"},
				{Name: "glossary", Path: "/api/v1/catalog/glossary"},
			},
		},
		{
			ID:   Classifications,
			Name: "Classifications",
			Endpoints: []Endpoint{
				{Name: "list", Path: "/api/v1/classifications", Critical: true},
				{Name: "rules", Path: "/api/v1/classifications/rules"},
			},
		},
		{
			ID:   Compliance,
			Name: "Compliance",
			Endpoints: []Endpoint{
				{Name: "requirements", Path: "/api/v1/compliance/requirements", Critical: true},
				{Name: "violations", Path: "/api/v1/compliance/violations"},
				{Name: "reports", Path: "/api/v1/compliance/reports"},
			},
		},
	}
	r, err := NewRegistry(list)
	if err != nil {
		// Defaults are static; a construction failure is a programming error.
		panic(err)
	}
	return r
}
