// Package drorchestrator is the DR Orchestrator: it ties the health
// prober, cache coordinator, backup engine, and failover engine together,
// owns SiteStatus and DisasterEvent state, and drives both the continuous
// monitoring tick and the nightly backup schedule.
package drorchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
)

// Role is a site's current position in the fleet.
type Role string

const (
	Primary   Role = "PRIMARY"
	Secondary Role = "SECONDARY"
	SiteFailed Role = "FAILED"
)

// SiteStatus tracks one site's role, health, and failover history. The
// orchestrator is the sole mutator of Role; health fields are updated by
// the monitoring tick from Health Prober results.
type SiteStatus struct {
	SiteID                    string
	Role                      Role
	Healthy                   bool
	ConsecutiveHealthFailures int
	ReplicationLagSeconds     int
	LastHealthCheck           time.Time
	LastFailoverTime          time.Time
}

// SiteRegistry owns every SiteStatus. A single RWMutex is sufficient: site
// counts are small (single digits) and role/health never mutate at
// request-path frequency.
type SiteRegistry struct {
	mu    sync.RWMutex
	sites map[string]*SiteStatus
}

// NewSiteRegistry seeds the registry from startup configuration: one
// primary site id and zero or more secondary site ids.
func NewSiteRegistry(primaryID string, secondaryIDs []string) *SiteRegistry {
	sr := &SiteRegistry{sites: make(map[string]*SiteStatus)}
	if primaryID != "" {
		sr.sites[primaryID] = &SiteStatus{SiteID: primaryID, Role: Primary}
	}
	for _, id := range secondaryIDs {
		sr.sites[id] = &SiteStatus{SiteID: id, Role: Secondary}
	}
	return sr
}

// Get returns a copy of one site's status.
func (sr *SiteRegistry) Get(siteID string) (SiteStatus, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	s, ok := sr.sites[siteID]
	if !ok {
		return SiteStatus{}, false
	}
	return *s, true
}

// List returns every site's status, ordered by site id for deterministic
// responses.
func (sr *SiteRegistry) List() []SiteStatus {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	out := make([]SiteStatus, 0, len(sr.sites))
	for _, s := range sr.sites {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}

// Primary returns the current primary site, if any.
func (sr *SiteRegistry) Primary() (SiteStatus, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	for _, s := range sr.sites {
		if s.Role == Primary {
			return *s, true
		}
	}
	return SiteStatus{}, false
}

// Secondaries returns every site currently in the SECONDARY role.
func (sr *SiteRegistry) Secondaries() []SiteStatus {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	out := make([]SiteStatus, 0, len(sr.sites))
	for _, s := range sr.sites {
		if s.Role == Secondary {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}

// RecordHealthCheck updates a site's health fields from the latest probe
// result, tracking consecutive failures the way the instance-level
// breaker's failure counter does.
func (sr *SiteRegistry) RecordHealthCheck(siteID string, healthy bool, lagSeconds int, checkedAt time.Time) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	s, ok := sr.sites[siteID]
	if !ok {
		return
	}
	s.Healthy = healthy
	s.ReplicationLagSeconds = lagSeconds
	s.LastHealthCheck = checkedAt
	if healthy {
		s.ConsecutiveHealthFailures = 0
	} else {
		s.ConsecutiveHealthFailures++
	}
}

// Promote swaps roles after a successful failover: target becomes PRIMARY,
// source becomes FAILED. Only the orchestrator calls this, after the
// Failover Engine reports COMPLETED.
func (sr *SiteRegistry) Promote(sourceSite, targetSite string, at time.Time) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	target, ok := sr.sites[targetSite]
	if !ok {
		return errors.NotFound("site", targetSite)
	}
	target.Role = Primary
	target.LastFailoverTime = at

	if source, ok := sr.sites[sourceSite]; ok {
		source.Role = SiteFailed
		source.LastFailoverTime = at
	}
	return nil
}
