package models

import (
	"strings"
	"time"
)

// JobStatus is the execution status of a scan job as reported by the backend.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobStopped   JobStatus = "stopped"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further operator action applies to the job.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobStopped, JobFailed:
		return true
	}
	return false
}

// ScanJob tracks a single scan execution on the backend.
type ScanJob struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Target    string    `json:"target"`
	Type      string    `json:"type"`
	Status    JobStatus `json:"status"`
}

// Stoppable reports whether the stop action may be offered for the job.
func (j ScanJob) Stoppable() bool {
	return j.Status == JobRunning
}

// ScanType selects the scan profile.
type ScanType string

const (
	ScanFast   ScanType = "fast"
	ScanFull   ScanType = "full"
	ScanCustom ScanType = "custom"
)

// ScanTypes lists the profiles in the order they are offered.
var ScanTypes = []ScanType{ScanFast, ScanFull, ScanCustom}

// ParseScanType validates a profile name (case-insensitive). Empty means fast.
func ParseScanType(raw string) (ScanType, bool) {
	switch t := ScanType(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return ScanFast, true
	case ScanFast, ScanFull, ScanCustom:
		return t, true
	}
	return "", false
}

// ScanRequest is the body of a scan launch.
type ScanRequest struct {
	Target    string   `json:"target"`
	Type      ScanType `json:"type"`
	Templates string   `json:"templates"` // comma-separated template ids or tags
}

// Stats is the dashboard snapshot returned by the backend.
type Stats struct {
	TotalVulnerabilities int64     `json:"total_vulnerabilities"`
	ActiveScans          int64     `json:"active_scans"`
	CriticalIssues       int64     `json:"critical_issues"`
	RecentScans          []ScanJob `json:"recent_scans"`
	CriticalFindings     []Finding `json:"critical_findings"`
	VulnerabilityChange  string    `json:"vulnerability_change"`
	VulnerabilityTrend   string    `json:"vulnerability_trend"` // up | down | neutral
}

// Job returns the job with id from the recent scans list.
func (s *Stats) Job(id int64) (ScanJob, bool) {
	if s == nil {
		return ScanJob{}, false
	}
	for _, j := range s.RecentScans {
		if j.ID == id {
			return j, true
		}
	}
	return ScanJob{}, false
}

// Template is one entry of the backend's template catalog.
type Template struct {
	Name string `json:"name"`
	Path string `json:"path"`
}
