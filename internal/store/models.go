package store

import (
	"strings"
	"time"
)

// Status represents the migration lifecycle of a file item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends processing for the current run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// Platform identifies the deliverable target of a file group.
type Platform string

const (
	PlatformPC Platform = "pc"
	PlatformPE Platform = "pe"
)

// ParsePlatform converts a string into a known Platform.
func ParsePlatform(value string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(value))) {
	case PlatformPC:
		return PlatformPC, true
	case PlatformPE:
		return PlatformPE, true
	default:
		return "", false
	}
}

// FileItem is one physical object slated for migration. Items are created
// during planning, mutated only by the pipeline, and never deleted; failed and
// skipped items remain for audit and retry.
type FileItem struct {
	ID             int64
	GroupKey       string
	Ordinal        int
	OriginalKey    string
	OriginalName   string
	OriginalSize   int64
	NewKey         string
	NewName        string
	NewSize        int64
	NewHash        string
	NewContentType string
	CatalogID      int64
	Platform       Platform
	Status         Status
	SkippedReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SetSkipped marks the item skipped with the given reason.
func (i *FileItem) SetSkipped(reason string) {
	i.Status = StatusSkipped
	i.SkippedReason = reason
}

// FileGroup is one logical deliverable: all physical volumes of one archive
// for one catalog entry and platform. Items are ordered by first appearance
// in the source listing.
type FileGroup struct {
	Key       string
	CatalogID int64
	Platform  Platform
	Items     []*FileItem
}

// AllCompleted reports whether every item already finished a prior run.
func (g *FileGroup) AllCompleted() bool {
	return g.allIn(StatusCompleted)
}

// AllSkipped reports whether every item was previously skipped.
func (g *FileGroup) AllSkipped() bool {
	return g.allIn(StatusSkipped)
}

func (g *FileGroup) allIn(status Status) bool {
	if len(g.Items) == 0 {
		return false
	}
	for _, item := range g.Items {
		if item.Status != status {
			return false
		}
	}
	return true
}

// StatusCounts aggregates item counts per lifecycle state for presentation.
type StatusCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Skipped    int
}
