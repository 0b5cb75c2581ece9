package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a sync task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusSuccess,
	StatusFailed,
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

// IsTerminal reports whether a status requires external action to leave.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Platform identifies one of the two document platforms.
type Platform string

const (
	PlatformFeishu Platform = "feishu"
	PlatformNotion Platform = "notion"
)

// ParsePlatform converts a string into a known Platform.
func ParsePlatform(value string) (Platform, bool) {
	normalized := Platform(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case PlatformFeishu, PlatformNotion:
		return normalized, true
	default:
		return "", false
	}
}

// Valid reports whether the platform is one of the known values.
func (p Platform) Valid() bool {
	_, ok := ParsePlatform(string(p))
	return ok
}

// ContentType categorizes what a task syncs.
type ContentType string

const (
	ContentDocument ContentType = "document"
	ContentTable    ContentType = "table"
	ContentPage     ContentType = "page"
)

// Direction declares which way a sync config moves content.
type Direction string

const (
	DirectionFeishuToNotion Direction = "feishu_to_notion"
	DirectionNotionToFeishu Direction = "notion_to_feishu"
	DirectionBidirectional  Direction = "bidirectional"
)

// Allows reports whether the direction permits syncing source to target.
func (d Direction) Allows(source, target Platform) bool {
	switch d {
	case DirectionFeishuToNotion:
		return source == PlatformFeishu && target == PlatformNotion
	case DirectionNotionToFeishu:
		return source == PlatformNotion && target == PlatformFeishu
	case DirectionBidirectional:
		return source != target
	default:
		return false
	}
}

// Task represents a sync task record persisted in SQLite.
type Task struct {
	ID             int64
	TaskNumber     string
	SourcePlatform Platform
	TargetPlatform Platform
	SourceID       string
	TargetID       string
	ContentType    ContentType
	DocumentTitle  string
	Status         Status
	AttemptCount   int
	MaxAttempts    int
	ErrorMessage   string
	LastAttemptAt  *time.Time
	NextAttemptAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Due reports whether the task's backoff window has elapsed.
func (t Task) Due(now time.Time) bool {
	if t.NextAttemptAt == nil {
		return true
	}
	return !t.NextAttemptAt.After(now)
}

// SyncConfig declares a recurring binding between a source document and a
// target. Owned by the orchestrator; the dispatcher only reads snapshots.
type SyncConfig struct {
	ID             int64
	Platform       Platform
	DocumentID     string
	Direction      Direction
	Enabled        bool
	NotionParentID string
	Category       string
	LastSyncedAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MediaMapping is a content-addressed record of one relocated asset.
type MediaMapping struct {
	ID             int64
	ContentHash    string
	OriginURL      string
	RelocatedURL   string
	ByteSize       int64
	MimeType       string
	ReferenceCount int64
	CreatedAt      time.Time
}

// HealthSummary describes aggregated task counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Success    int
	Failed     int
}
