package store

import "time"

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID             string         `json:"id"`
	ProjectID      *string        `json:"project_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         string         `json:"status"`
	Priority       string         `json:"priority"`
	Assignee       string         `json:"assignee"`
	Position       float64        `json:"position"`
	Labels         []string       `json:"labels"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	DueDate        *time.Time     `json:"due_date"`
	RepositoryName string         `json:"repository_name,omitempty"`
	ExternalID     string         `json:"external_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PositionKey and IDKey satisfy board.Positioned.
func (t Task) PositionKey() float64 { return t.Position }
func (t Task) IDKey() string        { return t.ID }

// Thread entry kinds. Human comments and derived activity entries share one
// shape and one thread; kind is the only discriminator.
const (
	EntryKindComment  = "comment"
	EntryKindActivity = "activity"
)

type TaskComment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TaskID    *string   `json:"task_id"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// MoveMetric and PRMetric are append-only observability rows; nothing in
// the API reads them back.
type MoveMetric struct {
	ItemID      int64  `json:"item_id"`
	ToStatus    string `json:"to_status"`
	TriggeredBy string `json:"triggered_by"`
	Repository  string `json:"repository"`
}

type PRMetric struct {
	PRID       int64      `json:"pr_id"`
	MergedAt   *time.Time `json:"merged_at"`
	Repository string     `json:"repository"`
	Additions  int        `json:"additions"`
	Deletions  int        `json:"deletions"`
}

type AgentRunLog struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	TaskName  string         `json:"task_name"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at"`
	CreatedAt time.Time      `json:"created_at"`
}

// TaskFilter narrows ListTasks. Zero values mean "no constraint"; the due
// range bounds are inclusive.
type TaskFilter struct {
	ProjectID string
	DueAfter  *time.Time
	DueBefore *time.Time
}
