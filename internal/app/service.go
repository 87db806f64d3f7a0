package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskboard/api/internal/board"
	"taskboard/api/internal/config"
	"taskboard/api/internal/store"
)

type dataStore interface {
	Ping(ctx context.Context) error

	ListProjects(context.Context) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) error
	UpdateProject(context.Context, string, string, string) error
	DeleteProject(context.Context, string) error

	ListTasks(context.Context, store.TaskFilter) ([]store.Task, error)
	GetTask(context.Context, string) (store.Task, error)
	InsertTask(context.Context, store.Task) error
	UpdateTask(context.Context, store.Task) error
	DeleteTask(context.Context, string) error
	MaxPosition(context.Context, *string, string) (float64, error)
	UpsertTaskByExternalID(context.Context, store.Task) error
	ArchiveStaleTasks(context.Context, time.Time) ([]string, error)
	UpdateTaskMetadata(context.Context, string, map[string]any) error

	ListTaskComments(context.Context, string) ([]store.TaskComment, error)
	InsertTaskComment(context.Context, store.TaskComment) error

	InsertNotification(context.Context, store.Notification) error
	MarkNotificationReadIfUnread(context.Context, string) (bool, error)
	ListPendingDeliverable(context.Context, string, []string, int) ([]store.Notification, error)
	ListNotifications(context.Context, string) ([]store.Notification, error)

	InsertMoveMetric(context.Context, store.MoveMetric) error
	InsertPRMetric(context.Context, store.PRMetric) error

	InsertAgentRunLog(context.Context, store.AgentRunLog) error
	ListAgentRunLogs(context.Context, string, int) ([]store.AgentRunLog, error)
}

// chatClient is the external delivery channel for the privileged user.
type chatClient interface {
	IsConfigured() bool
	SendMessage(ctx context.Context, text string) error
}

// trackerClient pushes a task's status back to the external issue tracker.
type trackerClient interface {
	IsConfigured() bool
	UpdateIssueStatus(ctx context.Context, repo string, issueNumber int, currentLabels []string, target board.Status) error
}

// deliveryLog remembers webhook delivery GUIDs; may be nil (no redis).
type deliveryLog interface {
	Seen(ctx context.Context, deliveryGUID string) (bool, error)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	chat       chatClient
	tracker    trackerClient
	deliveries deliveryLog
	comments   CommentStore
	now        func() time.Time
}

func New(cfg config.Config, dataStore dataStore, chat chatClient, tracker trackerClient) *Service {
	s := &Service{
		cfg:     cfg,
		store:   dataStore,
		chat:    chat,
		tracker: tracker,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.comments = newDualCommentStore(dataStore, s.now)
	return s
}

// NewWithDeliveryLog additionally wires the redis-backed webhook dedupe.
func NewWithDeliveryLog(cfg config.Config, dataStore dataStore, chat chatClient, tracker trackerClient, deliveries deliveryLog) *Service {
	s := New(cfg, dataStore, chat, tracker)
	s.deliveries = deliveries
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CronSecret() string {
	return s.cfg.CronSecret
}

func (s *Service) AgentJWTSecret() []byte {
	return []byte(s.cfg.AgentJWTSecret)
}

func (s *Service) WebhookSecret() string {
	return s.cfg.GitHubWebhookSecret
}

func newID() string {
	return uuid.NewString()
}

// ── Projects ──

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := strings.Trim(slugCleaner.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "project"
	}
	return slug
}

func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *Service) CreateProject(ctx context.Context, name, slug string) (store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Project{}, validationError("name is required")
	}
	if slug == "" {
		slug = slugify(name)
	}
	project := store.Project{
		ID:        newID(),
		Name:      name,
		Slug:      slug,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return store.Project{}, err
	}
	return s.store.GetProject(ctx, project.ID)
}

func (s *Service) UpdateProject(ctx context.Context, projectID, name, slug string) (store.Project, error) {
	prior, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if name == "" {
		name = prior.Name
	}
	if slug == "" {
		slug = prior.Slug
	}
	if err := s.store.UpdateProject(ctx, projectID, name, slug); err != nil {
		return store.Project{}, err
	}
	return s.store.GetProject(ctx, projectID)
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	return s.store.DeleteProject(ctx, projectID)
}

// ── Agent run logs ──

type AgentRunLogInput struct {
	TaskName  string         `json:"task_name"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
	StartedAt string         `json:"started_at"`
	EndedAt   string         `json:"ended_at"`
}

func (s *Service) CreateAgentRunLog(ctx context.Context, agentID string, input AgentRunLogInput) (string, error) {
	startedAt := s.now()
	if input.StartedAt != "" {
		parsed, err := time.Parse(time.RFC3339, input.StartedAt)
		if err != nil {
			return "", validationError("started_at must be an ISO-8601 timestamp")
		}
		startedAt = parsed
	}
	var endedAt *time.Time
	if input.EndedAt != "" {
		parsed, err := time.Parse(time.RFC3339, input.EndedAt)
		if err != nil {
			return "", validationError("ended_at must be an ISO-8601 timestamp")
		}
		endedAt = &parsed
	}
	entry := store.AgentRunLog{
		ID:        newID(),
		AgentID:   agentID,
		TaskName:  input.TaskName,
		Status:    input.Status,
		Payload:   input.Payload,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
	if err := s.store.InsertAgentRunLog(ctx, entry); err != nil {
		return "", fmt.Errorf("save run log: %w", err)
	}
	return entry.ID, nil
}

func (s *Service) ListAgentRunLogs(ctx context.Context, agentID string) ([]store.AgentRunLog, error) {
	return s.store.ListAgentRunLogs(ctx, agentID, 20)
}
