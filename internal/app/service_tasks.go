package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"taskboard/api/internal/board"
	"taskboard/api/internal/store"
)

type TaskCreateInput struct {
	ProjectID   *string        `json:"project_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Priority    string         `json:"priority"`
	Assignee    string         `json:"assignee"`
	Labels      []string       `json:"labels"`
	Position    *float64       `json:"position"`
	DueDate     *string        `json:"due_date"`
	Metadata    map[string]any `json:"metadata"`
}

type TaskUpdateInput struct {
	ID          string    `json:"id"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	Assignee    *string   `json:"assignee"`
	Labels      *[]string `json:"labels"`
	Position    *float64  `json:"position"`
	DueDate     *string   `json:"due_date"`
	ChangedBy   string    `json:"changed_by"`
}

func parseDueDate(value *string) (*time.Time, *DomainError) {
	if value == nil || *value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, validationError("due_date must be an ISO-8601 timestamp or null")
	}
	return &parsed, nil
}

func (s *Service) CreateTask(ctx context.Context, input TaskCreateInput) (store.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Task{}, validationError("title is required")
	}
	if input.Status == "" {
		input.Status = string(board.StatusTodo)
	}
	if !board.ValidStatus(input.Status) {
		return store.Task{}, validationError(board.StatusValuesMessage())
	}
	if input.Priority == "" {
		input.Priority = string(board.PriorityMedium)
	}
	if !board.ValidPriority(input.Priority) {
		return store.Task{}, validationError(board.PriorityValuesMessage())
	}
	if input.Assignee == "" {
		input.Assignee = board.Unassigned
	}
	if !board.ValidAssignee(input.Assignee) {
		return store.Task{}, validationError(board.AssigneeValuesMessage())
	}
	dueDate, verr := parseDueDate(input.DueDate)
	if verr != nil {
		return store.Task{}, verr
	}

	metadata := input.Metadata
	if len(input.Labels) > 0 {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["labels"] = input.Labels
	}

	position := 0.0
	if input.Position != nil {
		position = *input.Position
	} else {
		max, err := s.store.MaxPosition(ctx, input.ProjectID, input.Status)
		if err != nil {
			return store.Task{}, err
		}
		position = board.TailPosition(max)
	}

	task := store.Task{
		ID:          newID(),
		ProjectID:   input.ProjectID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		Assignee:    input.Assignee,
		Position:    position,
		Metadata:    metadata,
		DueDate:     dueDate,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return store.Task{}, err
	}
	created, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		return store.Task{}, err
	}

	if created.Assignee != board.Unassigned {
		s.notify(ctx, store.Notification{
			UserID:  created.Assignee,
			Type:    NotificationAssignment,
			Title:   "New task assigned",
			Message: fmt.Sprintf("You have been assigned to %q", created.Title),
			TaskID:  &created.ID,
		})
	}
	return created, nil
}

// resolveActor picks the author for a status-change thread entry: the
// changed_by hint when it names a roster member, else the task's assignee,
// else "unassigned".
func resolveActor(changedBy, assignee string) string {
	if member := board.RosterMember(changedBy); member != "" {
		return member
	}
	if member := board.RosterMember(assignee); member != "" {
		return member
	}
	return board.Unassigned
}

func (s *Service) UpdateTask(ctx context.Context, input TaskUpdateInput) (store.Task, error) {
	if input.ID == "" {
		return store.Task{}, validationError("id is required")
	}
	prior, err := s.store.GetTask(ctx, input.ID)
	if err != nil {
		return store.Task{}, err
	}

	next := prior
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return store.Task{}, validationError("title must not be empty")
		}
		next.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		next.Description = *input.Description
	}
	if input.Status != nil {
		if !board.ValidStatus(*input.Status) {
			return store.Task{}, validationError(board.StatusValuesMessage())
		}
		next.Status = *input.Status
	}
	if input.Priority != nil {
		if !board.ValidPriority(*input.Priority) {
			return store.Task{}, validationError(board.PriorityValuesMessage())
		}
		next.Priority = *input.Priority
	}
	if input.Assignee != nil {
		if !board.ValidAssignee(*input.Assignee) {
			return store.Task{}, validationError(board.AssigneeValuesMessage())
		}
		next.Assignee = *input.Assignee
	}
	if input.Position != nil {
		next.Position = *input.Position
	}
	if input.Labels != nil {
		if next.Metadata == nil {
			next.Metadata = map[string]any{}
		}
		next.Metadata["labels"] = *input.Labels
	}
	if input.DueDate != nil {
		dueDate, verr := parseDueDate(input.DueDate)
		if verr != nil {
			return store.Task{}, verr
		}
		next.DueDate = dueDate
	}

	if err := s.store.UpdateTask(ctx, next); err != nil {
		return store.Task{}, err
	}

	actor := resolveActor(input.ChangedBy, next.Assignee)
	statusChanged := next.Status != prior.Status
	if statusChanged {
		s.appendActivity(ctx, next.ID, actor, "Changed status to "+next.Status)
	}
	if next.Priority != prior.Priority {
		// Attribution quirk kept from the earlier generation: priority and
		// assignee entries never name the actor.
		s.appendActivity(ctx, next.ID, board.Unassigned, "Changed priority to "+next.Priority)
	}
	if next.Assignee != prior.Assignee {
		s.appendActivity(ctx, next.ID, board.Unassigned, "Changed assignee to "+next.Assignee)
	}

	// Three independent triggers; a single update may fire several.
	if next.Assignee != prior.Assignee && next.Assignee != board.Unassigned {
		s.notify(ctx, store.Notification{
			UserID:  next.Assignee,
			Type:    NotificationAssignment,
			Title:   "New task assigned",
			Message: fmt.Sprintf("You have been assigned to %q", next.Title),
			TaskID:  &next.ID,
		})
	}
	if statusChanged && next.Status == string(board.StatusReview) && actor != board.PrivilegedUser {
		s.notify(ctx, store.Notification{
			UserID:  board.PrivilegedUser,
			Type:    NotificationStatusChange,
			Title:   "Task ready for review",
			Message: fmt.Sprintf("%q was moved to review", next.Title),
			TaskID:  &next.ID,
		})
	}
	if statusChanged && next.Status == string(board.StatusDone) && next.Assignee != board.Unassigned {
		s.notify(ctx, store.Notification{
			UserID:  next.Assignee,
			Type:    NotificationStatusChange,
			Title:   "Task completed",
			Message: fmt.Sprintf("%q was marked done", next.Title),
			TaskID:  &next.ID,
		})
	}

	if statusChanged {
		s.syncTrackerStatus(ctx, next)
	}

	return s.store.GetTask(ctx, next.ID)
}

// syncTrackerStatus pushes a linked task's new status back to the tracker.
// Best effort: failures are logged and never surfaced to the caller.
func (s *Service) syncTrackerStatus(ctx context.Context, task store.Task) {
	if s.tracker == nil || !s.tracker.IsConfigured() {
		return
	}
	if task.RepositoryName == "" || task.ExternalID == "" {
		return
	}
	issueNumber, ok := task.Metadata["issue_number"].(float64)
	if !ok || issueNumber <= 0 {
		return
	}
	labels := task.Labels
	if snapshot, ok := task.Metadata["github_labels"].([]any); ok {
		labels = labels[:0]
		for _, item := range snapshot {
			if label, ok := item.(string); ok {
				labels = append(labels, label)
			}
		}
	}
	err := s.tracker.UpdateIssueStatus(ctx, task.RepositoryName, int(issueNumber), labels, board.Status(task.Status))
	if err != nil {
		log.Printf("sync status for task %s to %s#%d: %v", task.ID, task.RepositoryName, int(issueNumber), err)
	}
}

func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return validationError("id is required")
	}
	return s.store.DeleteTask(ctx, taskID)
}

// ListTasks filters by project and inclusive due-date range. Bounds arrive
// as raw query strings and must be ISO-8601 when present.
func (s *Service) ListTasks(ctx context.Context, projectID, dueAfter, dueBefore string) ([]store.Task, error) {
	filter := store.TaskFilter{ProjectID: projectID}
	if dueAfter != "" {
		parsed, err := time.Parse(time.RFC3339, dueAfter)
		if err != nil {
			return nil, validationError("dueAfter must be an ISO-8601 timestamp")
		}
		filter.DueAfter = &parsed
	}
	if dueBefore != "" {
		parsed, err := time.Parse(time.RFC3339, dueBefore)
		if err != nil {
			return nil, validationError("dueBefore must be an ISO-8601 timestamp")
		}
		filter.DueBefore = &parsed
	}
	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	board.SortByPosition(tasks)
	return tasks, nil
}

const staleDoneAge = 15 * 24 * time.Hour

type ArchiveResult struct {
	ArchivedCount   int       `json:"archived_count"`
	ArchivedTaskIDs []string  `json:"archived_task_ids"`
	ArchivedBefore  time.Time `json:"archived_before"`
}

// ArchiveStaleTasks moves done tasks untouched for 15 days to archived.
func (s *Service) ArchiveStaleTasks(ctx context.Context) (ArchiveResult, error) {
	cutoff := s.now().Add(-staleDoneAge)
	ids, err := s.store.ArchiveStaleTasks(ctx, cutoff)
	if err != nil {
		return ArchiveResult{}, err
	}
	return ArchiveResult{
		ArchivedCount:   len(ids),
		ArchivedTaskIDs: ids,
		ArchivedBefore:  cutoff,
	}, nil
}
