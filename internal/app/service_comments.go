package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"taskboard/api/internal/board"
	"taskboard/api/internal/store"
)

// CommentStore abstracts the two storage generations for a task's thread:
// rows in a dedicated table, or an array embedded in the task's metadata.
// Both produce the same comment shape, creation-time ascending.
type CommentStore interface {
	List(ctx context.Context, taskID string) ([]store.TaskComment, error)
	Add(ctx context.Context, taskID, author, content, kind string) (store.TaskComment, error)
}

// undefinedTableCode is Postgres error 42P01, raised when a deployment
// predates the task_comments table.
const undefinedTableCode = "42P01"

func isMissingRelation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode
}

type tableCommentStore struct {
	store dataStore
	now   func() time.Time
}

func (c *tableCommentStore) List(ctx context.Context, taskID string) ([]store.TaskComment, error) {
	return c.store.ListTaskComments(ctx, taskID)
}

func (c *tableCommentStore) Add(ctx context.Context, taskID, author, content, kind string) (store.TaskComment, error) {
	comment := store.TaskComment{
		ID:        newID(),
		TaskID:    taskID,
		Author:    author,
		Content:   content,
		Kind:      kind,
		CreatedAt: c.now(),
	}
	if err := c.store.InsertTaskComment(ctx, comment); err != nil {
		return store.TaskComment{}, err
	}
	return comment, nil
}

// metadataCommentStore keeps the thread under metadata["comments"] on the
// owning task, synthesizing ids and timestamps on write.
type metadataCommentStore struct {
	store dataStore
	now   func() time.Time
}

func (c *metadataCommentStore) List(ctx context.Context, taskID string) ([]store.TaskComment, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	comments := decodeMetadataComments(task)
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func (c *metadataCommentStore) Add(ctx context.Context, taskID, author, content, kind string) (store.TaskComment, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return store.TaskComment{}, err
	}
	comment := store.TaskComment{
		ID:        newID(),
		TaskID:    taskID,
		Author:    author,
		Content:   content,
		Kind:      kind,
		CreatedAt: c.now(),
	}
	metadata := task.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	existing, _ := metadata["comments"].([]any)
	metadata["comments"] = append(existing, map[string]any{
		"id":         comment.ID,
		"author":     comment.Author,
		"content":    comment.Content,
		"kind":       comment.Kind,
		"created_at": comment.CreatedAt.Format(time.RFC3339Nano),
	})
	if err := c.store.UpdateTaskMetadata(ctx, taskID, metadata); err != nil {
		return store.TaskComment{}, err
	}
	return comment, nil
}

func decodeMetadataComments(task store.Task) []store.TaskComment {
	raw, _ := task.Metadata["comments"].([]any)
	comments := make([]store.TaskComment, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		comment := store.TaskComment{
			TaskID: task.ID,
			Kind:   store.EntryKindComment,
		}
		comment.ID, _ = entry["id"].(string)
		comment.Author, _ = entry["author"].(string)
		comment.Content, _ = entry["content"].(string)
		if kind, ok := entry["kind"].(string); ok && kind != "" {
			comment.Kind = kind
		}
		if stamp, ok := entry["created_at"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
				comment.CreatedAt = parsed
			}
		}
		comments = append(comments, comment)
	}
	return comments
}

// dualCommentStore probes the table path and drops to the metadata path
// permanently once the table is observed to be missing.
type dualCommentStore struct {
	table    *tableCommentStore
	metadata *metadataCommentStore
	fallback atomic.Bool
}

func newDualCommentStore(dataStore dataStore, now func() time.Time) *dualCommentStore {
	return &dualCommentStore{
		table:    &tableCommentStore{store: dataStore, now: now},
		metadata: &metadataCommentStore{store: dataStore, now: now},
	}
}

func (c *dualCommentStore) List(ctx context.Context, taskID string) ([]store.TaskComment, error) {
	if c.fallback.Load() {
		return c.metadata.List(ctx, taskID)
	}
	comments, err := c.table.List(ctx, taskID)
	if isMissingRelation(err) {
		c.fallback.Store(true)
		return c.metadata.List(ctx, taskID)
	}
	return comments, err
}

func (c *dualCommentStore) Add(ctx context.Context, taskID, author, content, kind string) (store.TaskComment, error) {
	if c.fallback.Load() {
		return c.metadata.Add(ctx, taskID, author, content, kind)
	}
	comment, err := c.table.Add(ctx, taskID, author, content, kind)
	if isMissingRelation(err) {
		c.fallback.Store(true)
		return c.metadata.Add(ctx, taskID, author, content, kind)
	}
	return comment, err
}

// ── Service surface ──

func (s *Service) ListComments(ctx context.Context, taskID string) ([]store.TaskComment, error) {
	if taskID == "" {
		return nil, validationError("taskId is required")
	}
	return s.comments.List(ctx, taskID)
}

func (s *Service) AddComment(ctx context.Context, taskID, author, content string) (store.TaskComment, error) {
	if taskID == "" {
		return store.TaskComment{}, validationError("task_id is required")
	}
	if strings.TrimSpace(content) == "" {
		return store.TaskComment{}, validationError("content is required")
	}
	if author == "" {
		author = board.Unassigned
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return store.TaskComment{}, err
	}
	comment, err := s.comments.Add(ctx, taskID, author, content, store.EntryKindComment)
	if err != nil {
		return store.TaskComment{}, err
	}
	if task.Assignee != board.Unassigned && task.Assignee != author {
		s.notify(ctx, store.Notification{
			UserID:  task.Assignee,
			Type:    "new_comment",
			Title:   "New comment",
			Message: fmt.Sprintf("%s commented on %q", author, task.Title),
			TaskID:  &task.ID,
		})
	}
	return comment, nil
}

// appendActivity records a derived thread entry; failures are logged, never
// surfaced, so a mutation cannot fail on its own audit trail.
func (s *Service) appendActivity(ctx context.Context, taskID, author, content string) {
	if _, err := s.comments.Add(ctx, taskID, author, content, store.EntryKindActivity); err != nil {
		log.Printf("append activity entry for task %s: %v", taskID, err)
	}
}
