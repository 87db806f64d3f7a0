package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Projects ──

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, created_at
		FROM projects
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, created_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`, project.ID, project.Name, project.Slug, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID, name, slug string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name=$2, slug=$3 WHERE id=$1
	`, projectID, name, slug)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	// Task rows go with it via ON DELETE CASCADE.
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ── Tasks ──

const taskColumns = `id, project_id, title, description, status, priority, assignee, position,
	COALESCE(metadata::text, '{}'), due_date, repository_name, external_id, created_at, updated_at`

func scanTask(scan func(dest ...any) error) (Task, error) {
	var item Task
	var metadataRaw string
	var projectID, repositoryName, externalID sql.NullString
	var dueDate sql.NullTime
	err := scan(
		&item.ID,
		&projectID,
		&item.Title,
		&item.Description,
		&item.Status,
		&item.Priority,
		&item.Assignee,
		&item.Position,
		&metadataRaw,
		&dueDate,
		&repositoryName,
		&externalID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	if projectID.Valid {
		item.ProjectID = &projectID.String
	}
	if dueDate.Valid {
		due := dueDate.Time
		item.DueDate = &due
	}
	item.RepositoryName = repositoryName.String
	item.ExternalID = externalID.String
	_ = json.Unmarshal([]byte(metadataRaw), &item.Metadata)
	item.Labels = labelsFromMetadata(item.Metadata)
	return item, nil
}

// labelsFromMetadata normalizes the labels array out of the metadata blob
// so callers always see a top-level field regardless of where a deployment
// generation stored them.
func labelsFromMetadata(metadata map[string]any) []string {
	labels := make([]string, 0)
	raw, ok := metadata["labels"].([]any)
	if !ok {
		return labels
	}
	for _, entry := range raw {
		if label, ok := entry.(string); ok {
			labels = append(labels, label)
		}
	}
	return labels
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal task metadata: %w", err)
	}
	return string(encoded), nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE ($1='' OR project_id::text=$1)
		  AND ($2::timestamptz IS NULL OR due_date >= $2)
		  AND ($3::timestamptz IS NULL OR due_date <= $3)
		ORDER BY position ASC, id ASC
	`, filter.ProjectID, filter.DueAfter, filter.DueBefore)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID)
	return scanTask(row.Scan)
}

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	metadata, err := encodeMetadata(task.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, priority, assignee, position, metadata, due_date, repository_name, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, NULLIF($11, ''), NULLIF($12, ''))
	`, task.ID, task.ProjectID, task.Title, task.Description, task.Status, task.Priority, task.Assignee,
		task.Position, metadata, task.DueDate, task.RepositoryName, task.ExternalID)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) error {
	metadata, err := encodeMetadata(task.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, status=$4, priority=$5, assignee=$6, position=$7,
			metadata=$8::jsonb, due_date=$9, repository_name=NULLIF($10, ''), updated_at=NOW()
		WHERE id=$1
	`, task.ID, task.Title, task.Description, task.Status, task.Priority, task.Assignee,
		task.Position, metadata, task.DueDate, task.RepositoryName)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// MaxPosition returns the largest position in a status column, zero when
// the column is empty.
func (s *PostgresStore) MaxPosition(ctx context.Context, projectID *string, status string) (float64, error) {
	var max float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0)
		FROM tasks
		WHERE status=$1 AND project_id IS NOT DISTINCT FROM $2::uuid
	`, status, projectID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return max, nil
}

// UpsertTaskByExternalID keys on the tracker's immutable issue id so that
// replayed webhook deliveries land on the same row.
func (s *PostgresStore) UpsertTaskByExternalID(ctx context.Context, task Task) error {
	metadata, err := encodeMetadata(task.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, assignee, position, metadata, repository_name, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, NULLIF($9, ''), $10)
		ON CONFLICT (external_id) DO UPDATE
		SET title=EXCLUDED.title, description=EXCLUDED.description, status=EXCLUDED.status,
			metadata=EXCLUDED.metadata, repository_name=EXCLUDED.repository_name, updated_at=NOW()
	`, task.ID, task.Title, task.Description, task.Status, task.Priority, task.Assignee,
		task.Position, metadata, task.RepositoryName, task.ExternalID)
	if err != nil {
		return fmt.Errorf("upsert task by external id: %w", err)
	}
	return nil
}

// ArchiveStaleTasks flips done tasks last touched before cutoff to archived
// and returns their ids.
func (s *PostgresStore) ArchiveStaleTasks(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE tasks
		SET status='archived', updated_at=NOW()
		WHERE status='done' AND updated_at < $1
		RETURNING id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("archive stale tasks: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan archived task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived task ids: %w", err)
	}
	return ids, nil
}

// UpdateTaskMetadata replaces only the metadata blob; used by the comment
// fallback path so it cannot clobber concurrent field updates.
func (s *PostgresStore) UpdateTaskMetadata(ctx context.Context, taskID string, metadata map[string]any) error {
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET metadata=$2::jsonb, updated_at=NOW() WHERE id=$1
	`, taskID, encoded)
	if err != nil {
		return fmt.Errorf("update task metadata: %w", err)
	}
	return nil
}

// ── Task comments (dedicated table generation) ──

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string) ([]TaskComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, author, content, kind, created_at
		FROM task_comments
		WHERE task_id=$1
		ORDER BY created_at ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task comments: %w", err)
	}
	defer rows.Close()

	items := make([]TaskComment, 0)
	for rows.Next() {
		var item TaskComment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.Author, &item.Content, &item.Kind, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTaskComment(ctx context.Context, comment TaskComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, author, content, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, comment.ID, comment.TaskID, comment.Author, comment.Content, comment.Kind, comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task comment: %w", err)
	}
	return nil
}

// ── Notifications ──

func (s *PostgresStore) InsertNotification(ctx context.Context, notification Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, task_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, notification.ID, notification.UserID, notification.Type, notification.Title,
		notification.Message, notification.TaskID, notification.Read, notification.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkNotificationReadIfUnread is the conditional write guarding against a
// double delivery racing between the immediate path and the batch
// dispatcher. Returns false when the row was already read (or absent).
func (s *PostgresStore) MarkNotificationReadIfUnread(ctx context.Context, notificationID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE WHERE id=$1 AND read=FALSE
	`, notificationID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

// ListPendingDeliverable returns the oldest unread notifications for a user
// restricted to the given types, creation-time ascending.
func (s *PostgresStore) ListPendingDeliverable(ctx context.Context, userID string, types []string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 25
	}
	placeholders := make([]string, len(types))
	args := []any{userID}
	for i, t := range types {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, t)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, user_id, type, title, message, task_id, read, created_at
		FROM notifications
		WHERE user_id=$1 AND read=FALSE AND type IN (%s)
		ORDER BY created_at ASC, id ASC
		LIMIT $%d
	`, strings.Join(placeholders, ", "), len(types)+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, task_id, read, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]Notification, error) {
	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		var taskID sql.NullString
		if err := rows.Scan(&item.ID, &item.UserID, &item.Type, &item.Title, &item.Message, &taskID, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if taskID.Valid {
			item.TaskID = &taskID.String
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

// ── Metrics ──

func (s *PostgresStore) InsertMoveMetric(ctx context.Context, metric MoveMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO move_metrics (item_id, to_status, triggered_by, repository)
		VALUES ($1, $2, $3, $4)
	`, metric.ItemID, metric.ToStatus, metric.TriggeredBy, metric.Repository)
	if err != nil {
		return fmt.Errorf("insert move metric: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPRMetric(ctx context.Context, metric PRMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pr_metrics (pr_id, merged_at, repository, additions, deletions)
		VALUES ($1, $2, $3, $4, $5)
	`, metric.PRID, metric.MergedAt, metric.Repository, metric.Additions, metric.Deletions)
	if err != nil {
		return fmt.Errorf("insert pr metric: %w", err)
	}
	return nil
}

// ── Agent run logs ──

func (s *PostgresStore) InsertAgentRunLog(ctx context.Context, entry AgentRunLog) error {
	payload := entry.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal run log payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_run_logs (id, agent_id, task_name, status, payload, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
	`, entry.ID, entry.AgentID, entry.TaskName, entry.Status, string(encoded), entry.StartedAt, entry.EndedAt)
	if err != nil {
		return fmt.Errorf("insert agent run log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAgentRunLogs(ctx context.Context, agentID string, limit int) ([]AgentRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, task_name, status, COALESCE(payload::text, '{}'), started_at, ended_at, created_at
		FROM agent_run_logs
		WHERE ($1='' OR agent_id=$1)
		ORDER BY started_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list agent run logs: %w", err)
	}
	defer rows.Close()

	items := make([]AgentRunLog, 0)
	for rows.Next() {
		var item AgentRunLog
		var payloadRaw string
		var endedAt sql.NullTime
		if err := rows.Scan(&item.ID, &item.AgentID, &item.TaskName, &item.Status, &payloadRaw, &item.StartedAt, &endedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent run log: %w", err)
		}
		if endedAt.Valid {
			ended := endedAt.Time
			item.EndedAt = &ended
		}
		_ = json.Unmarshal([]byte(payloadRaw), &item.Payload)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent run logs: %w", err)
	}
	return items, nil
}
