package app

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"taskboard/api/internal/board"
	"taskboard/api/internal/config"
	"taskboard/api/internal/store"
)

// fakeStore is an in-memory dataStore. Error fields inject failures for
// the storage-generation fallback tests.
type fakeStore struct {
	projects      map[string]store.Project
	tasks         map[string]store.Task
	comments      []store.TaskComment
	notifications []store.Notification
	moveMetrics   []store.MoveMetric
	prMetrics     []store.PRMetric
	runLogs       []store.AgentRunLog

	listTaskCommentsErr  error
	insertTaskCommentErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: make(map[string]store.Project),
		tasks:    make(map[string]store.Task),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	items := make([]store.Project, 0, len(f.projects))
	for _, p := range f.projects {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (f *fakeStore) GetProject(ctx context.Context, id string) (store.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) InsertProject(ctx context.Context, p store.Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) UpdateProject(ctx context.Context, id, name, slug string) error {
	p, ok := f.projects[id]
	if !ok {
		return nil
	}
	p.Name = name
	p.Slug = slug
	f.projects[id] = p
	return nil
}

func (f *fakeStore) DeleteProject(ctx context.Context, id string) error {
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	items := make([]store.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if filter.ProjectID != "" && (t.ProjectID == nil || *t.ProjectID != filter.ProjectID) {
			continue
		}
		if filter.DueAfter != nil && (t.DueDate == nil || t.DueDate.Before(*filter.DueAfter)) {
			continue
		}
		if filter.DueBefore != nil && (t.DueDate == nil || t.DueDate.After(*filter.DueBefore)) {
			continue
		}
		items = append(items, t)
	}
	board.SortByPosition(items)
	return items, nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (store.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t store.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.CreatedAt
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, t store.Task) error {
	existing, ok := f.tasks[t.ID]
	if !ok {
		return nil
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) MaxPosition(ctx context.Context, projectID *string, status string) (float64, error) {
	max := 0.0
	for _, t := range f.tasks {
		if t.Status != status {
			continue
		}
		if projectID == nil && t.ProjectID != nil {
			continue
		}
		if projectID != nil && (t.ProjectID == nil || *t.ProjectID != *projectID) {
			continue
		}
		if t.Position > max {
			max = t.Position
		}
	}
	return max, nil
}

func (f *fakeStore) UpsertTaskByExternalID(ctx context.Context, t store.Task) error {
	for id, existing := range f.tasks {
		if existing.ExternalID != "" && existing.ExternalID == t.ExternalID {
			existing.Title = t.Title
			existing.Description = t.Description
			existing.Status = t.Status
			existing.Metadata = t.Metadata
			existing.RepositoryName = t.RepositoryName
			existing.UpdatedAt = time.Now().UTC()
			f.tasks[id] = existing
			return nil
		}
	}
	return f.InsertTask(ctx, t)
}

func (f *fakeStore) ArchiveStaleTasks(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids := make([]string, 0)
	for id, t := range f.tasks {
		if t.Status == string(board.StatusDone) && t.UpdatedAt.Before(cutoff) {
			t.Status = string(board.StatusArchived)
			f.tasks[id] = t
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) UpdateTaskMetadata(ctx context.Context, id string, metadata map[string]any) error {
	t, ok := f.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Metadata = metadata
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) ListTaskComments(ctx context.Context, taskID string) ([]store.TaskComment, error) {
	if f.listTaskCommentsErr != nil {
		return nil, f.listTaskCommentsErr
	}
	items := make([]store.TaskComment, 0)
	for _, c := range f.comments {
		if c.TaskID == taskID {
			items = append(items, c)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) InsertTaskComment(ctx context.Context, c store.TaskComment) error {
	if f.insertTaskCommentErr != nil {
		return f.insertTaskCommentErr
	}
	f.comments = append(f.comments, c)
	return nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n store.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) MarkNotificationReadIfUnread(ctx context.Context, id string) (bool, error) {
	for i, n := range f.notifications {
		if n.ID == id && !n.Read {
			f.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListPendingDeliverable(ctx context.Context, userID string, types []string, limit int) ([]store.Notification, error) {
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	items := make([]store.Notification, 0)
	for _, n := range f.notifications {
		if n.UserID == userID && !n.Read && wanted[n.Type] {
			items = append(items, n)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string) ([]store.Notification, error) {
	items := make([]store.Notification, 0)
	for _, n := range f.notifications {
		if n.UserID == userID {
			items = append(items, n)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) InsertMoveMetric(ctx context.Context, m store.MoveMetric) error {
	f.moveMetrics = append(f.moveMetrics, m)
	return nil
}

func (f *fakeStore) InsertPRMetric(ctx context.Context, m store.PRMetric) error {
	f.prMetrics = append(f.prMetrics, m)
	return nil
}

func (f *fakeStore) InsertAgentRunLog(ctx context.Context, entry store.AgentRunLog) error {
	f.runLogs = append(f.runLogs, entry)
	return nil
}

func (f *fakeStore) ListAgentRunLogs(ctx context.Context, agentID string, limit int) ([]store.AgentRunLog, error) {
	items := make([]store.AgentRunLog, 0)
	for _, entry := range f.runLogs {
		if entry.AgentID == agentID {
			items = append(items, entry)
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// notificationsOf filters recorded notifications by recipient and type.
func (f *fakeStore) notificationsOf(userID, notificationType string) []store.Notification {
	matched := make([]store.Notification, 0)
	for _, n := range f.notifications {
		if n.UserID == userID && n.Type == notificationType {
			matched = append(matched, n)
		}
	}
	return matched
}

type fakeChat struct {
	configured bool
	sendErr    error
	sent       []string
}

func (f *fakeChat) IsConfigured() bool { return f.configured }

func (f *fakeChat) SendMessage(ctx context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

type trackerCall struct {
	Repo        string
	IssueNumber int
	Labels      []string
	Target      board.Status
}

type fakeTracker struct {
	configured bool
	calls      []trackerCall
	err        error
}

func (f *fakeTracker) IsConfigured() bool { return f.configured }

func (f *fakeTracker) UpdateIssueStatus(ctx context.Context, repo string, issueNumber int, currentLabels []string, target board.Status) error {
	f.calls = append(f.calls, trackerCall{Repo: repo, IssueNumber: issueNumber, Labels: currentLabels, Target: target})
	return f.err
}

type fakeDeliveryLog struct {
	seen map[string]bool
	err  error
}

func (f *fakeDeliveryLog) Seen(ctx context.Context, guid string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	was := f.seen[guid]
	f.seen[guid] = true
	return was, nil
}

func newTestService(fs *fakeStore, fc *fakeChat, ft *fakeTracker) *Service {
	svc := New(config.Config{}, fs, fc, ft)
	return svc
}
