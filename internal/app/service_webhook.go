package app

import (
	"context"
	"fmt"
	"log"

	"taskboard/api/internal/board"
	"taskboard/api/internal/github"
	"taskboard/api/internal/store"
)

type WebhookResult struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// moveActions are the issue actions that additionally record a move metric.
var moveActions = map[string]bool{
	"labeled":   true,
	"unlabeled": true,
	"closed":    true,
	"reopened":  true,
}

// ProcessWebhook ingests a verified tracker event. Per-event processing
// failures are logged and the sender still gets a success response, so a
// transient store error cannot trigger a retry storm. Signature checks
// happen in the HTTP layer before this is reached.
func (s *Service) ProcessWebhook(ctx context.Context, event, deliveryGUID string, payload github.WebhookPayload) WebhookResult {
	if s.deliveries != nil && deliveryGUID != "" {
		seen, err := s.deliveries.Seen(ctx, deliveryGUID)
		if err != nil {
			log.Printf("webhook delivery log: %v", err)
		} else if seen {
			return WebhookResult{OK: true, Duplicate: true}
		}
	}

	switch event {
	case "issues":
		if err := s.ingestIssueEvent(ctx, payload); err != nil {
			log.Printf("process issues event %s: %v", deliveryGUID, err)
		}
	case "pull_request":
		if err := s.ingestPullRequestEvent(ctx, payload); err != nil {
			log.Printf("process pull_request event %s: %v", deliveryGUID, err)
		}
	default:
		// Unrecognized events are accepted and ignored.
	}
	return WebhookResult{OK: true}
}

func (s *Service) ingestIssueEvent(ctx context.Context, payload github.WebhookPayload) error {
	issue := payload.Issue
	if issue == nil {
		return nil
	}
	labels := issue.LabelNames()
	status := github.ResolveStatus(issue.State, labels)

	task := store.Task{
		ID:          newID(),
		Title:       issue.Title,
		Description: issue.Body,
		Status:      string(status),
		Priority:    string(board.PriorityMedium),
		Assignee:    board.Unassigned,
		Position:    board.TailPosition(0),
		Metadata: map[string]any{
			"issue_number":      float64(issue.Number),
			"url":               issue.HTMLURL,
			"reporter":          issue.User.Login,
			"github_labels":     labels,
			"github_state":      issue.State,
			"github_updated_at": issue.UpdatedAt,
		},
		RepositoryName: payload.Repository.FullName,
		ExternalID:     fmt.Sprintf("%d", issue.ID),
	}
	if err := s.store.UpsertTaskByExternalID(ctx, task); err != nil {
		return err
	}

	if moveActions[payload.Action] {
		metric := store.MoveMetric{
			ItemID:      issue.ID,
			ToStatus:    string(status),
			TriggeredBy: "github:" + payload.Action,
			Repository:  payload.Repository.FullName,
		}
		if err := s.store.InsertMoveMetric(ctx, metric); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ingestPullRequestEvent(ctx context.Context, payload github.WebhookPayload) error {
	pr := payload.PullRequest
	if pr == nil || payload.Action != "closed" || !pr.Merged {
		return nil
	}
	return s.store.InsertPRMetric(ctx, store.PRMetric{
		PRID:       pr.ID,
		MergedAt:   pr.MergedAt,
		Repository: payload.Repository.FullName,
		Additions:  pr.Additions,
		Deletions:  pr.Deletions,
	})
}
