package app

import (
	"context"
	"errors"
	"log"

	"taskboard/api/internal/board"
	"taskboard/api/internal/store"
	"taskboard/api/internal/telegram"
)

// Notification types. assignment and status_change additionally go out over
// the chat channel when addressed to the privileged user.
const (
	NotificationAssignment   = "assignment"
	NotificationStatusChange = "status_change"
	NotificationNewComment   = "new_comment"
)

var deliverableTypes = []string{NotificationAssignment, NotificationStatusChange}

func isDeliverableType(notificationType string) bool {
	for _, t := range deliverableTypes {
		if t == notificationType {
			return true
		}
	}
	return false
}

// CreateNotification inserts a notification row and, for deliverable types
// addressed to the privileged user, attempts immediate chat delivery. A
// no-op when the recipient is "unassigned".
func (s *Service) CreateNotification(ctx context.Context, notification store.Notification) error {
	if notification.UserID == board.Unassigned || notification.UserID == "" {
		return nil
	}
	notification.ID = newID()
	notification.CreatedAt = s.now()
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		return err
	}
	if notification.UserID != board.PrivilegedUser || !isDeliverableType(notification.Type) {
		return nil
	}
	if s.chat == nil || !s.chat.IsConfigured() {
		// Left unread for the batch dispatcher; chat delivery is optional.
		return nil
	}
	if err := s.chat.SendMessage(ctx, notification.Title+"\n"+notification.Message); err != nil {
		log.Printf("telegram delivery for notification %s: %v", notification.ID, err)
		return nil
	}
	if _, err := s.store.MarkNotificationReadIfUnread(ctx, notification.ID); err != nil {
		log.Printf("mark notification %s read: %v", notification.ID, err)
	}
	return nil
}

// notify is CreateNotification for fire-and-forget call sites: the
// triggering business operation must never fail on a notification.
func (s *Service) notify(ctx context.Context, notification store.Notification) {
	if err := s.CreateNotification(ctx, notification); err != nil {
		log.Printf("create %s notification for %s: %v", notification.Type, notification.UserID, err)
	}
}

type DispatchFailure struct {
	NotificationID string `json:"notification_id"`
	Error          string `json:"error"`
}

type DispatchResult struct {
	Scanned       int               `json:"scanned"`
	Sent          int               `json:"sent"`
	Failed        int               `json:"failed"`
	Failures      []DispatchFailure `json:"failures"`
	MissingConfig bool              `json:"missing_config"`
}

const (
	dispatchDefaultLimit = 25
	dispatchMaxLimit     = 100
)

// DispatchPendingWalterTelegram drains unread deliverable notifications for
// the privileged user, oldest first. Recovery path for rows whose immediate
// delivery failed. Missing chat configuration aborts the loop at the first
// attempt instead of failing once per remaining row.
func (s *Service) DispatchPendingWalterTelegram(ctx context.Context, limit int) (DispatchResult, error) {
	if limit == 0 {
		limit = s.cfg.DispatchBatchSize
	}
	if limit == 0 {
		limit = dispatchDefaultLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > dispatchMaxLimit {
		limit = dispatchMaxLimit
	}

	result := DispatchResult{Failures: []DispatchFailure{}}
	pending, err := s.store.ListPendingDeliverable(ctx, board.PrivilegedUser, deliverableTypes, limit)
	if err != nil {
		return result, err
	}
	result.Scanned = len(pending)

	for _, notification := range pending {
		if s.chat == nil || !s.chat.IsConfigured() {
			result.MissingConfig = true
			break
		}
		if err := s.chat.SendMessage(ctx, notification.Title+"\n"+notification.Message); err != nil {
			if errors.Is(err, telegram.ErrNotConfigured) {
				result.MissingConfig = true
				break
			}
			result.Failed++
			result.Failures = append(result.Failures, DispatchFailure{NotificationID: notification.ID, Error: err.Error()})
			continue
		}
		result.Sent++
		if _, err := s.store.MarkNotificationReadIfUnread(ctx, notification.ID); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, DispatchFailure{NotificationID: notification.ID, Error: err.Error()})
		}
	}
	return result, nil
}

func (s *Service) ListNotifications(ctx context.Context, userID string) ([]store.Notification, error) {
	if userID == "" {
		return nil, validationError("userId is required")
	}
	return s.store.ListNotifications(ctx, userID)
}

func (s *Service) MarkNotificationRead(ctx context.Context, notificationID string) (bool, error) {
	if notificationID == "" {
		return false, validationError("id is required")
	}
	return s.store.MarkNotificationReadIfUnread(ctx, notificationID)
}
