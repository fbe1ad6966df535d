package app

import (
	"context"
	"strings"

	"tareas/api/internal/store"
)

var pushPlatforms = map[string]bool{"ios": true, "android": true, "web": true}

func (s *Service) requireNotifier() error {
	if s.notifier == nil {
		return unavailable("NOTIFICATIONS_UNAVAILABLE", "Notifications are not configured")
	}
	return nil
}

func (s *Service) ListNotifications(ctx context.Context, session Session, limit int) ([]store.Notification, error) {
	if err := s.requireNotifier(); err != nil {
		return nil, err
	}
	return s.notifier.ListForUser(ctx, session.UserID, limit)
}

// MarkNotificationRead only touches notifications owned by the caller.
func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) (store.Notification, error) {
	if err := s.requireNotifier(); err != nil {
		return store.Notification{}, err
	}
	n, err := s.notifier.MarkRead(ctx, notificationID, session.UserID)
	if err != nil {
		return store.Notification{}, lookupError(err, "Notification")
	}
	return n, nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) (int64, error) {
	if err := s.requireNotifier(); err != nil {
		return 0, err
	}
	return s.notifier.MarkAllRead(ctx, session.UserID)
}

func (s *Service) RegisterPushToken(ctx context.Context, session Session, token, platform string) (store.PushToken, error) {
	token = strings.TrimSpace(token)
	platform = strings.ToLower(strings.TrimSpace(platform))
	var details []string
	if token == "" {
		details = append(details, "token is required")
	}
	if !pushPlatforms[platform] {
		details = append(details, "platform must be ios, android or web")
	}
	if len(details) > 0 {
		return store.PushToken{}, validationError("Invalid push token", details)
	}
	pt := store.PushToken{UserID: session.UserID, Token: token, Platform: platform, CreatedAt: s.now()}
	if err := s.store.UpsertPushToken(ctx, pt); err != nil {
		return store.PushToken{}, err
	}
	return pt, nil
}

func (s *Service) UnregisterPushToken(ctx context.Context, session Session, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return validationError("Invalid push token", []string{"token is required"})
	}
	if err := s.store.DeletePushToken(ctx, session.UserID, token); err != nil {
		return lookupError(err, "Push token")
	}
	return nil
}
