package store

import (
	"context"
	"fmt"
	"time"
)

const notificationColumns = `id, type, title, body, user_id, task_id, area_id, metadata, read, read_at,
	delivery_status, delivery_error, delivered_at, created_at`

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (id, type, title, body, user_id, task_id, area_id, metadata, read, delivery_status, created_at)
		VALUES (:id, :type, :title, :body, :user_id, :task_id, :area_id, :metadata, :read, :delivery_status, :created_at)
	`, n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// UpdateNotificationDelivery records the push outcome; it is the only
// mutation besides the read flag.
func (s *PostgresStore) UpdateNotificationDelivery(ctx context.Context, id string, status DeliveryStatus, deliveryErr string, at time.Time) error {
	var deliveredAt *time.Time
	if status == DeliveryDelivered {
		deliveredAt = &at
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET delivery_status=$2, delivery_error=$3, delivered_at=$4 WHERE id=$1
	`, id, status, deliveryErr, deliveredAt)
	if err != nil {
		return fmt.Errorf("update notification delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	items := []Notification{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkNotificationRead flips read for the owner's notification. A repeated
// call leaves the first read_at in place.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) (Notification, error) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE, read_at=$3 WHERE id=$1 AND user_id=$2 AND read=FALSE
	`, id, userID, at); err != nil {
		return Notification{}, fmt.Errorf("mark notification read: %w", err)
	}

	var n Notification
	if err := s.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1 AND user_id=$2`, id, userID); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE, read_at=$2 WHERE user_id=$1 AND read=FALSE
	`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	return res.RowsAffected()
}
