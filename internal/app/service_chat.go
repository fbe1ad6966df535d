package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"tareas/api/internal/attachments"
	"tareas/api/internal/rbac"
	"tareas/api/internal/store"
	"tareas/api/internal/util"
)

const (
	maxMessageLength = 4000
	attachmentURLTTL = 15 * time.Minute
	defaultChatLimit = 100
)

// ListMessages returns the task chat, oldest first. Chat never notifies.
func (s *Service) ListMessages(ctx context.Context, session Session, taskID string, limit int) ([]store.TaskMessage, error) {
	if _, err := s.GetTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultChatLimit {
		limit = defaultChatLimit
	}
	return s.store.ListTaskMessages(ctx, taskID, limit)
}

func (s *Service) PostMessage(ctx context.Context, session Session, taskID, text string) (store.TaskMessage, error) {
	if err := s.authorize(session, rbac.ActionChatPost); err != nil {
		return store.TaskMessage{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return store.TaskMessage{}, validationError("Invalid message", []string{"text is required"})
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return store.TaskMessage{}, validationError("Invalid message", []string{fmt.Sprintf("text exceeds %d characters", maxMessageLength)})
	}
	if _, err := s.GetTask(ctx, session, taskID); err != nil {
		return store.TaskMessage{}, err
	}
	msg := store.TaskMessage{
		ID:         util.NewID("msg"),
		TaskID:     taskID,
		AuthorID:   session.UserID,
		AuthorName: session.UserName,
		Text:       text,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertTaskMessage(ctx, msg); err != nil {
		return store.TaskMessage{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// UploadAttachment stores the file and posts a chat message pointing at it.
func (s *Service) UploadAttachment(ctx context.Context, session Session, taskID, filename string, reader io.Reader, size int64, contentType, caption string) (store.TaskMessage, error) {
	if err := s.authorize(session, rbac.ActionChatPost); err != nil {
		return store.TaskMessage{}, err
	}
	if s.attachments == nil {
		return store.TaskMessage{}, unavailable("ATTACHMENTS_UNAVAILABLE", "Attachments are not configured")
	}
	if _, err := s.GetTask(ctx, session, taskID); err != nil {
		return store.TaskMessage{}, err
	}
	key, err := s.attachments.Put(ctx, taskID, filename, reader, size, contentType)
	if err != nil {
		return store.TaskMessage{}, err
	}

	name := attachments.SanitizeFilename(filename)
	text := strings.TrimSpace(caption)
	if text == "" {
		text = name
	}
	msg := store.TaskMessage{
		ID:             util.NewID("msg"),
		TaskID:         taskID,
		AuthorID:       session.UserID,
		AuthorName:     session.UserName,
		Text:           text,
		AttachmentKey:  &key,
		AttachmentName: &name,
		CreatedAt:      s.now(),
	}
	if err := s.store.InsertTaskMessage(ctx, msg); err != nil {
		return store.TaskMessage{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *Service) AttachmentURL(ctx context.Context, session Session, taskID, key string) (string, time.Time, error) {
	if s.attachments == nil {
		return "", time.Time{}, unavailable("ATTACHMENTS_UNAVAILABLE", "Attachments are not configured")
	}
	if _, err := s.GetTask(ctx, session, taskID); err != nil {
		return "", time.Time{}, err
	}
	url, err := s.attachments.PresignedURL(ctx, taskID, key, attachmentURLTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, s.now().Add(attachmentURLTTL), nil
}
