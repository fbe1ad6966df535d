package notify

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"tareas/api/internal/store"
)

type fakeStore struct {
	mu            sync.Mutex
	notifications map[string]store.Notification
	order         []string
	tokens        map[string][]string
	users         map[string]store.User
	admins        []string

	insertFn func(n store.Notification) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notifications: map[string]store.Notification{},
		tokens:        map[string][]string{},
		users:         map[string]store.User{},
	}
}

func (f *fakeStore) InsertNotification(_ context.Context, n store.Notification) error {
	if f.insertFn != nil {
		if err := f.insertFn(n); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[n.ID] = n
	f.order = append(f.order, n.ID)
	return nil
}

func (f *fakeStore) UpdateNotificationDelivery(_ context.Context, id string, status store.DeliveryStatus, deliveryErr string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notifications[id]
	n.DeliveryStatus = status
	n.DeliveryError = deliveryErr
	if status == store.DeliveryDelivered {
		n.DeliveredAt = &at
	}
	f.notifications[id] = n
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, limit int) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Notification{}
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		if n := f.notifications[f.order[i]]; n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, id, userID string, at time.Time) (store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID {
		return store.Notification{}, sql.ErrNoRows
	}
	if !n.Read {
		n.Read = true
		n.ReadAt = &at
		f.notifications[id] = n
	}
	return n, nil
}

func (f *fakeStore) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			f.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) DeleteNotificationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, n := range f.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(f.notifications, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListPushTokens(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens[userID]...), nil
}

func (f *fakeStore) ListUserIDsByRole(_ context.Context, role string) ([]string, error) {
	if role != "admin" {
		return nil, nil
	}
	return f.admins, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) GetArea(_ context.Context, areaID string) (store.Area, error) {
	return store.Area{ID: areaID, Name: "Área " + areaID}, nil
}

func (f *fakeStore) byUser(userID string) []store.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for _, id := range f.order {
		if n, ok := f.notifications[id]; ok && n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type fakePusher struct {
	mu     sync.Mutex
	sent   []PushMessage
	sendFn func(messages []PushMessage) ([]PushTicket, error)
}

func (p *fakePusher) Send(_ context.Context, messages []PushMessage) ([]PushTicket, error) {
	p.mu.Lock()
	p.sent = append(p.sent, messages...)
	p.mu.Unlock()
	if p.sendFn != nil {
		return p.sendFn(messages)
	}
	tickets := make([]PushTicket, len(messages))
	for i := range tickets {
		tickets[i] = PushTicket{Status: "ok", ID: "tk"}
	}
	return tickets, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	names []string
}

func (m *fakeMailer) IsConfigured() bool { return true }

func (m *fakeMailer) SendTemplate(to, _, name string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	m.names = append(m.names, name)
	return nil
}
