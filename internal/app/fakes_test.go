package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"tareas/api/internal/analytics"
	"tareas/api/internal/auth"
	"tareas/api/internal/authpw"
	"tareas/api/internal/config"
	"tareas/api/internal/notify"
	"tareas/api/internal/store"
)

var testNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

// fakeStore keeps rows in maps. Fn fields override individual methods.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]store.User
	tasks         map[string]store.Task
	areas         map[string]store.Area
	members       map[string][]store.AreaMember
	messages      []store.TaskMessage
	pushTokens    map[string]store.PushToken
	refresh       map[string]string
	revokedJTIs   map[string]bool
	revokedUsers  []string
	listTaskCalls int

	pingFn     func(context.Context) error
	setChiefFn func(context.Context, string, string) error
	listTaskFn func(context.Context, store.TaskFilter) ([]store.Task, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[string]store.User{},
		tasks:       map[string]store.Task{},
		areas:       map[string]store.Area{},
		members:     map[string][]store.AreaMember{},
		pushTokens:  map[string]store.PushToken{},
		refresh:     map[string]string{},
		revokedJTIs: map[string]bool{},
	}
}

func (f *fakeStore) addUser(id, name, role string) store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := store.User{ID: id, DisplayName: name, Email: id + "@tareas.test", Role: role, CreatedAt: testNow}
	f.users[id] = user
	return user
}

func (f *fakeStore) addArea(id string, active bool) store.Area {
	f.mu.Lock()
	defer f.mu.Unlock()
	area := store.Area{ID: id, Name: "Área " + id, Type: store.AreaDireccion, Active: active}
	f.areas[id] = area
	return area
}

func (f *fakeStore) addTask(task store.Task) store.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.Status == "" {
		task.Status = store.StatusPendiente
	}
	if task.Priority == "" {
		task.Priority = store.PriorityMedia
	}
	if task.DueAt.IsZero() {
		task.DueAt = testNow.Add(48 * time.Hour)
	}
	f.tasks[task.ID] = task
	return task
}

func (f *fakeStore) task(id string) store.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.User, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, id, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Role = role
	f.users[id] = user
	return nil
}

func (f *fakeStore) DeactivateUser(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.DeactivatedAt = &at
	f.users[id] = user
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTIs[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTIs[jti], nil
}

func (f *fakeStore) InsertTask(_ context.Context, task store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; ok {
		return store.ErrConflict
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeStore) GetTask(_ context.Context, id string) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return task, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, task store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		return sql.ErrNoRows
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	f.mu.Lock()
	f.listTaskCalls++
	f.mu.Unlock()
	if f.listTaskFn != nil {
		return f.listTaskFn(ctx, filter)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Task{}
	for _, task := range f.tasks {
		if filter.AreaID != "" && task.AreaID != filter.AreaID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Status == "" && !filter.IncludeClosed && task.Closed() {
			continue
		}
		if filter.AssigneeID != "" && !task.AssignedTo.Contains(filter.AssigneeID) {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) InsertTaskMessage(_ context.Context, msg store.TaskMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) ListTaskMessages(_ context.Context, taskID string, _ int) ([]store.TaskMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.TaskMessage{}
	for _, msg := range f.messages {
		if msg.TaskID == taskID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAreas(_ context.Context, includeInactive bool) ([]store.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Area{}
	for _, area := range f.areas {
		if area.Active || includeInactive {
			out = append(out, area)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetArea(_ context.Context, id string) (store.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	area, ok := f.areas[id]
	if !ok {
		return store.Area{}, sql.ErrNoRows
	}
	return area, nil
}

func (f *fakeStore) InsertArea(_ context.Context, area store.Area) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.areas[area.ID] = area
	if area.ChiefID != nil {
		f.members[area.ID] = append(f.members[area.ID], store.AreaMember{AreaID: area.ID, UserID: *area.ChiefID, Role: "jefe", CreatedAt: area.CreatedAt})
	}
	return nil
}

func (f *fakeStore) UpdateArea(_ context.Context, area store.Area) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.areas[area.ID]; !ok {
		return sql.ErrNoRows
	}
	f.areas[area.ID] = area
	return nil
}

func (f *fakeStore) SetAreaChief(ctx context.Context, areaID, chiefID, updatedBy string, at time.Time) error {
	if f.setChiefFn != nil {
		if err := f.setChiefFn(ctx, areaID, chiefID); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	area, ok := f.areas[areaID]
	if !ok {
		return sql.ErrNoRows
	}
	area.ChiefID = &chiefID
	area.UpdatedBy = updatedBy
	area.UpdatedAt = at
	f.areas[areaID] = area

	members := f.members[areaID]
	found := false
	for i := range members {
		switch {
		case members[i].UserID == chiefID:
			members[i].Role = "jefe"
			found = true
		case members[i].Role == "jefe":
			members[i].Role = "miembro"
		}
	}
	if !found {
		members = append(members, store.AreaMember{AreaID: areaID, UserID: chiefID, Role: "jefe", CreatedAt: at})
	}
	f.members[areaID] = members
	return nil
}

func (f *fakeStore) DeactivateArea(_ context.Context, areaID, updatedBy string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	area, ok := f.areas[areaID]
	if !ok {
		return sql.ErrNoRows
	}
	area.Active = false
	area.UpdatedBy = updatedBy
	area.UpdatedAt = at
	f.areas[areaID] = area
	return nil
}

func (f *fakeStore) ListAreaMembers(_ context.Context, areaID string) ([]store.AreaMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.AreaMember{}, f.members[areaID]...), nil
}

func (f *fakeStore) UpsertAreaMember(_ context.Context, member store.AreaMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[member.AreaID] = append(f.members[member.AreaID], member)
	return nil
}

func (f *fakeStore) RemoveAreaMember(_ context.Context, areaID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.members[areaID]
	for i, m := range members {
		if m.UserID == userID {
			f.members[areaID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpsertPushToken(_ context.Context, token store.PushToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushTokens[token.Token] = token
	return nil
}

func (f *fakeStore) DeletePushToken(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.pushTokens[token]
	if !ok || existing.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.pushTokens, token)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[hash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, hash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[hash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return store.User{ID: userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, hash)
	return nil
}

func (f *fakeStore) RevokeUserSessions(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, owner := range f.refresh {
		if owner == userID {
			delete(f.refresh, hash)
		}
	}
	f.revokedUsers = append(f.revokedUsers, userID)
	return nil
}

type assignedCall struct {
	taskID     string
	recipients []string
	actor      notify.Actor
}

// fakeNotifier records events instead of delivering them.
type fakeNotifier struct {
	mu               sync.Mutex
	assigned         []assignedCall
	subtaskCompleted []string
	areaCreated      []string
	chiefAssigned    []string
	taskAssignedErr  error
	notifications    []store.Notification
}

func (f *fakeNotifier) TaskAssigned(_ context.Context, task store.Task, recipients []string, actor notify.Actor) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append(f.assigned, assignedCall{taskID: task.ID, recipients: recipients, actor: actor})
	if f.taskAssignedErr != nil {
		return notify.Result{}, f.taskAssignedErr
	}
	targets := recipients
	if targets == nil {
		targets = task.AssignedTo
	}
	res := notify.Result{}
	for _, userID := range targets {
		res.Notifications = append(res.Notifications, store.Notification{ID: "n-" + userID, UserID: userID, Type: store.NotifyTaskAssigned})
	}
	return res, nil
}

func (f *fakeNotifier) SubtaskCompleted(_ context.Context, _ store.Task, subtask store.Subtask, _ notify.Actor) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subtaskCompleted = append(f.subtaskCompleted, subtask.ID)
	return notify.Result{}, nil
}

func (f *fakeNotifier) AreaCreated(_ context.Context, area store.Area, _ notify.Actor) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.areaCreated = append(f.areaCreated, area.ID)
	return notify.Result{}, nil
}

func (f *fakeNotifier) AreaChiefAssigned(_ context.Context, area store.Area, chiefID string, _ notify.Actor) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chiefAssigned = append(f.chiefAssigned, area.ID+":"+chiefID)
	return notify.Result{}, nil
}

func (f *fakeNotifier) MarkRead(_ context.Context, id, userID string) (store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID == id && n.UserID == userID {
			f.notifications[i].Read = true
			return f.notifications[i], nil
		}
	}
	return store.Notification{}, sql.ErrNoRows
}

func (f *fakeNotifier) MarkAllRead(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.notifications {
		if f.notifications[i].UserID == userID && !f.notifications[i].Read {
			f.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifier) ListForUser(_ context.Context, userID string, _ int) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Notification{}
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakePasswords struct {
	signInFn func(context.Context, string, string) (store.User, error)
	created  []authpw.CreateUserRequest
}

func (f *fakePasswords) CreateUser(_ context.Context, req authpw.CreateUserRequest) (store.User, error) {
	f.created = append(f.created, req)
	return store.User{ID: "usr_new", DisplayName: req.DisplayName, Email: req.Email, Role: req.Role, AreaID: req.AreaID}, nil
}

func (f *fakePasswords) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, email, password)
	}
	return store.User{}, authpw.ErrInvalidCredentials
}

func (f *fakePasswords) ChangePassword(context.Context, string, string, string) error {
	return nil
}

func (f *fakePasswords) RequestPasswordReset(context.Context, string) (string, store.User, error) {
	return "reset-token", store.User{ID: "u1", DisplayName: "Ana", Email: "u1@tareas.test"}, nil
}

func (f *fakePasswords) ResetPassword(context.Context, string, string) error {
	return nil
}

func newTestService(fs *fakeStore, fn *fakeNotifier) *Service {
	svc := &Service{
		cfg: config.Config{
			JWTSecret:         "test-secret",
			AccessTTL:         time.Hour,
			RefreshTTL:        24 * time.Hour,
			OverloadThreshold: 10,
			AppBaseURL:        "http://tareas.test",
		},
		store:     fs,
		sessions:  fs,
		tokens:    auth.NewIssuer("test-secret", time.Hour),
		passwords: &fakePasswords{},
		cache:     analytics.NewMemoryCache(time.Minute, func() time.Time { return testNow }),
		now:       func() time.Time { return testNow },
	}
	if fn != nil {
		svc.notifier = fn
	}
	return svc
}

// bearerFor issues an access token for a user already in the fake store.
func bearerFor(t interface{ Fatalf(string, ...any) }, svc *Service, user store.User) string {
	token, _, err := svc.tokens.Issue(user.ID, user.DisplayName, user.Role, "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}
