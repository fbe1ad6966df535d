package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"tareas/api/internal/analytics"
	"tareas/api/internal/attachments"
	"tareas/api/internal/auth"
	"tareas/api/internal/authpw"
	"tareas/api/internal/config"
	"tareas/api/internal/email"
	"tareas/api/internal/notify"
	"tareas/api/internal/rbac"
	"tareas/api/internal/report"
	"tareas/api/internal/search"
	"tareas/api/internal/session"
	"tareas/api/internal/store"
	"tareas/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         rbac.Role
	AreaID       string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) actor() notify.Actor {
	return notify.Actor{ID: s.UserID, Name: s.UserName}
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	UpdateUserRole(context.Context, string, string) error
	DeactivateUser(context.Context, string, time.Time) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertTask(context.Context, store.Task) error
	GetTask(context.Context, string) (store.Task, error)
	UpdateTask(context.Context, store.Task) error
	ListTasks(context.Context, store.TaskFilter) ([]store.Task, error)
	InsertTaskMessage(context.Context, store.TaskMessage) error
	ListTaskMessages(context.Context, string, int) ([]store.TaskMessage, error)

	ListAreas(context.Context, bool) ([]store.Area, error)
	GetArea(context.Context, string) (store.Area, error)
	InsertArea(context.Context, store.Area) error
	UpdateArea(context.Context, store.Area) error
	SetAreaChief(context.Context, string, string, string, time.Time) error
	DeactivateArea(context.Context, string, string, time.Time) error
	ListAreaMembers(context.Context, string) ([]store.AreaMember, error)
	UpsertAreaMember(context.Context, store.AreaMember) error
	RemoveAreaMember(context.Context, string, string) error

	UpsertPushToken(context.Context, store.PushToken) error
	DeletePushToken(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// sessionStore keeps refresh sessions; Redis when configured, otherwise
// the Postgres table.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeUserSessions(context.Context, string) error
}

type pinger interface {
	Ping(context.Context) error
}

type passwordAuth interface {
	CreateUser(context.Context, authpw.CreateUserRequest) (store.User, error)
	SignIn(context.Context, string, string) (store.User, error)
	ChangePassword(context.Context, string, string, string) error
	RequestPasswordReset(context.Context, string) (string, store.User, error)
	ResetPassword(context.Context, string, string) error
}

type notifier interface {
	TaskAssigned(context.Context, store.Task, []string, notify.Actor) (notify.Result, error)
	SubtaskCompleted(context.Context, store.Task, store.Subtask, notify.Actor) (notify.Result, error)
	AreaCreated(context.Context, store.Area, notify.Actor) (notify.Result, error)
	AreaChiefAssigned(context.Context, store.Area, string, notify.Actor) (notify.Result, error)
	MarkRead(context.Context, string, string) (store.Notification, error)
	MarkAllRead(context.Context, string) (int64, error)
	ListForUser(context.Context, string, int) ([]store.Notification, error)
}

type mailer interface {
	IsConfigured() bool
	SendTemplate(to, subject, name string, data any) error
}

type taskSearcher interface {
	Search(context.Context, search.Query) search.Response
	IndexTask(search.TaskRecord)
}

type attachmentStore interface {
	Put(ctx context.Context, taskID, filename string, reader io.Reader, size int64, contentType string) (string, error)
	PresignedURL(ctx context.Context, taskID, key string, ttl time.Duration) (string, error)
}

type reportBuilder interface {
	Build(context.Context, report.Request) (*report.Result, error)
}

// Deps are the collaborators wired in by cmd/api. Nil optional members
// disable the features that need them.
type Deps struct {
	Store       *store.PostgresStore
	Sessions    *session.RedisStore
	Auth        *authpw.Service
	Notifier    *notify.Dispatcher
	Mailer      mailer
	Search      *search.Service
	Attachments *attachments.Store
	Reports     *report.Service
	Cache       analytics.Cache
}

type Service struct {
	cfg         config.Config
	store       dataStore
	sessions    sessionStore
	redis       pinger
	tokens      *auth.Issuer
	passwords   passwordAuth
	notifier    notifier
	mailer      mailer
	search      taskSearcher
	attachments attachmentStore
	reports     reportBuilder
	cache       analytics.Cache
	now         func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:    cfg,
		store:  deps.Store,
		tokens: auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL),
		mailer: deps.Mailer,
		cache:  deps.Cache,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.sessions = deps.Store
	if deps.Sessions != nil {
		s.sessions = deps.Sessions
		s.redis = deps.Sessions
	}
	if deps.Auth != nil {
		s.passwords = deps.Auth
	}
	if deps.Notifier != nil {
		s.notifier = deps.Notifier
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Attachments != nil {
		s.attachments = deps.Attachments
	}
	if deps.Reports != nil {
		s.reports = deps.Reports
	}
	if s.cache == nil {
		s.cache = analytics.NewMemoryCache(cfg.AnalyticsCacheTTL, nil)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the Redis session store. configured is false when
// sessions live in Postgres.
func (s *Service) PingSessions(ctx context.Context) (configured bool, err error) {
	if s.redis == nil {
		return false, nil
	}
	return true, s.redis.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) authorize(session Session, action rbac.Action) error {
	if !rbac.Can(session.Role, action) {
		return forbidden(string(action))
	}
	return nil
}

// SignIn checks credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	if s.passwords == nil {
		return Session{}, unavailable("AUTH_UNAVAILABLE", "Authentication service not configured")
	}
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token. The user is reloaded so role changes
// and deactivation apply immediately.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !user.Active()) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	area := ""
	if user.AreaID != nil {
		area = *user.AreaID
	}
	token, claims, err := s.tokens.Issue(user.ID, user.DisplayName, user.Role, area)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         rbac.Normalize(user.Role),
		AreaID:       area,
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

// SessionFromToken verifies an access token and loads the live user record.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if !user.Active() {
		return Session{}, auth.ErrInvalidToken
	}

	area := ""
	if user.AreaID != nil {
		area = *user.AreaID
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      rbac.Normalize(user.Role),
		AreaID:    area,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			log.Printf("logout: revoke access token: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("logout: revoke refresh token: %v", err)
		}
	}
	return nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	if s.passwords == nil {
		return unavailable("AUTH_UNAVAILABLE", "Authentication service not configured")
	}
	return s.passwords.ChangePassword(ctx, session.UserID, current, next)
}

// RequestPasswordReset mails a reset link. Without SMTP the token is
// returned instead so development setups can finish the flow.
func (s *Service) RequestPasswordReset(ctx context.Context, address string) (string, error) {
	if s.passwords == nil {
		return "", unavailable("AUTH_UNAVAILABLE", "Authentication service not configured")
	}
	token, user, err := s.passwords.RequestPasswordReset(ctx, address)
	if err != nil || token == "" {
		return "", err
	}
	if !s.SMTPConfigured() {
		return token, nil
	}
	err = s.mailer.SendTemplate(user.Email, "Restablecer contraseña", email.TemplatePasswordReset, email.PasswordResetData{
		AppName:  "Tareas",
		UserName: user.DisplayName,
		ResetURL: s.cfg.AppBaseURL + "/reset-password?token=" + token,
	})
	if err != nil {
		log.Printf("auth: send password reset to %s: %v", user.ID, err)
	}
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.passwords == nil {
		return unavailable("AUTH_UNAVAILABLE", "Authentication service not configured")
	}
	return s.passwords.ResetPassword(ctx, token, newPassword)
}

// invalidateAnalytics drops every cached analytics result after a mutation.
func (s *Service) invalidateAnalytics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidatePattern(ctx, "*"); err != nil {
		log.Printf("analytics: invalidate cache: %v", err)
	}
}

func logDelivery(event string, res notify.Result, err error) {
	if err != nil {
		log.Printf("notify: %s: %v", event, err)
		return
	}
	for _, failure := range res.Failures {
		log.Printf("notify: %s for %s failed at %s: %s", event, failure.UserID, failure.Stage, failure.Error)
	}
}

func lookupError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what)
	}
	return fmt.Errorf("load %s: %w", strings.ToLower(what), err)
}
