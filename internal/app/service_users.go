package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tareas/api/internal/authpw"
	"tareas/api/internal/rbac"
	"tareas/api/internal/store"
)

type CreateUserInput struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName string  `json:"displayName"`
	Role        string  `json:"role"`
	AreaID      *string `json:"areaId"`
}

func validRole(role string) bool {
	return rbac.Normalize(role) == rbac.Role(role)
}

func (s *Service) ListUsers(ctx context.Context, session Session) ([]store.User, error) {
	if err := s.authorize(session, rbac.ActionUserManage); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, session Session, in CreateUserInput) (store.User, error) {
	if err := s.authorize(session, rbac.ActionUserManage); err != nil {
		return store.User{}, err
	}
	if s.passwords == nil {
		return store.User{}, unavailable("AUTH_UNAVAILABLE", "Authentication service not configured")
	}
	if in.Role == "" {
		in.Role = string(rbac.RoleUsuario)
	}
	if !validRole(in.Role) {
		return store.User{}, validationError("Invalid user", []string{fmt.Sprintf("invalid role %q", in.Role)})
	}
	areaID := emptyToNil(in.AreaID)
	if areaID != nil {
		if _, err := s.store.GetArea(ctx, *areaID); err != nil {
			return store.User{}, lookupError(err, "Area")
		}
	}
	return s.passwords.CreateUser(ctx, authpw.CreateUserRequest{
		Email:       in.Email,
		Password:    in.Password,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Role:        in.Role,
		AreaID:      areaID,
	})
}

// ChangeUserRole updates a role and ends the user's sessions so the new
// role takes effect on the next sign-in.
func (s *Service) ChangeUserRole(ctx context.Context, session Session, userID, role string) (store.User, error) {
	if err := s.authorize(session, rbac.ActionUserManage); err != nil {
		return store.User{}, err
	}
	if userID == session.UserID {
		return store.User{}, validationError("Invalid role change", []string{"you cannot change your own role"})
	}
	if !validRole(role) {
		return store.User{}, validationError("Invalid user", []string{fmt.Sprintf("invalid role %q", role)})
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, lookupError(err, "User")
	}
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return store.User{}, lookupError(err, "User")
	}
	user.Role = role
	s.revokeUserSessions(ctx, userID)
	return user, nil
}

func (s *Service) DeactivateUser(ctx context.Context, session Session, userID string) error {
	if err := s.authorize(session, rbac.ActionUserManage); err != nil {
		return err
	}
	if userID == session.UserID {
		return validationError("Invalid deactivation", []string{"you cannot deactivate yourself"})
	}
	if err := s.store.DeactivateUser(ctx, userID, s.now()); err != nil {
		return lookupError(err, "User")
	}
	s.revokeUserSessions(ctx, userID)
	return nil
}

func (s *Service) revokeUserSessions(ctx context.Context, userID string) {
	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		log.Printf("auth: revoke sessions for %s: %v", userID, err)
	}
}
