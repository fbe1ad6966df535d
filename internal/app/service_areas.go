package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tareas/api/internal/notify"
	"tareas/api/internal/rbac"
	"tareas/api/internal/store"
	"tareas/api/internal/util"
)

type AreaInput struct {
	Name     string  `json:"nombre"`
	Type     string  `json:"tipo"`
	ChiefID  *string `json:"jefeId"`
	ParentID *string `json:"parentId"`
	Order    int     `json:"orden"`
	Budget   float64 `json:"presupuesto"`
}

func (in AreaInput) validate() error {
	var details []string
	if strings.TrimSpace(in.Name) == "" {
		details = append(details, "nombre is required")
	}
	if !store.AreaType(in.Type).Valid() {
		details = append(details, fmt.Sprintf("invalid tipo %q", in.Type))
	}
	if in.Budget < 0 {
		details = append(details, "presupuesto must not be negative")
	}
	if len(details) > 0 {
		return validationError("Invalid area", details)
	}
	return nil
}

func emptyToNil(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ListAreas returns active areas; managers also see deactivated ones.
func (s *Service) ListAreas(ctx context.Context, session Session, includeInactive bool) ([]store.Area, error) {
	if err := s.authorize(session, rbac.ActionTaskRead); err != nil {
		return nil, err
	}
	if includeInactive && !rbac.Can(session.Role, rbac.ActionAreaManage) {
		includeInactive = false
	}
	return s.store.ListAreas(ctx, includeInactive)
}

func (s *Service) CreateArea(ctx context.Context, session Session, in AreaInput) (store.Area, notify.Result, error) {
	if err := s.authorize(session, rbac.ActionAreaManage); err != nil {
		return store.Area{}, notify.Result{}, err
	}
	if err := in.validate(); err != nil {
		return store.Area{}, notify.Result{}, err
	}
	chiefID := emptyToNil(in.ChiefID)
	if chiefID != nil {
		if err := s.requireActiveUser(ctx, *chiefID); err != nil {
			return store.Area{}, notify.Result{}, err
		}
	}

	now := s.now()
	area := store.Area{
		ID:        util.NewID("area"),
		Name:      strings.TrimSpace(in.Name),
		Type:      store.AreaType(in.Type),
		ParentID:  emptyToNil(in.ParentID),
		Active:    true,
		Order:     in.Order,
		Budget:    in.Budget,
		ChiefID:   chiefID,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: session.UserID,
		UpdatedBy: session.UserID,
	}
	if err := s.store.InsertArea(ctx, area); err != nil {
		return store.Area{}, notify.Result{}, fmt.Errorf("insert area: %w", err)
	}
	s.invalidateAnalytics(ctx)

	var res notify.Result
	if s.notifier != nil {
		var err error
		res, err = s.notifier.AreaCreated(ctx, area, session.actor())
		logDelivery("area created", res, err)
		if chiefID != nil {
			chiefRes, err := s.notifier.AreaChiefAssigned(ctx, area, *chiefID, session.actor())
			logDelivery("area chief assigned", chiefRes, err)
			res.Notifications = append(res.Notifications, chiefRes.Notifications...)
			res.Failures = append(res.Failures, chiefRes.Failures...)
		}
	}
	return area, res, nil
}

// UpdateArea edits descriptive fields. The chief is changed through AssignChief.
func (s *Service) UpdateArea(ctx context.Context, session Session, areaID string, in AreaInput) (store.Area, error) {
	if err := s.authorize(session, rbac.ActionAreaManage); err != nil {
		return store.Area{}, err
	}
	if err := in.validate(); err != nil {
		return store.Area{}, err
	}
	area, err := s.store.GetArea(ctx, areaID)
	if err != nil {
		return store.Area{}, lookupError(err, "Area")
	}
	parentID := emptyToNil(in.ParentID)
	if parentID != nil && *parentID == area.ID {
		return store.Area{}, validationError("Invalid area", []string{"an area cannot be its own parent"})
	}

	area.Name = strings.TrimSpace(in.Name)
	area.Type = store.AreaType(in.Type)
	area.ParentID = parentID
	area.Order = in.Order
	area.Budget = in.Budget
	area.UpdatedAt = s.now()
	area.UpdatedBy = session.UserID
	if err := s.store.UpdateArea(ctx, area); err != nil {
		return store.Area{}, lookupError(err, "Area")
	}
	s.invalidateAnalytics(ctx)
	return area, nil
}

// AssignChief makes chiefID the head of the area and notifies them.
func (s *Service) AssignChief(ctx context.Context, session Session, areaID, chiefID string) (store.Area, notify.Result, error) {
	if err := s.authorize(session, rbac.ActionAreaManage); err != nil {
		return store.Area{}, notify.Result{}, err
	}
	chiefID = strings.TrimSpace(chiefID)
	if chiefID == "" {
		return store.Area{}, notify.Result{}, validationError("Invalid chief", []string{"jefeId is required"})
	}
	area, err := s.store.GetArea(ctx, areaID)
	if err != nil {
		return store.Area{}, notify.Result{}, lookupError(err, "Area")
	}
	if !area.Active {
		return store.Area{}, notify.Result{}, validationError("Invalid area", []string{"area is inactive"})
	}
	if err := s.requireActiveUser(ctx, chiefID); err != nil {
		return store.Area{}, notify.Result{}, err
	}

	now := s.now()
	if err := s.store.SetAreaChief(ctx, area.ID, chiefID, session.UserID, now); err != nil {
		return store.Area{}, notify.Result{}, fmt.Errorf("set area chief: %w", err)
	}
	area.ChiefID = &chiefID
	area.UpdatedAt = now
	area.UpdatedBy = session.UserID
	s.invalidateAnalytics(ctx)

	var res notify.Result
	if s.notifier != nil {
		res, err = s.notifier.AreaChiefAssigned(ctx, area, chiefID, session.actor())
		logDelivery("area chief assigned", res, err)
	}
	return area, res, nil
}

func (s *Service) DeactivateArea(ctx context.Context, session Session, areaID string) error {
	if err := s.authorize(session, rbac.ActionAreaManage); err != nil {
		return err
	}
	if err := s.store.DeactivateArea(ctx, areaID, session.UserID, s.now()); err != nil {
		return lookupError(err, "Area")
	}
	s.invalidateAnalytics(ctx)
	return nil
}

func (s *Service) ListAreaMembers(ctx context.Context, session Session, areaID string) ([]store.AreaMember, error) {
	if err := s.authorize(session, rbac.ActionTaskRead); err != nil {
		return nil, err
	}
	if _, err := s.store.GetArea(ctx, areaID); err != nil {
		return nil, lookupError(err, "Area")
	}
	return s.store.ListAreaMembers(ctx, areaID)
}

func (s *Service) AddAreaMember(ctx context.Context, session Session, areaID, userID, role string) (store.AreaMember, error) {
	if err := s.authorize(session, rbac.ActionAreaManage); err != nil {
		return store.AreaMember{}, err
	}
	if role == "" {
		role = "miembro"
	}
	if role != "miembro" && role != "jefe" {
		return store.AreaMember{}, validationError("Invalid member", []string{fmt.Sprintf("invalid rol %q", role)})
	}
	if _, err := s.store.GetArea(ctx, areaID); err != nil {
		return store.AreaMember{}, lookupError(err, "Area")
	}
	if err := s.requireActiveUser(ctx, userID); err != nil {
		return store.AreaMember{}, err
	}
	member := store.AreaMember{AreaID: areaID, UserID: userID, Role: role, CreatedAt: s.now()}
	if err := s.store.UpsertAreaMember(ctx, member); err != nil {
		return store.AreaMember{}, fmt.Errorf("add area member: %w", err)
	}
	return member, nil
}

func (s *Service) RemoveAreaMember(ctx context.Context, session Session, areaID, userID string) error {
	if err := s.authorize(session, rbac.ActionAreaManage); err != nil {
		return err
	}
	if err := s.store.RemoveAreaMember(ctx, areaID, userID); err != nil {
		return lookupError(err, "Area member")
	}
	return nil
}

func (s *Service) requireActiveUser(ctx context.Context, userID string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return validationError("Invalid user", []string{fmt.Sprintf("unknown user %q", userID)})
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !user.Active() {
		return validationError("Invalid user", []string{fmt.Sprintf("user %q is deactivated", userID)})
	}
	return nil
}
