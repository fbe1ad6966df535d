package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const areaColumns = `id, nombre, tipo, jefe_id, parent_id, activa, orden, presupuesto::float8 AS presupuesto,
	created_by, updated_by, created_at, updated_at`

func (s *PostgresStore) ListAreas(ctx context.Context, includeInactive bool) ([]Area, error) {
	query := `SELECT ` + areaColumns + ` FROM areas`
	if !includeInactive {
		query += ` WHERE activa`
	}
	query += ` ORDER BY orden, nombre, id`

	areas := []Area{}
	if err := s.db.SelectContext(ctx, &areas, query); err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	return areas, nil
}

func (s *PostgresStore) GetArea(ctx context.Context, areaID string) (Area, error) {
	var area Area
	if err := s.db.GetContext(ctx, &area, `SELECT `+areaColumns+` FROM areas WHERE id=$1`, areaID); err != nil {
		return Area{}, err
	}
	return area, nil
}

// InsertArea writes the area and, when ChiefID is set, the chief's
// membership row in the same transaction.
func (s *PostgresStore) InsertArea(ctx context.Context, area Area) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert area tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO areas (id, nombre, tipo, jefe_id, parent_id, activa, orden, presupuesto, created_by, updated_by, created_at, updated_at)
		VALUES (:id, :nombre, :tipo, :jefe_id, :parent_id, :activa, :orden, :presupuesto, :created_by, :updated_by, :created_at, :updated_at)
	`, area); err != nil {
		return fmt.Errorf("insert area: %w", mapConstraintError(err))
	}
	if area.ChiefID != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO area_members (area_id, user_id, rol, created_at)
			VALUES ($1, $2, 'jefe', $3)
		`, area.ID, *area.ChiefID, area.CreatedAt); err != nil {
			return fmt.Errorf("insert chief membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert area: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateArea(ctx context.Context, area Area) error {
	return s.execOne(ctx, "update area", `
		UPDATE areas SET nombre=$2, tipo=$3, parent_id=$4, orden=$5, presupuesto=$6, updated_by=$7, updated_at=$8
		WHERE id=$1
	`, area.ID, area.Name, area.Type, area.ParentID, area.Order, area.Budget, area.UpdatedBy, area.UpdatedAt)
}

// SetAreaChief records chiefID as the area's jefe, demotes the previous
// chief's membership to miembro and upserts the new chief's row in one
// transaction.
func (s *PostgresStore) SetAreaChief(ctx context.Context, areaID, chiefID, updatedBy string, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set chief tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE areas SET jefe_id=$2, updated_by=$3, updated_at=$4 WHERE id=$1
	`, areaID, chiefID, updatedBy, at)
	if err != nil {
		return fmt.Errorf("update area chief: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update area chief %s: %w", areaID, sql.ErrNoRows)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE area_members SET rol='miembro' WHERE area_id=$1 AND rol='jefe' AND user_id<>$2
	`, areaID, chiefID); err != nil {
		return fmt.Errorf("demote previous chief: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO area_members (area_id, user_id, rol, created_at)
		VALUES ($1, $2, 'jefe', $3)
		ON CONFLICT (area_id, user_id) DO UPDATE SET rol='jefe'
	`, areaID, chiefID, at); err != nil {
		return fmt.Errorf("upsert chief membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set chief: %w", err)
	}
	return nil
}

// DeactivateArea soft-deletes an area; tasks that reference it are untouched.
func (s *PostgresStore) DeactivateArea(ctx context.Context, areaID, updatedBy string, at time.Time) error {
	return s.execOne(ctx, "deactivate area", `
		UPDATE areas SET activa=FALSE, updated_by=$2, updated_at=$3 WHERE id=$1
	`, areaID, updatedBy, at)
}

func (s *PostgresStore) ListAreaMembers(ctx context.Context, areaID string) ([]AreaMember, error) {
	members := []AreaMember{}
	err := s.db.SelectContext(ctx, &members, `
		SELECT am.area_id, am.user_id, am.rol, am.created_at, u.display_name, u.email
		FROM area_members am
		JOIN users u ON u.id = am.user_id
		WHERE am.area_id=$1
		ORDER BY am.rol, u.display_name
	`, areaID)
	if err != nil {
		return nil, fmt.Errorf("list area members: %w", err)
	}
	return members, nil
}

func (s *PostgresStore) UpsertAreaMember(ctx context.Context, member AreaMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO area_members (area_id, user_id, rol, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (area_id, user_id) DO UPDATE SET rol=EXCLUDED.rol
	`, member.AreaID, member.UserID, member.Role, member.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert area member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveAreaMember(ctx context.Context, areaID, userID string) error {
	return s.execOne(ctx, "remove area member", `DELETE FROM area_members WHERE area_id=$1 AND user_id=$2`, areaID, userID)
}
