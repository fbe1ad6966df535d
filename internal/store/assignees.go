package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAssignees = errors.New("assignedTo must list at least one user")

// Assignees is the ordered, de-duplicated list of users a task is assigned
// to. It is never empty once parsed.
type Assignees []string

// ParseAssignees is the single place the legacy scalar form is accepted:
// a bare string becomes a one-element list. Arrays are trimmed and
// de-duplicated in order. Anything else, or an empty result, is rejected.
func ParseAssignees(raw json.RawMessage) (Assignees, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrInvalidAssignees
	}

	var ids []string
	switch raw[0] {
	case '"':
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAssignees, err)
		}
		ids = []string{single}
	case '[':
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAssignees, err)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected JSON %s", ErrInvalidAssignees, raw)
	}
	return NewAssignees(ids...)
}

// NewAssignees normalizes ids into an Assignees list.
func NewAssignees(ids ...string) (Assignees, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make(Assignees, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, ErrInvalidAssignees
	}
	return out, nil
}

func (a Assignees) Contains(userID string) bool {
	for _, id := range a {
		if id == userID {
			return true
		}
	}
	return false
}

// Added returns the ids in next that are not in a, in next's order.
func (a Assignees) Added(next Assignees) []string {
	var added []string
	for _, id := range next {
		if !a.Contains(id) {
			added = append(added, id)
		}
	}
	return added
}

func (a *Assignees) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAssignees(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Assignees) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

// Scan reads the JSONB column. Rows are always written as arrays, so the
// column is decoded directly without the legacy migration path.
func (a *Assignees) Scan(src any) error {
	return scanJSON(src, (*[]string)(a))
}
