package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
)

// DirectoryRepo is the read-only user directory lookup consumed by the
// dispatch engines. User administration is owned by another service; this
// repo only reads.
//
// Secondary roles arrive from upstream in whatever shape the identity system
// stored them; they are flattened into a CapabilitySet here so the engines
// never see the raw representation.
type DirectoryRepo struct {
	DB *sql.DB
}

// NewDirectoryRepo creates a DirectoryRepo.
func NewDirectoryRepo(db *sql.DB) *DirectoryRepo {
	return &DirectoryRepo{DB: db}
}

const userColumns = `id, name, role, active, on_duty, vendor_id, region_states, capabilities`

// GetUser loads one directory entry by id.
func (r *DirectoryRepo) GetUser(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("user %s not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}
	return user, nil
}

// ListActive returns every active directory entry.
func (r *DirectoryRepo) ListActive(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE active ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, apperrors.MapDBError(scanErr)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return users, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u           model.User
		role        string
		regionsJSON []byte
		capsJSON    []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &role, &u.Active, &u.OnDuty, &u.VendorID,
		&regionsJSON, &capsJSON); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if !u.Role.Valid() {
		u.Role = model.RoleNone
	}

	if len(regionsJSON) > 0 {
		if err := json.Unmarshal(regionsJSON, &u.RegionStates); err != nil {
			return nil, fmt.Errorf("unmarshal region states for user %s: %w", u.ID, err)
		}
	}

	// Capabilities may be stored as a list of strings or as a map of flag
	// booleans depending on which upstream wrote the row. Both normalize to
	// the same set.
	u.Capabilities = decodeCapabilities(capsJSON)
	return &u, nil
}

func decodeCapabilities(raw []byte) model.CapabilitySet {
	if len(raw) == 0 {
		return model.NewCapabilitySet()
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return model.NewCapabilitySet(list...)
	}

	var flags map[string]bool
	if err := json.Unmarshal(raw, &flags); err == nil {
		enabled := make([]string, 0, len(flags))
		for name, on := range flags {
			if on {
				enabled = append(enabled, name)
			}
		}
		return model.NewCapabilitySet(enabled...)
	}

	return model.NewCapabilitySet()
}
