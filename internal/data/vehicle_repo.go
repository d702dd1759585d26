package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
)

// VehicleRepo is the fleet directory capability backed by the vehicles table.
type VehicleRepo struct {
	DB *sql.DB
}

// NewVehicleRepo creates a VehicleRepo.
func NewVehicleRepo(db *sql.DB) *VehicleRepo {
	return &VehicleRepo{DB: db}
}

const vehicleColumns = `id, name, vendor_id, on_duty, bound_to`

// GetVehicle resolves a vehicle by id or name.
func (r *VehicleRepo) GetVehicle(ctx context.Context, ref string) (*model.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id::text = $1 OR name = $1`
	v, err := scanVehicle(r.DB.QueryRowContext(ctx, query, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("vehicle %q not found", ref)
		}
		return nil, apperrors.MapDBError(err)
	}
	return v, nil
}

// FindBoundTo returns the vehicle currently bound to the actor, or nil.
func (r *VehicleRepo) FindBoundTo(ctx context.Context, actorID string) (*model.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE bound_to = $1 LIMIT 1`
	v, err := scanVehicle(r.DB.QueryRowContext(ctx, query, actorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapDBError(err)
	}
	return v, nil
}

// FindAvailable returns the first on-duty, unbound vehicle for the vendor,
// or nil when the vendor has none free.
func (r *VehicleRepo) FindAvailable(ctx context.Context, vendorID string) (*model.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles
		WHERE vendor_id = $1 AND on_duty AND (bound_to IS NULL OR bound_to = '')
		ORDER BY name LIMIT 1`
	v, err := scanVehicle(r.DB.QueryRowContext(ctx, query, vendorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapDBError(err)
	}
	return v, nil
}

// Bind records which actor a vehicle is assigned to.
func (r *VehicleRepo) Bind(ctx context.Context, vehicleID, actorID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE vehicles SET bound_to = $2 WHERE id::text = $1`, vehicleID, actorID)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if rows == 0 {
		return apperrors.NotFoundf("vehicle %q not found", vehicleID)
	}
	return nil
}

// Unbind clears a vehicle's actor binding. Unbinding an unknown vehicle is a no-op.
func (r *VehicleRepo) Unbind(ctx context.Context, vehicleID string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE vehicles SET bound_to = NULL WHERE id::text = $1`, vehicleID)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

func scanVehicle(row rowScanner) (*model.Vehicle, error) {
	var v model.Vehicle
	var boundTo sql.NullString
	if err := row.Scan(&v.ID, &v.Name, &v.VendorID, &v.OnDuty, &boundTo); err != nil {
		return nil, err
	}
	if boundTo.Valid && boundTo.String != "" {
		v.BoundTo = &boundTo.String
	}
	return &v, nil
}
