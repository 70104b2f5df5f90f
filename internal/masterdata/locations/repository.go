package locations

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]BinLocation, int, error)
	Get(ctx context.Context, id int64) (BinLocation, error)
	Create(ctx context.Context, location BinLocation) (BinLocation, error)
	Update(ctx context.Context, id int64, location BinLocation) error
	Deactivate(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const locationColumns = `id, code, zone, aisle, shelf, bin, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]BinLocation, int, error) {
	filters.Normalize()

	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND code ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.Zone != nil {
		argCount++
		where += ` AND zone = $` + strconv.Itoa(argCount)
		args = append(args, *filters.Zone)
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bin_locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + locationColumns + ` FROM bin_locations` + where + ` ORDER BY code ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (filters.Page-1)*filters.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var locations []BinLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		locations = append(locations, l)
	}
	return locations, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (BinLocation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM bin_locations WHERE id = $1`, id)
	l, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return BinLocation{}, shared.ErrNotFound
	}
	return l, err
}

func (r *repository) Create(ctx context.Context, location BinLocation) (BinLocation, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx,
		`INSERT INTO bin_locations (code, zone, aisle, shelf, bin, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		location.Code, location.Zone, location.Aisle, location.Shelf, location.Bin,
		location.IsActive, now, now).Scan(&location.ID)
	if err != nil {
		return BinLocation{}, err
	}
	location.CreatedAt = now
	location.UpdatedAt = now
	return location, nil
}

func (r *repository) Update(ctx context.Context, id int64, location BinLocation) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE bin_locations SET code = $1, zone = $2, aisle = $3, shelf = $4, bin = $5,
		 is_active = $6, updated_at = $7 WHERE id = $8`,
		location.Code, location.Zone, location.Aisle, location.Shelf, location.Bin,
		location.IsActive, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes: movement history keeps valid location references.
func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE bin_locations SET is_active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bin_locations WHERE id = $1 AND is_active)`, id).Scan(&exists)
	return exists, err
}

func scanLocation(row pgx.Row) (BinLocation, error) {
	var l BinLocation
	err := row.Scan(&l.ID, &l.Code, &l.Zone, &l.Aisle, &l.Shelf, &l.Bin, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
