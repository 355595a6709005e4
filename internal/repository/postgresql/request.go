package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/tareeqk/towing/internal/db"
	"github.com/tareeqk/towing/internal/repository"
	"github.com/tareeqk/towing/internal/storage"
)

type RequestRepo struct {
	db db.DB
}

func NewRequestRepo(db db.DB) storage.RequestRepository {
	return &RequestRepo{db: db}
}

const requestColumns = "id, customer_id, driver_id, customer_name, location, latitude, longitude, note, status, created_at, updated_at"

func (r *RequestRepo) CreateTx(ctx context.Context, tx db.Tx, req *repository.TowingRequest) error {
	err := tx.Get(ctx, req, `
        INSERT INTO towing_requests (
            customer_id, driver_id, customer_name, location, latitude, longitude, note, status, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING `+requestColumns,
		req.CustomerID, req.DriverID, req.CustomerName, req.Location, req.Latitude, req.Longitude, req.Note, req.Status, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert towing request: %w", err)
	}
	return nil
}

func (r *RequestRepo) GetByID(ctx context.Context, id int64) (*repository.TowingRequest, error) {
	var req repository.TowingRequest
	err := r.db.Get(ctx, &req, "SELECT "+requestColumns+" FROM towing_requests WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepo) GetByIDTx(ctx context.Context, tx db.Tx, id int64) (*repository.TowingRequest, error) {
	var req repository.TowingRequest
	err := tx.Get(ctx, &req, "SELECT "+requestColumns+" FROM towing_requests WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &req, nil
}

// List returns requests newest first, optionally scoped to one customer.
func (r *RequestRepo) List(ctx context.Context, customerID *int64) ([]*repository.TowingRequest, error) {
	query := "SELECT " + requestColumns + " FROM towing_requests"
	args := []interface{}{}

	if customerID != nil {
		query += " WHERE customer_id = $1"
		args = append(args, *customerID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	var requests []*repository.TowingRequest
	err := r.db.Select(ctx, &requests, query, args...)
	return requests, err
}

func (r *RequestRepo) ListActive(ctx context.Context) ([]*repository.TowingRequest, error) {
	var requests []*repository.TowingRequest
	err := r.db.Select(ctx, &requests, `
        SELECT `+requestColumns+` FROM towing_requests
        WHERE status IN ('pending', 'assigned')
        ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active towing requests: %w", err)
	}
	return requests, nil
}

// AcceptTx performs the compare-and-swap claim: the update applies only
// while the row is still pending, so of two racing drivers exactly one
// sees a row affected.
func (r *RequestRepo) AcceptTx(ctx context.Context, tx db.Tx, id, driverID int64, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
        UPDATE towing_requests
        SET status = 'assigned', driver_id = $1, updated_at = $2
        WHERE id = $3 AND status = 'pending'`,
		driverID, now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTx flips assigned to completed, conditioned on the assignee.
func (r *RequestRepo) CompleteTx(ctx context.Context, tx db.Tx, id, driverID int64, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
        UPDATE towing_requests
        SET status = 'completed', updated_at = $1
        WHERE id = $2 AND status = 'assigned' AND driver_id = $3`,
		now, id, driverID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
