//go:generate mockgen -source ./storage.go -destination=./mocks/storage.go -package=mock_storage
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tareeqk/towing/internal/db"
	"github.com/tareeqk/towing/internal/repository"
	"github.com/tareeqk/towing/internal/towing"
)

type RequestRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, req *repository.TowingRequest) error
	GetByID(ctx context.Context, id int64) (*repository.TowingRequest, error)
	GetByIDTx(ctx context.Context, tx db.Tx, id int64) (*repository.TowingRequest, error)
	List(ctx context.Context, customerID *int64) ([]*repository.TowingRequest, error)
	ListActive(ctx context.Context) ([]*repository.TowingRequest, error)
	AcceptTx(ctx context.Context, tx db.Tx, id, driverID int64, now time.Time) (bool, error)
	CompleteTx(ctx context.Context, tx db.Tx, id, driverID int64, now time.Time) (bool, error)
}

type UserRepository interface {
	Create(ctx context.Context, name, email, password, role string) (*repository.User, error)
	GetByID(ctx context.Context, id int64) (*repository.User, error)
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	Authenticate(ctx context.Context, email, password string) (*repository.User, error)
}

// TowingStorage is the durable record of all requests. Lifecycle guards
// run inside its transactions, and every successful mutation leaves an
// outbox task behind in the same transaction.
type TowingStorage struct {
	db          db.DB
	requestRepo RequestRepository
	userRepo    UserRepository
	outboxRepo  OutboxTaskRepository
	topic       string
}

func NewTowingStorage(database db.DB, requestRepo RequestRepository, userRepo UserRepository, outboxRepo OutboxTaskRepository, topic string) *TowingStorage {
	return &TowingStorage{
		db:          database,
		requestRepo: requestRepo,
		userRepo:    userRepo,
		outboxRepo:  outboxRepo,
		topic:       topic,
	}
}

const (
	maxCustomerNameLen = 255
	maxLocationLen     = 500
)

func validateCreateFields(fields CreateFields) error {
	var ve towing.ValidationError

	if strings.TrimSpace(fields.CustomerName) == "" {
		ve.Add("customer_name", "customer_name is required")
	} else if len(fields.CustomerName) > maxCustomerNameLen {
		ve.Add("customer_name", fmt.Sprintf("customer_name must not exceed %d characters", maxCustomerNameLen))
	}

	if strings.TrimSpace(fields.Location) == "" {
		ve.Add("location", "location is required")
	} else if len(fields.Location) > maxLocationLen {
		ve.Add("location", fmt.Sprintf("location must not exceed %d characters", maxLocationLen))
	}

	if fields.Latitude != nil && (*fields.Latitude < -90 || *fields.Latitude > 90) {
		ve.Add("latitude", "latitude must be between -90 and 90")
	}
	if fields.Longitude != nil && (*fields.Longitude < -180 || *fields.Longitude > 180) {
		ve.Add("longitude", "longitude must be between -180 and 180")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// CreateRequest stores a new pending request. An authenticated customer
// becomes the owning account; anonymous submissions keep a NULL owner.
func (s *TowingStorage) CreateRequest(ctx context.Context, fields CreateFields, actor towing.Actor) (*Request, error) {
	if err := validateCreateFields(fields); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := &repository.TowingRequest{
		CustomerName: fields.CustomerName,
		Location:     fields.Location,
		Latitude:     fields.Latitude,
		Longitude:    fields.Longitude,
		Note:         fields.Note,
		Status:       string(towing.StatusPending),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if actor.IsCustomer() {
		id := actor.ID
		row.CustomerID = &id
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := s.requestRepo.CreateTx(ctx, tx, row); err != nil {
		return nil, fmt.Errorf("failed to create towing request: %w", err)
	}

	record, err := s.hydrate(ctx, row)
	if err != nil {
		return nil, err
	}

	if err := s.enqueueEventTx(ctx, tx, EventRequestCreated, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit towing request: %w", err)
	}
	return record, nil
}

// GetRequest returns one record with its customer/driver summaries.
func (s *TowingStorage) GetRequest(ctx context.Context, id int64) (*Request, error) {
	row, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, towing.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get towing request: %w", err)
	}
	return s.hydrate(ctx, row)
}

// ListRequests scopes the listing by the viewer's role: customers see
// only their own submissions, drivers see everything, newest first.
func (s *TowingStorage) ListRequests(ctx context.Context, viewer towing.Actor) ([]*Request, error) {
	var customerID *int64
	if viewer.IsCustomer() {
		id := viewer.ID
		customerID = &id
	}

	rows, err := s.requestRepo.List(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list towing requests: %w", err)
	}

	users := map[int64]*UserSummary{}
	records := make([]*Request, 0, len(rows))
	for _, row := range rows {
		record := mapRequest(row)
		record.Customer = s.lookupSummary(ctx, users, row.CustomerID)
		record.Driver = s.lookupSummary(ctx, users, row.DriverID)
		records = append(records, record)
	}
	return records, nil
}

// ListActiveRequests backs the in-memory cache warmup. Records are
// hydrated with their user summaries so a cache hit serves the same
// shape as the database path.
func (s *TowingStorage) ListActiveRequests(ctx context.Context) ([]*Request, error) {
	rows, err := s.requestRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	users := map[int64]*UserSummary{}
	records := make([]*Request, 0, len(rows))
	for _, row := range rows {
		record := mapRequest(row)
		record.Customer = s.lookupSummary(ctx, users, row.CustomerID)
		record.Driver = s.lookupSummary(ctx, users, row.DriverID)
		records = append(records, record)
	}
	return records, nil
}

// AcceptRequest claims a pending request for the acting driver. The row
// is locked, the guard decides, and the update itself is still
// conditional on status = 'pending' so a lost race surfaces as
// ErrInvalidState instead of a silent overwrite.
func (s *TowingStorage) AcceptRequest(ctx context.Context, id int64, actor towing.Actor) (*Request, error) {
	return s.transition(ctx, id, actor, towing.Accept, s.requestRepo.AcceptTx)
}

// CompleteRequest marks an assigned request finished by its assignee.
func (s *TowingStorage) CompleteRequest(ctx context.Context, id int64, actor towing.Actor) (*Request, error) {
	return s.transition(ctx, id, actor, towing.Complete, s.requestRepo.CompleteTx)
}

type guardFunc func(req *towing.Request, actor towing.Actor, now time.Time) error
type updateFunc func(ctx context.Context, tx db.Tx, id, driverID int64, now time.Time) (bool, error)

func (s *TowingStorage) transition(ctx context.Context, id int64, actor towing.Actor, guard guardFunc, update updateFunc) (*Request, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	row, err := s.requestRepo.GetByIDTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, towing.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock towing request: %w", err)
	}

	guarded := &towing.Request{
		ID:         row.ID,
		CustomerID: row.CustomerID,
		DriverID:   row.DriverID,
		Status:     towing.Status(row.Status),
	}
	if err := guard(guarded, actor, now); err != nil {
		return nil, err
	}

	ok, err := update(ctx, tx, id, actor.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update towing request: %w", err)
	}
	if !ok {
		// The guard passed on the locked row, so a zero-row update means
		// the condition raced anyway. Report it the same as the guard.
		return nil, towing.ErrInvalidState
	}

	row.Status = string(guarded.Status)
	row.DriverID = guarded.DriverID
	row.UpdatedAt = now

	record, err := s.hydrate(ctx, row)
	if err != nil {
		return nil, err
	}

	if err := s.enqueueEventTx(ctx, tx, EventRequestUpdated, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit towing request update: %w", err)
	}
	return record, nil
}

func (s *TowingStorage) enqueueEventTx(ctx context.Context, tx db.Tx, name string, record *Request) error {
	payload, err := json.Marshal(Event{Name: name, Request: record})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", name, err)
	}
	task := &repository.OutboxTask{
		Payload: payload,
		Topic:   s.topic,
	}
	if err := s.outboxRepo.CreateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s event: %w", name, err)
	}
	return nil
}

func (s *TowingStorage) hydrate(ctx context.Context, row *repository.TowingRequest) (*Request, error) {
	record := mapRequest(row)
	users := map[int64]*UserSummary{}
	record.Customer = s.lookupSummary(ctx, users, row.CustomerID)
	record.Driver = s.lookupSummary(ctx, users, row.DriverID)
	return record, nil
}

// lookupSummary resolves a user reference, memoizing within one call.
// A missing account (deleted driver) degrades to a nil summary.
func (s *TowingStorage) lookupSummary(ctx context.Context, memo map[int64]*UserSummary, id *int64) *UserSummary {
	if id == nil {
		return nil
	}
	if summary, ok := memo[*id]; ok {
		return summary
	}
	user, err := s.userRepo.GetByID(ctx, *id)
	if err != nil {
		memo[*id] = nil
		return nil
	}
	summary := &UserSummary{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
	memo[*id] = summary
	return summary
}

func mapRequest(row *repository.TowingRequest) *Request {
	return &Request{
		ID:           row.ID,
		CustomerID:   row.CustomerID,
		DriverID:     row.DriverID,
		CustomerName: row.CustomerName,
		Location:     row.Location,
		Latitude:     row.Latitude,
		Longitude:    row.Longitude,
		Note:         row.Note,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
