package storage

import "time"

// UserSummary is the slice of an account that rides along with a request
// in API responses and broadcast events.
type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Request struct {
	ID           int64        `json:"id"`
	CustomerID   *int64       `json:"customer_id"`
	DriverID     *int64       `json:"driver_id"`
	CustomerName string       `json:"customer_name"`
	Location     string       `json:"location"`
	Latitude     *float64     `json:"latitude"`
	Longitude    *float64     `json:"longitude"`
	Note         *string      `json:"note"`
	Status       string       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Customer     *UserSummary `json:"customer"`
	Driver       *UserSummary `json:"driver"`
}

// CreateFields is the customer-supplied part of a new request.
type CreateFields struct {
	CustomerName string   `json:"customer_name"`
	Location     string   `json:"location"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Note         *string  `json:"note"`
}

const (
	EventRequestCreated = "request.created"
	EventRequestUpdated = "request.updated"
)

// Event is the envelope published on the shared channel after a
// successful create or status mutation.
type Event struct {
	Name    string   `json:"event"`
	Request *Request `json:"request"`
}
