package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tareeqk/towing/internal/storage"
)

type stubLister struct {
	requests []*storage.Request
	err      error
}

func (s *stubLister) ListActiveRequests(_ context.Context) ([]*storage.Request, error) {
	return s.requests, s.err
}

func TestLoadInitialData(t *testing.T) {
	lister := &stubLister{requests: []*storage.Request{
		{ID: 1, CustomerName: "Ahmed", Status: "pending"},
		{ID: 2, CustomerName: "Sara", Status: "assigned"},
	}}
	c := NewRequestCache(lister)

	require.NoError(t, c.LoadInitialData(context.Background()))

	got, found := c.Get(1)
	require.True(t, found)
	assert.Equal(t, "Ahmed", got.CustomerName)
	_, found = c.Get(3)
	assert.False(t, found)
}

func TestLoadInitialDataError(t *testing.T) {
	c := NewRequestCache(&stubLister{err: errors.New("connection refused")})
	assert.Error(t, c.LoadInitialData(context.Background()))
}

func TestSetEvictsInactive(t *testing.T) {
	c := NewRequestCache(&stubLister{})

	c.Set(&storage.Request{ID: 1, Status: "pending"})
	_, found := c.Get(1)
	require.True(t, found)

	c.Set(&storage.Request{ID: 1, Status: "assigned"})
	got, found := c.Get(1)
	require.True(t, found)
	assert.Equal(t, "assigned", got.Status)

	c.Set(&storage.Request{ID: 1, Status: "completed"})
	_, found = c.Get(1)
	assert.False(t, found)
}

func TestGetReturnsCopy(t *testing.T) {
	c := NewRequestCache(&stubLister{})
	c.Set(&storage.Request{ID: 1, Status: "pending", CustomerName: "Ahmed"})

	got, found := c.Get(1)
	require.True(t, found)
	got.CustomerName = "mutated"

	again, found := c.Get(1)
	require.True(t, found)
	assert.Equal(t, "Ahmed", again.CustomerName)
}
