package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wayfarer/cli/internal/models"
)

// Marker keys
const (
	KeyPendingRegistration = "pending_registration"
	KeyReturnTo            = "return_to"
)

// Markers is a small durable key-value store
type Markers struct {
	db  DBTX
	now func() time.Time
}

// NewMarkers creates a marker store over db
func NewMarkers(db DBTX) *Markers {
	return &Markers{db: db, now: time.Now}
}

// Get returns the value stored under key, or nil when absent
func (m *Markers) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM markers WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get marker[%s]: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value
func (m *Markers) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO markers (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, m.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set marker[%s]: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (m *Markers) Delete(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM markers WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete marker[%s]: %w", key, err)
	}
	return nil
}

// SavePending records that a verification code was requested for p.Email
func (m *Markers) SavePending(ctx context.Context, p models.PendingRegistration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending registration: %w", err)
	}
	return m.Set(ctx, KeyPendingRegistration, data)
}

// LoadPending returns the pending registration, or nil when there is none
func (m *Markers) LoadPending(ctx context.Context) (*models.PendingRegistration, error) {
	data, err := m.Get(ctx, KeyPendingRegistration)
	if err != nil || data == nil {
		return nil, err
	}

	var p models.PendingRegistration
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pending registration: %w", err)
	}
	return &p, nil
}

// ClearPending removes the pending registration marker
func (m *Markers) ClearPending(ctx context.Context) error {
	return m.Delete(ctx, KeyPendingRegistration)
}

// SaveReturnTo remembers where to send the operator after login
func (m *Markers) SaveReturnTo(ctx context.Context, path string) error {
	return m.Set(ctx, KeyReturnTo, []byte(path))
}

// TakeReturnTo returns and clears the remembered post-login destination
func (m *Markers) TakeReturnTo(ctx context.Context) (string, error) {
	data, err := m.Get(ctx, KeyReturnTo)
	if err != nil || data == nil {
		return "", err
	}
	if err := m.Delete(ctx, KeyReturnTo); err != nil {
		return "", err
	}
	return string(data), nil
}
