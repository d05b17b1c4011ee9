package receiver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines receiver persistence operations.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the receiver does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns all receivers ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create returns ErrDeviceExists if the ID is taken and
	// ErrAddressInUse if another receiver has the address.
	Create(ctx context.Context, d *Device) error

	// CreateIfNotExists inserts d unless a receiver with the same ID is
	// already stored. It reports whether a row was written, and returns
	// ErrAddressInUse if a receiver with another ID has the address.
	CreateIfNotExists(ctx context.Context, d *Device) (bool, error)

	// Delete returns ErrDeviceNotFound if the receiver does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectReceivers = `
	SELECT id, name, address, type, created_at, updated_at
	FROM receivers`

// GetByID retrieves a receiver by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectReceivers+` WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying receiver by id: %w", err)
	}
	return d, nil
}

// List retrieves all receivers.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectReceivers+` ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("querying receivers: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning receiver: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receivers: %w", err)
	}
	return devices, nil
}

// Create inserts a new receiver. Timestamps are set when zero.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	stampDevice(d)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO receivers (id, name, address, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Address, string(d.Type),
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		if isAddressConflict(err) {
			return fmt.Errorf("%w: %q", ErrAddressInUse, d.Address)
		}
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting receiver: %w", err)
	}
	return nil
}

// CreateIfNotExists inserts d unless its ID is already stored.
func (r *SQLiteRepository) CreateIfNotExists(ctx context.Context, d *Device) (bool, error) {
	stampDevice(d)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO receivers (id, name, address, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.Name, d.Address, string(d.Type),
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		if isAddressConflict(err) {
			return false, fmt.Errorf("%w: %q", ErrAddressInUse, d.Address)
		}
		return false, fmt.Errorf("inserting receiver: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a receiver by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM receivers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting receiver: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                    Device
		typ                  string
		createdAt, updatedAt string
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Address, &typ, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Type = Type(typ)

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func stampDevice(d *Device) {
	now := time.Now().UTC().Truncate(time.Second)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY")
}

// isAddressConflict reports whether err violates idx_receivers_address.
func isAddressConflict(err error) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), "receivers.address")
}
