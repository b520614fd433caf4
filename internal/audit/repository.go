// Package audit stores and queries the dispatch log: one row per command
// the coordinator sent, or tried to send, to an actuator.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// List paging limits.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dispatch is one dispatch attempt.
type Dispatch struct {
	ID           string         `json:"id"`
	DeviceID     string         `json:"device_id"`
	Subtype      string         `json:"subtype"`
	Action       string         `json:"action"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Source       string         `json:"source"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filter selects dispatches to list. Zero fields match everything.
type Filter struct {
	DeviceID string
	Source   string
	Success  *bool
	Limit    int // default 50, max 200
	Offset   int
}

// ListResult is one page of dispatches, newest first.
type ListResult struct {
	Dispatches []Dispatch `json:"dispatches"`
	Total      int        `json:"total"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// Repository stores dispatch attempts.
type Repository interface {
	Create(ctx context.Context, d *Dispatch) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps the dispatch log in the dispatch_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db. The schema comes from
// the migrations package.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts d. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, d *Dispatch) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	var params *string
	if len(d.Parameters) > 0 {
		b, err := json.Marshal(d.Parameters)
		if err != nil {
			return fmt.Errorf("marshalling dispatch parameters: %w", err)
		}
		s := string(b)
		params = &s
	}

	success := 0
	if d.Success {
		success = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dispatch_log (id, device_id, subtype, action, parameters, source, success, error_message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeviceID, d.Subtype, d.Action, params, d.Source, success,
		nullableString(d.ErrorMessage), d.DurationMS,
		d.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting dispatch: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns dispatches matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		if *filter.Success {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM dispatch_log " + where //nolint:gosec // conditions are placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting dispatches: %w", err)
	}

	query := "SELECT id, device_id, subtype, action, parameters, source, success, error_message, duration_ms, created_at " + //nolint:gosec // conditions are placeholders only
		"FROM dispatch_log " + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying dispatches: %w", err)
	}
	defer rows.Close()

	out := []Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dispatches: %w", err)
	}

	return &ListResult{Dispatches: out, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func scanDispatch(rows *sql.Rows) (Dispatch, error) {
	var (
		d         Dispatch
		params    sql.NullString
		errMsg    sql.NullString
		success   int
		createdAt string
	)
	if err := rows.Scan(&d.ID, &d.DeviceID, &d.Subtype, &d.Action, &params, &d.Source,
		&success, &errMsg, &d.DurationMS, &createdAt); err != nil {
		return Dispatch{}, fmt.Errorf("scanning dispatch: %w", err)
	}

	d.Success = success != 0
	d.ErrorMessage = errMsg.String
	if params.Valid && params.String != "" {
		var m map[string]any
		if json.Unmarshal([]byte(params.String), &m) == nil {
			d.Parameters = m
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Dispatch{}, fmt.Errorf("parsing dispatch timestamp %q: %w", createdAt, err)
	}
	d.CreatedAt = t
	return d, nil
}
