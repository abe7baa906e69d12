package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"qrattend/internal/attendance"
)

// SQLDays stores day records as JSON documents in attendance_days.
type SQLDays struct {
	db *sql.DB
}

// NewSQLDays creates a day store on an open DB.
func NewSQLDays(db *DB) *SQLDays {
	return &SQLDays{db: db.Client}
}

// Get loads the record for date.
func (s *SQLDays) Get(ctx context.Context, date string) (*attendance.DayRecord, error) {
	var (
		doc     string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM attendance_days WHERE date = $1`, date,
	).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attendance.ErrDayNotFound
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeDay([]byte(doc))
	if err != nil {
		return nil, err
	}
	rec.Version = version
	return rec, nil
}

// Put writes rec if the stored version still equals rec.Version.
func (s *SQLDays) Put(ctx context.Context, rec attendance.DayRecord) error {
	doc, err := encodeDay(rec)
	if err != nil {
		return err
	}

	var res sql.Result
	if rec.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO attendance_days (date, doc, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (date) DO NOTHING
		`, rec.Date, string(doc))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE attendance_days
			SET doc = $1, version = $2, updated_at = CURRENT_TIMESTAMP
			WHERE date = $3 AND version = $4
		`, string(doc), rec.Version+1, rec.Date, rec.Version)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return attendance.ErrVersionConflict
	}
	return nil
}

// SQLRoster reads the students table.
type SQLRoster struct {
	db *sql.DB
}

// NewSQLRoster creates a roster on an open DB.
func NewSQLRoster(db *DB) *SQLRoster {
	return &SQLRoster{db: db.Client}
}

// FindByEmail returns every student registered under email.
func (r *SQLRoster) FindByEmail(ctx context.Context, email string) ([]attendance.Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, roll, email FROM students WHERE email = $1 ORDER BY roll`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.Identity
	for rows.Next() {
		var id attendance.Identity
		if err := rows.Scan(&id.Name, &id.Roll, &id.Email); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Upsert creates or updates a student by roll.
func (r *SQLRoster) Upsert(ctx context.Context, id attendance.Identity) error {
	if id.Roll == "" || id.Email == "" {
		return errors.New("roll and email required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (roll, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (roll) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`, id.Roll, id.Name, id.Email)
	return err
}

func encodeDay(rec attendance.DayRecord) ([]byte, error) {
	if rec.Date == "" {
		return nil, errors.New("day record has no date")
	}
	if rec.Present == nil {
		rec.Present = []attendance.AttendanceEntry{}
	}
	return json.Marshal(rec)
}

func decodeDay(data []byte) (*attendance.DayRecord, error) {
	var rec attendance.DayRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode day record: %w", err)
	}
	return &rec, nil
}
