package repo

import (
	"context"
	"errors"
	"time"

	"finlern/internal/pagination"

	"github.com/oklog/ulid/v2"
)

// ErrDuplicate is returned by Append when the record was already written.
var ErrDuplicate = errors.New("enrollment already recorded")

// Enrollment is an accepted, sanitized enrollment. Records are never
// updated or deleted.
type Enrollment struct {
	ID                string    `json:"id"`
	FullName          string    `json:"fullName"`
	Email             string    `json:"email"`
	PhoneNumber       string    `json:"phoneNumber"`
	CurrentJobStatus  string    `json:"currentJobStatus"`
	DesiredOccupation string    `json:"desiredOccupation"`
	CourseType        string    `json:"courseType"`
	FormVersion       string    `json:"formVersion"`
	CreatedAt         time.Time `json:"createdAt"`
}

// NewEnrollmentID returns a time-sortable id for a record created at t.
func NewEnrollmentID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

type EnrollmentRepo struct {
	db DBTX
}

func NewEnrollmentRepo(db DBTX) *EnrollmentRepo {
	return &EnrollmentRepo{db: db}
}

// Append writes e. ID and CreatedAt are filled in when empty. Writing the
// same ID twice returns ErrDuplicate and leaves the first record intact.
func (r *EnrollmentRepo) Append(ctx context.Context, e *Enrollment) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = NewEnrollmentID(e.CreatedAt)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO enrollments
                 (id, full_name, email, phone_number, current_job_status, desired_occupation, course_type, form_version, created_at)
                 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
                 ON CONFLICT (id) DO NOTHING`,
		e.ID,
		e.FullName,
		e.Email,
		e.PhoneNumber,
		e.CurrentJobStatus,
		e.DesiredOccupation,
		e.CourseType,
		e.FormVersion,
		e.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// List returns one page of records, newest first, and the total count.
func (r *EnrollmentRepo) List(ctx context.Context, p pagination.Pager) ([]Enrollment, int, error) {
	var total int
	err := r.db.QueryRow(ctx, "SELECT count(*) FROM enrollments").Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+enrollmentColumns+`
                FROM enrollments
                ORDER BY created_at DESC, id DESC
                LIMIT $1 OFFSET $2`,
		p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list, err := scanEnrollments(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAll returns every record in creation order.
func (r *EnrollmentRepo) ListAll(ctx context.Context) ([]Enrollment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+enrollmentColumns+`
                FROM enrollments
                ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEnrollments(rows)
}

const enrollmentColumns = `id, full_name, email, phone_number, current_job_status, desired_occupation, course_type, form_version, created_at`

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEnrollments(rows rowScanner) ([]Enrollment, error) {
	var list []Enrollment
	for rows.Next() {
		var item Enrollment
		err := rows.Scan(
			&item.ID,
			&item.FullName,
			&item.Email,
			&item.PhoneNumber,
			&item.CurrentJobStatus,
			&item.DesiredOccupation,
			&item.CourseType,
			&item.FormVersion,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, rows.Err()
}
