package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Filter narrows List results. Zero-value fields are ignored.
type Filter struct {
	State State
	Type  string
}

// MaxPageSize caps List page sizes; larger requests are clamped, not
// rejected.
const MaxPageSize = 100

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	SetQueueRef(ctx context.Context, id int64, ref string) error

	// MarkRunning transitions PENDING->RUNNING, records the delivery
	// reference and increments the mirrored attempt counter. It is
	// idempotent for started_at on redelivery and returns the attempt
	// count after the increment.
	MarkRunning(ctx context.Context, id int64, deliveryRef string) (int, error)
	MarkFinished(ctx context.Context, id int64, result json.RawMessage) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error

	List(ctx context.Context, f Filter, page, pageSize int) ([]Job, int, error)
	CountByState(ctx context.Context) (map[State]int, error)
	CountByType(ctx context.Context) (map[string]int, error)

	// CountOrphans counts PENDING records older than olderThan that
	// never received a queue reference (enqueue failed after create).
	CountOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, type, params, state, queue_ref, attempts, result, error_message, created_at, started_at, finished_at`

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	if len(j.Params) == 0 {
		j.Params = json.RawMessage(`{}`)
	}
	j.State = StatePending
	query := `INSERT INTO jobs (type, params, state) VALUES ($1, $2, 'PENDING') RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, j.Type, string(j.Params)).Scan(&j.ID, &j.CreatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (r *PostgresRepo) SetQueueRef(ctx context.Context, id int64, ref string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE jobs SET queue_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return err
	}
	return r.checkMatched(ctx, res, id)
}

func (r *PostgresRepo) MarkRunning(ctx context.Context, id int64, deliveryRef string) (int, error) {
	// COALESCE keeps the first attempt's started_at on redelivery.
	query := `UPDATE jobs
		SET state = 'RUNNING',
		    queue_ref = $2,
		    started_at = COALESCE(started_at, now()),
		    attempts = attempts + 1
		WHERE id = $1 AND state IN ('PENDING', 'RUNNING')
		RETURNING attempts`
	var attempts int
	err := r.db.QueryRowContext(ctx, query, id, deliveryRef).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.transitionMiss(ctx, id)
	}
	return attempts, err
}

func (r *PostgresRepo) MarkFinished(ctx context.Context, id int64, result json.RawMessage) error {
	query := `UPDATE jobs
		SET state = 'FINISHED', finished_at = now(), result = $2
		WHERE id = $1 AND state IN ('PENDING', 'RUNNING')`
	res, err := r.db.ExecContext(ctx, query, id, string(result))
	if err != nil {
		return err
	}
	return r.checkMatched(ctx, res, id)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `UPDATE jobs
		SET state = 'FAILED', finished_at = now(), error_message = $2
		WHERE id = $1 AND state IN ('PENDING', 'RUNNING')`
	res, err := r.db.ExecContext(ctx, query, id, errMsg)
	if err != nil {
		return err
	}
	return r.checkMatched(ctx, res, id)
}

func (r *PostgresRepo) List(ctx context.Context, f Filter, page, pageSize int) ([]Job, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var conds []string
	var args []any
	if f.State != "" {
		args = append(args, string(f.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	// Count and page must see the same snapshot or total drifts from
	// the returned rows under concurrent writes.
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s FROM jobs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, len(args)-1, len(args))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *PostgresRepo) CountByState(ctx context.Context) (map[State]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var s State
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM jobs GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) CountOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `SELECT COUNT(*) FROM jobs
		WHERE state = 'PENDING' AND queue_ref = ''
		  AND created_at < now() - ($1 * interval '1 second')`
	var count int
	err := r.db.QueryRowContext(ctx, query, olderThan.Seconds()).Scan(&count)
	return count, err
}

// transitionMiss distinguishes a missing record from one already in a
// terminal state after a state-guarded UPDATE matched nothing.
func (r *PostgresRepo) transitionMiss(ctx context.Context, id int64) error {
	var state State
	err := r.db.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %d is %s", ErrFinalized, id, state)
}

func (r *PostgresRepo) checkMatched(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.transitionMiss(ctx, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var params string
	var result, errMsg sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(&j.ID, &j.Type, &params, &j.State, &j.QueueRef, &j.Attempts,
		&result, &errMsg, &j.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	j.Params = json.RawMessage(params)
	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	j.ErrorMessage = errMsg.String
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}
