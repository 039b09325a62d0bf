package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"propcheck/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrTerminalState is returned when a status update targets a job already in
// a terminal state. Completed and failed jobs never transition again.
var ErrTerminalState = errors.New("job already in terminal state")

func (r Repo) InsertJob(ctx context.Context, j domain.Job) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO jobs(id,user_id,challenge_id,status,owner_email,created_at) VALUES (?,?,?,?,?,?)`,
		j.ID, j.UserID, j.ChallengeID, string(j.Status), nullable(j.Owner), j.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func scanJob(row *sql.Row) (domain.Job, error) {
	var j domain.Job
	var status, createdAt string
	var owner, completedAt, result, errMsg sql.NullString
	err := row.Scan(&j.ID, &j.UserID, &j.ChallengeID, &status, &owner, &createdAt, &completedAt, &result, &errMsg)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	j.Status = domain.JobStatus(status)
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if owner.Valid {
		j.Owner = owner.String
	}
	if completedAt.Valid {
		if t, perr := time.Parse(time.RFC3339, completedAt.String); perr == nil {
			j.CompletedAt = &t
		}
	}
	if result.Valid {
		j.Result = &result.String
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	return j, nil
}

const jobColumns = `id,user_id,challenge_id,status,owner_email,created_at,completed_at,result,error_message`

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
}

// GetJobForOwner scopes the lookup to the submitting tenant.
func (r Repo) GetJobForOwner(ctx context.Context, id, owner string) (domain.Job, error) {
	return scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=? AND owner_email=?`, id, owner))
}

func (r Repo) ListJobsForOwner(ctx context.Context, owner string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_email=? ORDER BY created_at DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		var status, createdAt string
		var ownerCol, completedAt, result, errMsg sql.NullString
		if err := rows.Scan(&j.ID, &j.UserID, &j.ChallengeID, &status, &ownerCol, &createdAt, &completedAt, &result, &errMsg); err != nil {
			return nil, err
		}
		j.Status = domain.JobStatus(status)
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if ownerCol.Valid {
			j.Owner = ownerCol.String
		}
		if completedAt.Valid {
			if t, perr := time.Parse(time.RFC3339, completedAt.String); perr == nil {
				j.CompletedAt = &t
			}
		}
		if result.Valid {
			j.Result = &result.String
		}
		if errMsg.Valid {
			j.Error = &errMsg.String
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkJobProcessing moves a pending job to processing.
func (r Repo) MarkJobProcessing(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE jobs SET status=? WHERE id=? AND status=?`,
		string(domain.JobProcessing), id, string(domain.JobPending))
	if err != nil {
		return err
	}
	return oneRowOr(res, r, ctx, id)
}

// CompleteJob stores the serialized result and marks the job completed.
func (r Repo) CompleteJob(ctx context.Context, id, result string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE jobs SET status=?, result=?, completed_at=? WHERE id=? AND status IN (?,?)`,
		string(domain.JobCompleted), result, at.UTC().Format(time.RFC3339), id,
		string(domain.JobPending), string(domain.JobProcessing))
	if err != nil {
		return err
	}
	return oneRowOr(res, r, ctx, id)
}

// FailJob records the error message and marks the job failed.
func (r Repo) FailJob(ctx context.Context, id, message string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE jobs SET status=?, error_message=?, completed_at=? WHERE id=? AND status IN (?,?)`,
		string(domain.JobFailed), message, at.UTC().Format(time.RFC3339), id,
		string(domain.JobPending), string(domain.JobProcessing))
	if err != nil {
		return err
	}
	return oneRowOr(res, r, ctx, id)
}

// oneRowOr distinguishes a missing job from an illegal transition when an
// update matched nothing.
func oneRowOr(res sql.Result, r Repo, ctx context.Context, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if _, err := r.GetJob(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrTerminalState
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
