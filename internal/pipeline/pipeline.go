package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"propcheck/internal/domain"
	"propcheck/internal/engine"
	"propcheck/internal/logger"
	"propcheck/internal/pool"
	"propcheck/internal/repo"
	"propcheck/internal/webhook"
)

// ErrQueueFull is returned by Submit when the work queue cannot accept the
// job; the persisted job is failed immediately rather than left pending.
var ErrQueueFull = errors.New("job queue full")

type task struct {
	jobID string
	owner string
	req   domain.CheckRequest
}

// Pipeline owns the job state machine: submissions persist a pending job and
// enqueue it; long-lived workers drive each job through
// pending -> processing -> completed/failed in a single attempt. There is no
// retry policy; callers needing resilience resubmit.
type Pipeline struct {
	Repo       repo.Repo
	Pool       *pool.Pool
	Dispatcher *webhook.Dispatcher
	Log        zerolog.Logger
	Now        func() time.Time

	queue chan task
	wg    sync.WaitGroup
	once  sync.Once
}

type Options struct {
	Repo       repo.Repo
	Pool       *pool.Pool
	Dispatcher *webhook.Dispatcher
	Log        zerolog.Logger
	QueueSize  int
}

func New(opts Options) *Pipeline {
	size := opts.QueueSize
	if size <= 0 {
		size = 256
	}
	return &Pipeline{
		Repo:       opts.Repo,
		Pool:       opts.Pool,
		Dispatcher: opts.Dispatcher,
		Log:        opts.Log,
		Now:        time.Now,
		queue:      make(chan task, size),
	}
}

// NewJobID returns a job identifier of the form job_<12 hex chars>.
func NewJobID() string {
	u := uuid.New()
	return "job_" + hex.EncodeToString(u[:])[:12]
}

// Start launches the worker goroutines. Workers drain the queue until Stop.
func (p *Pipeline) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			log := p.Log.With().Int("worker", id).Logger()
			for t := range p.queue {
				p.process(ctx, t, log)
			}
		}(i)
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pipeline) Stop() {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
}

// Submit persists a pending job and enqueues it. The returned job reflects
// the persisted row.
func (p *Pipeline) Submit(ctx context.Context, owner string, req domain.CheckRequest) (domain.Job, error) {
	job := domain.Job{
		ID:          NewJobID(),
		UserID:      req.UserID,
		ChallengeID: req.ChallengeID,
		Status:      domain.JobPending,
		Owner:       owner,
		CreatedAt:   p.Now().UTC(),
	}
	if err := p.Repo.InsertJob(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("persist job: %w", err)
	}

	select {
	case p.queue <- task{jobID: job.ID, owner: owner, req: req}:
	default:
		now := p.Now().UTC()
		if err := p.Repo.FailJob(ctx, job.ID, ErrQueueFull.Error(), now); err != nil {
			p.Log.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark overflowed job")
		}
		return domain.Job{}, ErrQueueFull
	}

	p.Log.Info().Str("job_id", job.ID).Str("user_id", logger.Sanitize(req.UserID)).Msg("job queued")
	return job, nil
}

// process runs one job to a terminal state. Any error at any stage fails the
// job with the error message recorded; the session is released on every path.
func (p *Pipeline) process(ctx context.Context, t task, log zerolog.Logger) {
	log = log.With().Str("job_id", t.jobID).Logger()

	if err := p.Repo.MarkJobProcessing(ctx, t.jobID); err != nil {
		log.Error().Err(err).Msg("cannot mark job processing")
		return
	}

	result, err := RunCheck(ctx, p.Pool, t.req, t.jobID, log, p.Now)
	if err != nil {
		p.fail(ctx, t.jobID, err, log)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		p.fail(ctx, t.jobID, fmt.Errorf("serialize result: %w", err), log)
		return
	}
	if err := p.Repo.CompleteJob(ctx, t.jobID, string(payload), p.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("cannot mark job completed")
		return
	}
	log.Info().Str("status", string(result.Status)).Msg("job completed")

	if t.req.CallbackURL != "" {
		if err := p.Dispatcher.Deliver(ctx, t.owner, t.req.CallbackURL, payload); err != nil {
			// Best effort only: delivery failures never touch job status.
			log.Error().Err(err).Str("callback_url", t.req.CallbackURL).Msg("webhook delivery failed")
		}
	}
}

func (p *Pipeline) fail(ctx context.Context, jobID string, cause error, log zerolog.Logger) {
	log.Error().Err(cause).Msg("job failed")
	if err := p.Repo.FailJob(ctx, jobID, cause.Error(), p.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("cannot mark job failed")
	}
}

// RunCheck acquires a session, authenticates it and runs the evaluator,
// releasing the session on all exit paths. It is shared by the queued and
// synchronous paths.
func RunCheck(ctx context.Context, sessions *pool.Pool, req domain.CheckRequest, jobID string, log zerolog.Logger, now func() time.Time) (domain.CheckResult, error) {
	session := sessions.Acquire()
	if session == nil {
		return domain.CheckResult{}, pool.ErrExhausted
	}
	defer sessions.Release(ctx, session)

	if err := sessions.Connect(ctx, session, req.TerminalLogin, req.TerminalPass, req.TerminalServer); err != nil {
		return domain.CheckResult{}, fmt.Errorf("%w: %v", engine.ErrAuthentication, err)
	}

	evaluator := engine.Evaluator{Provider: session.Provider(), Log: log, Now: now}
	return evaluator.Evaluate(ctx, req, jobID)
}
