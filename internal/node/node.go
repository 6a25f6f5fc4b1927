package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VilotStar/StableHorder/internal/dashboard"
	"github.com/VilotStar/StableHorder/internal/database"
	"github.com/VilotStar/StableHorder/internal/horde"
	"github.com/VilotStar/StableHorder/internal/model"
	"github.com/VilotStar/StableHorder/internal/translate"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// Wait after a pop that found no work
	DefaultIdleDelay = 5 * time.Second

	// Wait after a failed pop before issuing a new one
	DefaultPopErrorDelay = 30 * time.Second
)

// Options tunes the job loop. Zero values take defaults.
type Options struct {
	Poller        horde.Poller
	IdleDelay     time.Duration
	PopErrorDelay time.Duration
	DB            *database.DB // optional cycle log
}

// CycleResult is the outcome of one job cycle.
type CycleResult struct {
	TraceID      string
	JobID        string
	Model        string
	GenerationID string
	Status       *model.Status
	Duration     time.Duration
}

// Node is a horde worker: it pops jobs with the reception identity and
// runs them through the generation identity.
type Node struct {
	identity   *model.WorkerIdentity
	reception  *horde.ReceptionClient
	generation *horde.GenerationClient
	poller     horde.Poller
	db         *database.DB
	dashboard  *dashboard.Dashboard

	idleDelay     time.Duration
	popErrorDelay time.Duration

	paused atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewNode builds both network clients and the node. Construction errors
// are fatal; no node is returned with a single working client.
func NewNode(identity *model.WorkerIdentity, opts Options) (*Node, error) {
	reception, generation, err := horde.NewClients(identity)
	if err != nil {
		return nil, err
	}

	n := &Node{
		identity:      identity,
		reception:     reception,
		generation:    generation,
		poller:        opts.Poller,
		db:            opts.DB,
		dashboard:     dashboard.NewDashboard(identity.Payload.Name, identity.HordeURL, identity.Concurrency()),
		idleDelay:     opts.IdleDelay,
		popErrorDelay: opts.PopErrorDelay,
	}
	if n.idleDelay <= 0 {
		n.idleDelay = DefaultIdleDelay
	}
	if n.popErrorDelay <= 0 {
		n.popErrorDelay = DefaultPopErrorDelay
	}
	return n, nil
}

// Dashboard returns the node's statistics holder.
func (n *Node) Dashboard() *dashboard.Dashboard {
	return n.dashboard
}

// Start launches one cycle loop per configured thread, and the dashboard
// when dashboardAddr is set. It returns immediately.
func (n *Node) Start(ctx context.Context, dashboardAddr string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.group != nil {
		return errors.New("node already started")
	}

	// Load historical stats from database
	if n.db != nil {
		if stats, err := n.db.GetAggregateStats(); err != nil {
			n.logf("failed to load historical stats: %v", err)
		} else {
			n.dashboard.LoadHistoricalStats(stats.Completed, stats.Failed, stats.TotalImages, stats.TotalKudos, stats.TodayCompleted)
			n.logf("loaded historical stats: %d cycles, %d images, %.1f kudos",
				stats.TotalCycles, stats.TotalImages, stats.TotalKudos)
		}
	}

	n.dashboard.SetPauseFunc(func() error { n.Pause(); return nil })
	n.dashboard.SetResumeFunc(func() error { n.Resume(); return nil })

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	n.cancel = cancel
	n.group = group

	if dashboardAddr != "" {
		group.Go(func() error {
			if err := n.dashboard.ServeHTTP(groupCtx, dashboardAddr); err != nil {
				n.logf("dashboard server error: %v", err)
			}
			return nil
		})
	}

	threads := n.identity.Concurrency()
	for i := range threads {
		group.Go(func() error {
			n.cycleLoop(groupCtx, i)
			return nil
		})
	}

	n.logf("started %d cycle loops as %q", threads, n.identity.Payload.Name)
	return nil
}

// Stop cancels every loop, aborting in-flight polls, and waits for them.
func (n *Node) Stop() error {
	n.mu.Lock()
	cancel, group := n.cancel, n.group
	n.mu.Unlock()

	if group == nil {
		return nil
	}
	cancel()
	return group.Wait()
}

// Pause stops popping new jobs. Cycles in flight run to completion.
func (n *Node) Pause() {
	if !n.paused.Swap(true) {
		n.logf("paused")
		n.dashboard.UpdatePaused(true)
	}
}

// Resume undoes Pause.
func (n *Node) Resume() {
	if n.paused.Swap(false) {
		n.logf("resumed")
		n.dashboard.UpdatePaused(false)
	}
}

// ─────────────────────────────────────────────
// Job Cycle
// ─────────────────────────────────────────────

// RunCycle pops one job and runs it to completion: translate, submit,
// poll, retrieve.
//
// A nil result means nothing was popped: the error is then ErrEmptyQueue
// or the pop failure. A non-nil result with an error is a job that was
// popped but failed later.
func (n *Node) RunCycle(ctx context.Context) (*CycleResult, error) {
	job, err := n.reception.PopJob(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	n.dashboard.CycleStarted(job.ID)

	res := &CycleResult{
		TraceID: uuid.NewString(),
		JobID:   job.ID,
		Model:   job.Model,
	}
	err = n.process(ctx, job, res)
	res.Duration = time.Since(start)

	n.record(res, err)
	return res, err
}

func (n *Node) process(ctx context.Context, job *model.Job, res *CycleResult) error {
	req := translate.Translate(job)
	n.logf("[%s] job %s: model=%s steps=%d n=%d %dx%d",
		res.TraceID, job.ID, job.Model, req.Params.Steps, req.Params.N, req.Params.Width, req.Params.Height)

	id, err := n.generation.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit job %s: %w", job.ID, err)
	}
	res.GenerationID = id
	n.logf("[%s] job %s submitted as generation %s", res.TraceID, job.ID, id)

	status, err := n.poller.Wait(ctx, n.generation, id, req.Params.N)
	if err != nil {
		return fmt.Errorf("wait for generation %s: %w", id, err)
	}
	res.Status = status
	return nil
}

// record reports a popped job's outcome to the log, the dashboard and the
// cycle log.
func (n *Node) record(res *CycleResult, err error) {
	entry := &database.CycleLog{
		TraceID:      res.TraceID,
		JobID:        res.JobID,
		GenerationID: res.GenerationID,
		Model:        res.Model,
		Duration:     res.Duration,
	}

	timeout := errors.Is(err, horde.ErrTimeout)
	fault := errors.Is(err, horde.ErrRemoteFault)
	switch {
	case err == nil:
		entry.Outcome = database.OutcomeCompleted
		entry.Images = len(res.Status.Generations)
		entry.Kudos = res.Status.Kudos
		n.logf("[%s] job %s completed in %v: %d images, %.1f kudos",
			res.TraceID, res.JobID, res.Duration.Round(time.Millisecond), entry.Images, entry.Kudos)
		n.dashboard.RecordCycleCompleted(entry.Images, entry.Kudos)
	case timeout:
		entry.Outcome = database.OutcomeTimeout
	case fault:
		entry.Outcome = database.OutcomeFaulted
	default:
		entry.Outcome = database.OutcomeFailed
	}
	if err != nil {
		entry.Error = err.Error()
		n.logf("[%s] job %s %s: %v", res.TraceID, res.JobID, entry.Outcome, err)
		n.dashboard.RecordCycleFailed(err, timeout, fault)
	}

	if n.db != nil {
		if dbErr := n.db.InsertCycleLog(entry); dbErr != nil {
			n.logf("failed to insert cycle log: %v", dbErr)
		}
	}
}

// ─────────────────────────────────────────────
// Cycle Loop
// ─────────────────────────────────────────────

func (n *Node) cycleLoop(ctx context.Context, worker int) {
	for {
		if n.paused.Load() {
			if !sleep(ctx, n.idleDelay) {
				return
			}
			continue
		}

		res, err := n.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil, res != nil:
			// popped job finished or failed; it has been recorded
			continue

		case errors.Is(err, horde.ErrEmptyQueue):
			n.dashboard.RecordEmptyPop()
			if !sleep(ctx, n.idleDelay) {
				return
			}

		default:
			// The failed pop may have claimed a job server-side. It is not
			// re-issued; the next pop is a fresh request after a cooldown.
			n.logf("loop %d: pop failed, next pop in %v: %v", worker, n.popErrorDelay, err)
			n.dashboard.RecordPopError(err)
			if !sleep(ctx, n.popErrorDelay) {
				return
			}
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// logf logs a message with the [node] prefix
func (n *Node) logf(format string, args ...interface{}) {
	log.Printf("[node] "+format, args...)
}
