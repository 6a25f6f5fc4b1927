// Package mockhorde is a small in-process stand-in for the horde's
// generate API. It is used for local runs of the worker and in tests.
package mockhorde

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/VilotStar/StableHorder/internal/config"
	"github.com/VilotStar/StableHorder/internal/model"
	"github.com/google/uuid"
)

// FaultMarker in a prompt makes the generation fault on its first check.
const FaultMarker = "###fault"

// generation is one submitted async request.
type generation struct {
	id        string
	req       model.GenerationRequest
	apiKey    string
	kudos     float64
	checks    int
	createdAt time.Time
}

func (g *generation) faulted() bool {
	return strings.Contains(g.req.Prompt, FaultMarker) && g.checks > 0
}

// Counters records how the mock was used.
type Counters struct {
	Pops             int
	EmptyPops        int
	Submits          int
	Checks           int
	StatusCalls      int
	EarlyStatusCalls int // status requested before the generation finished
}

// Server holds the mock horde state.
type Server struct {
	cfg   *config.MockConfig
	queue JobQueue

	mu          sync.Mutex
	generations map[string]*generation
	counters    Counters
}

// NewServer creates a mock horde backed by queue.
func NewServer(cfg *config.MockConfig, queue JobQueue) *Server {
	return &Server{
		cfg:         cfg,
		queue:       queue,
		generations: make(map[string]*generation),
	}
}

// Enqueue adds a job for workers to pop. A missing id is generated.
func (s *Server) Enqueue(ctx context.Context, job *model.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Model == "" {
		return "", fmt.Errorf("job %s has no model", job.ID)
	}
	if err := s.queue.Push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Counters returns a snapshot of the usage counters.
func (s *Server) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// popFor returns the next job the payload can serve. Jobs the worker cannot
// take go back to the queue and are reported in skipped.
func (s *Server) popFor(ctx context.Context, payload *model.PopPayload) (*model.Job, map[string]int, error) {
	skipped := map[string]int{}

	n, err := s.queue.Len(ctx)
	if err != nil {
		return nil, nil, err
	}

	for i := int64(0); i < n; i++ {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			return nil, nil, err
		}
		if job == nil {
			break
		}

		reason := skipReason(job, payload)
		if reason == "" {
			s.count(func(c *Counters) { c.Pops++ })
			return job, skipped, nil
		}

		skipped[reason]++
		if err := s.queue.Push(ctx, job); err != nil {
			return nil, nil, err
		}
	}

	s.count(func(c *Counters) { c.EmptyPops++ })
	return nil, skipped, nil
}

func skipReason(job *model.Job, payload *model.PopPayload) string {
	if !slices.Contains(payload.Models, job.Model) {
		return "models"
	}
	if payload.MaxPixels > 0 && int64(job.Payload.Width)*int64(job.Payload.Height) > payload.MaxPixels {
		return "max_pixels"
	}
	if job.SourceImage != nil && !payload.AllowImg2Img {
		return "img2img"
	}
	if len(job.Payload.PostProcessing) > 0 && !payload.AllowPostProcessing {
		return "post-processing"
	}
	return ""
}

func (s *Server) submit(req *model.GenerationRequest, apiKey string) *generation {
	g := &generation{
		id:        uuid.NewString(),
		req:       *req,
		apiKey:    apiKey,
		kudos:     s.cfg.KudosPerJob * float64(max(req.Params.N, 1)),
		createdAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[g.id] = g
	s.counters.Submits++
	return g
}

// check advances generation id by one check and returns its progress.
func (s *Server) check(id string) (*model.CheckResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[id]
	if !ok {
		return nil, false
	}
	g.checks++
	s.counters.Checks++
	resp := s.progress(g)
	return &resp, true
}

// status returns the full record. Finished generations are forgotten once
// their status has been retrieved.
func (s *Server) status(id string) (*model.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[id]
	if !ok {
		return nil, false
	}
	s.counters.StatusCalls++

	p := s.progress(g)
	status := &model.Status{
		Finished:      *p.Finished,
		Processing:    p.Processing,
		Waiting:       p.Waiting,
		Done:          p.Done,
		Faulted:       p.Faulted,
		WaitTime:      p.WaitTime,
		QueuePosition: p.QueuePosition,
		Kudos:         p.Kudos,
		IsPossible:    p.IsPossible,
		Shared:        g.req.Shared,
	}
	if !p.Done {
		s.counters.EarlyStatusCalls++
		return status, true
	}

	for i := range *p.Finished {
		status.Generations = append(status.Generations, model.GenerationRecord{
			Image:      fmt.Sprintf("https://r2.mockhorde.local/%s-%d.webp", g.id, i),
			Seed:       g.req.Params.Seed,
			ID:         fmt.Sprintf("%s-%d", g.id, i),
			WorkerID:   "00000000-0000-0000-0000-000000000000",
			WorkerName: "mockhorde",
			Model:      g.req.Models[0],
			State:      "ok",
		})
	}
	delete(s.generations, id)
	return status, true
}

// progress must be called with s.mu held.
func (s *Server) progress(g *generation) model.CheckResponse {
	n := max(g.req.Params.N, 1)
	resp := model.CheckResponse{
		Kudos:      g.kudos,
		IsPossible: true,
	}
	finished := 0

	switch {
	case g.faulted():
		resp.Faulted = true
	case g.checks >= s.cfg.ChecksToComplete:
		finished = n
		resp.Done = true
	case g.checks > 0:
		resp.Processing = n
		resp.WaitTime = s.cfg.ChecksToComplete - g.checks
	default:
		resp.Waiting = n
		resp.QueuePosition = 1
		resp.WaitTime = s.cfg.ChecksToComplete
	}
	resp.Finished = &finished
	return resp
}

func (s *Server) count(f func(*Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.counters)
}

// StartJanitor periodically forgets generations older than the configured
// TTL. It runs until ctx is cancelled.
func (s *Server) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[mockhorde] janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[mockhorde] janitor stopped")
			return
		case <-ticker.C:
			if n := s.expire(time.Now()); n > 0 {
				log.Printf("[mockhorde] expired %d generations", n)
			}
		}
	}
}

func (s *Server) expire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, g := range s.generations {
		if now.Sub(g.createdAt) > s.cfg.GenerationTTL {
			delete(s.generations, id)
			n++
		}
	}
	return n
}
