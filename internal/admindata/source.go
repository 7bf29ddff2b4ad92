package admindata

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ingresounam/ingreso/internal/client"
)

// Snapshot is everything the admin views read
type Snapshot struct {
	Stats      *client.Stats      `json:"stats"`
	Users      []client.User      `json:"users"`
	Questions  []client.Question  `json:"questions"`
	Simulators []client.Simulator `json:"simulators"`
	Feedback   []client.Feedback  `json:"feedback"`
	FetchedAt  time.Time          `json:"fetched_at"`
}

// PendingFeedback counts feedback entries still awaiting triage
func (s *Snapshot) PendingFeedback() int {
	n := 0
	for _, f := range s.Feedback {
		if f.Status == "pending" {
			n++
		}
	}
	return n
}

// AdminAPI is the subset of the identity API client the source calls
type AdminAPI interface {
	AdminStats(ctx context.Context, auth client.Auth) (*client.Stats, error)
	AdminUsers(ctx context.Context, auth client.Auth) ([]client.User, error)
	AdminQuestions(ctx context.Context, auth client.Auth) ([]client.Question, error)
	AdminSimulators(ctx context.Context, auth client.Auth) ([]client.Simulator, error)
	AdminFeedback(ctx context.Context, auth client.Auth) ([]client.Feedback, error)
}

// Source fetches a fresh Snapshot from the admin endpoints
type Source struct {
	api AdminAPI
	now func() time.Time
}

// NewSource creates a Source over api
func NewSource(api AdminAPI) *Source {
	return &Source{api: api, now: time.Now}
}

// Fetch calls every admin listing concurrently; the first failure cancels the rest
func (s *Source) Fetch(ctx context.Context, auth client.Auth) (*Snapshot, error) {
	snap := &Snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.api.AdminStats(gctx, auth)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		snap.Stats = stats
		return nil
	})
	g.Go(func() error {
		users, err := s.api.AdminUsers(gctx, auth)
		if err != nil {
			return fmt.Errorf("users: %w", err)
		}
		snap.Users = users
		return nil
	})
	g.Go(func() error {
		questions, err := s.api.AdminQuestions(gctx, auth)
		if err != nil {
			return fmt.Errorf("questions: %w", err)
		}
		snap.Questions = questions
		return nil
	})
	g.Go(func() error {
		simulators, err := s.api.AdminSimulators(gctx, auth)
		if err != nil {
			return fmt.Errorf("simulators: %w", err)
		}
		snap.Simulators = simulators
		return nil
	})
	g.Go(func() error {
		feedback, err := s.api.AdminFeedback(gctx, auth)
		if err != nil {
			return fmt.Errorf("feedback: %w", err)
		}
		snap.Feedback = feedback
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load admin data: %w", err)
	}

	snap.FetchedAt = s.now().UTC()
	return snap, nil
}
