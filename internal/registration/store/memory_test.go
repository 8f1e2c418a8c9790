package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"regflow/internal/registration/models"
	"regflow/internal/registration/workflow"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
	maker id.UserID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s.maker = id.UserID(uuid.New())
}

func (s *InMemoryStoreSuite) create(name string, at time.Time) *models.Registration {
	reg, err := models.NewRegistration(id.RegistrationID(uuid.New()), models.Institution{Name: name}, s.maker, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, reg, workflow.InitialLog(reg, "")))
	return reg
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	reg := s.create("Acme", s.now)

	got, err := s.store.FindByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(reg, got)

	got.Institution.Name = "mutated"
	again, err := s.store.FindByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal("Acme", again.Institution.Name, "callers get copies")

	s.ErrorIs(s.store.Create(s.ctx, reg, workflow.InitialLog(reg, "")), sentinel.ErrConflict)

	_, err = s.store.FindByID(s.ctx, id.RegistrationID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestTransition_AppendsLogAndBumpsVersion() {
	reg := s.create("Acme", s.now)
	next, log := workflow.Apply(reg, models.StatusSubmitted, workflow.SubStatuses{}, s.maker, s.now.Add(time.Minute), "ready")

	s.Require().NoError(s.store.Transition(s.ctx, next, reg.Version, log))
	s.Equal(int64(2), next.Version)

	stored, err := s.store.FindByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.Status)
	s.Equal(int64(2), stored.Version)

	history, err := s.store.History(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.Status(""), history[0].FromStatus)
	s.Equal(models.StatusDraft, history[0].Status)
	s.Equal(models.StatusDraft, history[1].FromStatus)
	s.Equal(models.StatusSubmitted, history[1].Status)
}

func (s *InMemoryStoreSuite) TestTransition_StaleVersionChangesNothing() {
	reg := s.create("Acme", s.now)
	next, log := workflow.Apply(reg, models.StatusSubmitted, workflow.SubStatuses{}, s.maker, s.now, "")

	err := s.store.Transition(s.ctx, next, reg.Version+1, log)
	s.ErrorIs(err, sentinel.ErrStaleVersion)
	s.Equal(reg.Version, next.Version)

	history, err := s.store.History(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(history, 1)

	ghost := reg.Clone()
	ghost.ID = id.RegistrationID(uuid.New())
	s.ErrorIs(s.store.Transition(s.ctx, ghost, 1, log), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestTransition_ConcurrentWritersOneWins() {
	reg := s.create("Acme", s.now)
	targets := []models.Status{models.StatusSubmitted, models.StatusArchived}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, to := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, log := workflow.Apply(reg, to, workflow.SubStatuses{}, s.maker, s.now, "")
			err := s.store.Transition(s.ctx, next, reg.Version, log)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, sentinel.ErrStaleVersion):
			stale++
		}
	}
	s.Equal(1, ok)
	s.Equal(1, stale)

	history, err := s.store.History(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
}

func (s *InMemoryStoreSuite) TestUpdate_VersionChecked() {
	reg := s.create("Acme", s.now)
	edited := reg.Clone()
	edited.Institution.Name = "Acme Holdings"

	s.Require().NoError(s.store.Update(s.ctx, edited, reg.Version))
	s.Equal(int64(2), edited.Version)
	s.ErrorIs(s.store.Update(s.ctx, reg, reg.Version), sentinel.ErrStaleVersion)

	history, err := s.store.History(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(history, 1, "detail edits are not status changes")
}

func (s *InMemoryStoreSuite) TestList() {
	older := s.create("Older", s.now)
	newer := s.create("Newer", s.now.Add(time.Hour))
	other := id.UserID(uuid.New())
	foreign, err := models.NewRegistration(id.RegistrationID(uuid.New()), models.Institution{Name: "Foreign"}, other, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, foreign, workflow.InitialLog(foreign, "")))

	next, log := workflow.Apply(older, models.StatusSubmitted, workflow.SubStatuses{}, s.maker, s.now, "")
	s.Require().NoError(s.store.Transition(s.ctx, next, older.Version, log))

	all, err := s.store.List(s.ctx, models.Filter{CreatedBy: s.maker})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(newer.ID, all[0].ID)

	drafts, err := s.store.List(s.ctx, models.Filter{Status: models.StatusDraft})
	s.Require().NoError(err)
	s.Len(drafts, 2)

	limited, err := s.store.List(s.ctx, models.Filter{Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *InMemoryStoreSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.store.FindByID(ctx, id.RegistrationID(uuid.New()))
	s.ErrorIs(err, context.Canceled)
}
