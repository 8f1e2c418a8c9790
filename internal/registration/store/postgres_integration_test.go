//go:build integration

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
	"regflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Postgres
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "registration_status_logs", "registrations"))
}

func (s *PostgresStoreSuite) underReview() (*models.Registration, id.UserID) {
	actor := id.UserID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)
	reg, err := models.NewRegistration(id.RegistrationID(uuid.New()), models.Institution{Name: "Acme"}, actor, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, reg, workflow.InitialLog(reg, "")))
	for _, to := range []models.Status{models.StatusSubmitted, models.StatusUnderReview} {
		next, log := workflow.Apply(reg, to, workflow.SubStatuses{}, actor, now, "")
		s.Require().NoError(s.store.Transition(s.ctx, next, reg.Version, log))
		reg = next
	}
	return reg, actor
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	reg, _ := s.underReview()
	got, err := s.store.FindByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, got.Status)
	s.Equal(int64(3), got.Version)
	s.Require().NotNil(got.SubmittedAt)

	history, err := s.store.History(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(history, 3)
}

func (s *PostgresStoreSuite) TestConcurrentApproveAndReject() {
	reg, actor := s.underReview()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, to := range []models.Status{models.StatusApproved, models.StatusRejected} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, log := workflow.Apply(reg, to, workflow.SubStatuses{}, actor, time.Now().UTC(), "")
			err := s.store.Transition(s.ctx, next, reg.Version, log)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var won, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, sentinel.ErrStaleVersion):
			stale++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, won)
	s.Equal(1, stale)

	got, err := s.store.FindByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.True(got.Status == models.StatusApproved || got.Status == models.StatusRejected)

	history, err := s.store.History(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(history, 4, "exactly one terminal row appended")
	s.Equal(got.Status, history[3].Status)
}

func (s *PostgresStoreSuite) TestStatusLogIsAppendOnly() {
	reg, _ := s.underReview()
	_, err := s.pg.DB.ExecContext(s.ctx, `DELETE FROM registration_status_logs WHERE registration_id = $1`, uuid.UUID(reg.ID))
	s.Error(err)
}
