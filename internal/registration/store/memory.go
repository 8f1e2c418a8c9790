package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regflow/internal/registration/models"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
)

// InMemory keeps registrations and their history behind one mutex, so a
// Transition's version check, update and log append happen together.
type InMemory struct {
	mu            sync.RWMutex
	registrations map[id.RegistrationID]*models.Registration
	logs          map[id.RegistrationID][]*models.StatusLog
}

func NewInMemory() *InMemory {
	return &InMemory{
		registrations: make(map[id.RegistrationID]*models.Registration),
		logs:          make(map[id.RegistrationID][]*models.StatusLog),
	}
}

func (s *InMemory) Create(ctx context.Context, reg *models.Registration, initial *models.StatusLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[reg.ID]; ok {
		return fmt.Errorf("registration %s: %w", reg.ID, sentinel.ErrConflict)
	}
	s.registrations[reg.ID] = reg.Clone()
	cp := *initial
	s.logs[reg.ID] = []*models.StatusLog{&cp}
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[regID]
	if !ok {
		return nil, fmt.Errorf("registration %s: %w", regID, sentinel.ErrNotFound)
	}
	return reg.Clone(), nil
}

// List returns matching registrations, newest first.
func (s *InMemory) List(ctx context.Context, f models.Filter) ([]*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Registration
	for _, reg := range s.registrations {
		if f.Status != "" && reg.Status != f.Status {
			continue
		}
		if !f.CreatedBy.IsNil() && reg.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, reg.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update persists reg if the stored version still equals expectedVersion and
// bumps reg.Version.
func (s *InMemory) Update(ctx context.Context, reg *models.Registration, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(reg.ID, expectedVersion); err != nil {
		return err
	}
	reg.Version = expectedVersion + 1
	s.registrations[reg.ID] = reg.Clone()
	return nil
}

// Transition is Update plus the history append, applied together or not at all.
func (s *InMemory) Transition(ctx context.Context, reg *models.Registration, expectedVersion int64, log *models.StatusLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(reg.ID, expectedVersion); err != nil {
		return err
	}
	reg.Version = expectedVersion + 1
	s.registrations[reg.ID] = reg.Clone()
	cp := *log
	s.logs[reg.ID] = append(s.logs[reg.ID], &cp)
	return nil
}

func (s *InMemory) checkVersion(regID id.RegistrationID, expected int64) error {
	current, ok := s.registrations[regID]
	if !ok {
		return fmt.Errorf("registration %s: %w", regID, sentinel.ErrNotFound)
	}
	if current.Version != expected {
		return fmt.Errorf("registration %s at version %d, expected %d: %w", regID, current.Version, expected, sentinel.ErrStaleVersion)
	}
	return nil
}

// History returns the status log oldest first.
func (s *InMemory) History(ctx context.Context, regID id.RegistrationID) ([]*models.StatusLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.registrations[regID]; !ok {
		return nil, fmt.Errorf("registration %s: %w", regID, sentinel.ErrNotFound)
	}
	logs := s.logs[regID]
	out := make([]*models.StatusLog, len(logs))
	for i, l := range logs {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}
