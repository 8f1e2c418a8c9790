package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("draft")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestStatusClassification(t *testing.T) {
	terminal := map[Status]bool{StatusApproved: true, StatusRejected: true, StatusArchived: true}
	editable := map[Status]bool{StatusDraft: true, StatusReturnedForEdit: true}
	for _, s := range Statuses {
		assert.Equal(t, terminal[s], s.IsTerminal(), s)
		assert.Equal(t, editable[s], s.Editable(), s)
	}
}

func TestNewRegistration(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 30, 0, 0, time.UTC)
	creator := id.UserID(uuid.New())
	issue := time.Date(2020, 6, 1, 15, 0, 0, 0, time.FixedZone("X", 3600))
	expiry := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)

	reg, err := NewRegistration(id.RegistrationID(uuid.New()), Institution{
		Name:              "  Acme Bank ",
		LicenseIssueDate:  &issue,
		LicenseExpiryDate: &expiry,
	}, creator, now)
	require.NoError(t, err)
	assert.Equal(t, "Acme Bank", reg.Institution.Name)
	assert.Equal(t, StatusDraft, reg.Status)
	assert.Equal(t, int64(1), reg.Version)
	assert.Equal(t, ValidationPending, reg.ValidationStatus)
	assert.Equal(t, AuditNotAudited, reg.AuditStatus)
	assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), *reg.Institution.LicenseIssueDate)

	tests := []struct {
		name string
		inst Institution
		by   id.UserID
	}{
		{"missing name", Institution{Name: " "}, creator},
		{"expiry before issue", Institution{Name: "A", LicenseIssueDate: &expiry, LicenseExpiryDate: &issue}, creator},
		{"missing creator", Institution{Name: "A"}, id.UserID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistration(id.RegistrationID(uuid.New()), tt.inst, tt.by, now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	now := time.Now().UTC()
	actor := id.UserID(uuid.New())
	reg := &Registration{SubmittedAt: &now, SubmittedBy: &actor}
	cp := reg.Clone()
	*cp.SubmittedAt = now.Add(time.Hour)
	*cp.SubmittedBy = id.UserID(uuid.New())
	assert.Equal(t, now, *reg.SubmittedAt)
	assert.Equal(t, actor, *reg.SubmittedBy)
}

func TestFilter_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, Filter{}.EffectiveLimit())
	assert.Equal(t, 10, Filter{Limit: 10}.EffectiveLimit())
	assert.Equal(t, MaxListLimit, Filter{Limit: 10_000}.EffectiveLimit())
}
