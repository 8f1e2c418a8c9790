package handler

import (
	"strings"
	"time"

	"regflow/internal/registration/models"
	"regflow/internal/registration/workflow"
	dErrors "regflow/pkg/domain-errors"
)

const (
	dateLayout = "2006-01-02"
	maxRemarks = 1000
)

// InstitutionRequest carries the editable institution fields. Dates are
// calendar days in YYYY-MM-DD form.
type InstitutionRequest struct {
	InstitutionName   string `json:"institution_name"`
	LicenseNumber     string `json:"license_number"`
	Sector            string `json:"sector"`
	FinancialDomain   string `json:"financial_domain"`
	LicenseIssueDate  string `json:"license_issue_date,omitempty"`
	LicenseExpiryDate string `json:"license_expiry_date,omitempty"`
}

func (r *InstitutionRequest) Normalize() {
	r.InstitutionName = strings.TrimSpace(r.InstitutionName)
	r.LicenseIssueDate = strings.TrimSpace(r.LicenseIssueDate)
	r.LicenseExpiryDate = strings.TrimSpace(r.LicenseExpiryDate)
}

func (r *InstitutionRequest) Institution() (models.Institution, error) {
	issued, err := parseDate("license_issue_date", r.LicenseIssueDate)
	if err != nil {
		return models.Institution{}, err
	}
	expires, err := parseDate("license_expiry_date", r.LicenseExpiryDate)
	if err != nil {
		return models.Institution{}, err
	}
	inst := models.Institution{
		Name:              r.InstitutionName,
		LicenseNumber:     r.LicenseNumber,
		Sector:            r.Sector,
		FinancialDomain:   r.FinancialDomain,
		LicenseIssueDate:  issued,
		LicenseExpiryDate: expires,
	}
	inst.Normalize()
	return inst, inst.Validate()
}

func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, field+" must be a date in YYYY-MM-DD form")
	}
	return &t, nil
}

type CreateRegistrationRequest struct {
	InstitutionRequest
	Remarks string `json:"remarks,omitempty"`
}

func (r *CreateRegistrationRequest) Validate() error {
	if len(r.Remarks) > maxRemarks {
		return dErrors.New(dErrors.CodeValidation, "remarks must be 1000 characters or less")
	}
	_, err := r.Institution()
	return err
}

type UpdateRegistrationRequest struct {
	InstitutionRequest
	Version int64 `json:"version"`
}

func (r *UpdateRegistrationRequest) Validate() error {
	if r.Version < 0 {
		return dErrors.New(dErrors.CodeValidation, "version must not be negative")
	}
	_, err := r.Institution()
	return err
}

// TransitionRequest asks for a status change. The optional sub-status fields
// are applied alongside the new status.
type TransitionRequest struct {
	Target           string  `json:"target"`
	Remarks          string  `json:"remarks,omitempty"`
	ValidationStatus *string `json:"validation_status,omitempty"`
	ApprovalStatus   *string `json:"approval_status,omitempty"`
	AuditStatus      *string `json:"audit_status,omitempty"`
}

func (r *TransitionRequest) Normalize() {
	r.Target = strings.TrimSpace(r.Target)
	r.Remarks = strings.TrimSpace(r.Remarks)
}

func (r *TransitionRequest) Validate() error {
	if r.Target == "" {
		return dErrors.New(dErrors.CodeValidation, "target is required")
	}
	if len(r.Remarks) > maxRemarks {
		return dErrors.New(dErrors.CodeValidation, "remarks must be 1000 characters or less")
	}
	return r.SubStatuses().Validate()
}

func (r *TransitionRequest) SubStatuses() workflow.SubStatuses {
	var sub workflow.SubStatuses
	if r.ValidationStatus != nil {
		v := models.ValidationStatus(*r.ValidationStatus)
		sub.Validation = &v
	}
	if r.ApprovalStatus != nil {
		v := models.ApprovalStatus(*r.ApprovalStatus)
		sub.Approval = &v
	}
	if r.AuditStatus != nil {
		v := models.AuditStatus(*r.AuditStatus)
		sub.Audit = &v
	}
	return sub
}

type TransitionsResponse struct {
	Current models.Status   `json:"current"`
	Allowed []models.Status `json:"allowed"`
}
