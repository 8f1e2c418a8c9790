package handler

import (
	"strings"

	dErrors "regflow/pkg/domain-errors"
)

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *TokenRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

func (r *TokenRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	return nil
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type CreateRoleRequest struct {
	SystemName  string `json:"system_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r *CreateRoleRequest) Validate() error {
	if strings.TrimSpace(r.SystemName) == "" {
		return dErrors.New(dErrors.CodeValidation, "system_name is required")
	}
	return nil
}

type SetRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (r *SetRolePermissionsRequest) Validate() error {
	if r.Permissions == nil {
		return dErrors.New(dErrors.CodeValidation, "permissions is required")
	}
	return nil
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

func (r *CreateUserRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

func (r *CreateUserRequest) Validate() error {
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	return nil
}

type SetOverrideRequest struct {
	Granted *bool  `json:"granted"`
	Reason  string `json:"reason"`
}

func (r *SetOverrideRequest) Validate() error {
	if r.Granted == nil {
		return dErrors.New(dErrors.CodeValidation, "granted is required")
	}
	if len(r.Reason) > 500 {
		return dErrors.New(dErrors.CodeValidation, "reason must be 500 characters or less")
	}
	return nil
}

type SetActiveRequest struct {
	Active *bool `json:"active"`
}

func (r *SetActiveRequest) Validate() error {
	if r.Active == nil {
		return dErrors.New(dErrors.CodeValidation, "active is required")
	}
	return nil
}
