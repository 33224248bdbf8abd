package util

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailRegistered      = errors.New("email already registered")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrNotFound             = errors.New("not found")
	ErrConfigNotFound       = errors.New("organization has no assessment config")
	ErrInvalidState         = errors.New("transition not allowed from current state")
	ErrUnauthorizedApprover = errors.New("approver role not authorized for bypass")
	ErrBypassQuotaExceeded  = errors.New("monthly bypass quota exceeded")
	ErrCooldownActive       = errors.New("retry cooldown has not elapsed")
	ErrUpstreamUnavailable  = errors.New("assessment engine unavailable")
	ErrSessionExpired       = errors.New("assessment session expired")
	ErrSessionNotFound      = errors.New("assessment session not found")
	ErrInvalidAnswer        = errors.New("answer rejected by engine")
	ErrAuditWriteFailure    = errors.New("audit entry could not be written")
)
