package progress

import "errors"

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrPhaseNotFound   = errors.New("phase not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNoLeads         = errors.New("at least one phase lead is required")
	ErrInvalidDates    = errors.New("estimated end date can't be before the start date")
)
