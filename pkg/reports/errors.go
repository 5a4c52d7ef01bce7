package reports

import "errors"

var (
	ErrInvalidSchedule  = errors.New("invalid report schedule")
	ErrScheduleNotFound = errors.New("report schedule not found")
	ErrForbidden        = errors.New("only admins can manage report schedules")
)
