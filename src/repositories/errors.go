package repositories

import "errors"

var (
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrRunNotFound       = errors.New("run not found")
	ErrDownloadTokenUsed = errors.New("download token already used")
)
