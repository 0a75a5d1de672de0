package errors

import "errors"

// Storage errors.
var (
	ErrStorage = errors.New("storage operation failed")
)

// Cache errors.
var (
	ErrCacheInvalid = errors.New("cache file exists but does not contain valid data")
)

// Sync errors.
var (
	ErrLocalFile     = errors.New("local file error")
	ErrRemoteFile    = errors.New("remote file error")
	ErrNothingToSync = errors.New("no files found locally or remotely")
	ErrCopy          = errors.New("failed to copy file")
	ErrBackup        = errors.New("failed to create file backup")
	ErrHook          = errors.New("local update hook failed")
)

// Host errors.
var (
	ErrLocked = errors.New("another sync is already running")
)
