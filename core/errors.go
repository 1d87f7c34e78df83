package core

import "errors"

// Sentinel errors for programmatic checking.
var (
	// ErrJournalBusy is returned when another live process holds the
	// journal's advisory lock.
	ErrJournalBusy = errors.New("journal is locked by another process")

	// ErrJournalVersion is returned when the stored journal schema
	// version is newer than this build understands.
	ErrJournalVersion = errors.New("journal schema version not supported")

	// ErrCollisionAtExec is recorded on a rename whose destination
	// exists at execution time and is not the same entry.
	ErrCollisionAtExec = errors.New("rename destination already exists")

	// ErrStaleContent is recorded on a content edit whose source
	// bytes no longer match the planned original.
	ErrStaleContent = errors.New("file content changed since planning")
)
