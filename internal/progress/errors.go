package progress

import (
	"errors"
	"fmt"
)

// ErrStorageCorrupt marks a backing store that exists but cannot be parsed.
// Load treats it as an empty store rather than failing.
var ErrStorageCorrupt = errors.New("progress storage corrupt")

// ErrRecordUnreadable marks a stored record that parses as JSON but whose
// fields cannot be decoded. Unlike ErrStorageCorrupt it is never treated as
// empty, and backends refuse to overwrite such a record.
var ErrRecordUnreadable = errors.New("progress record unreadable")

// StorageWriteError is returned when a record or work artifact cannot be written.
type StorageWriteError struct {
	Student string
	Err     error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("save progress for %q: %v", e.Student, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}
