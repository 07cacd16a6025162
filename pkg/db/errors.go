package db

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key, height or range has no matching record.
var ErrNotFound = errors.New("not found")

// ErrStorageWrite marks a write whose transaction was rolled back.
var ErrStorageWrite = errors.New("storage write failed")

// StorageWriteError carries the failed operation and the driver error.
// errors.Is matches both ErrStorageWrite and the underlying error.
type StorageWriteError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageWriteError) Unwrap() []error {
	return []error{ErrStorageWrite, e.Err}
}

// WriteFailed wraps err as a StorageWriteError; nil stays nil.
func WriteFailed(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageWriteError{Op: op, Table: table, Err: err}
}
