package entity

import "errors"

// ErrDuplicateEvent marks an event whose idempotency key was already seen.
var ErrDuplicateEvent = errors.New("duplicate event")

// ErrMessageNotFound is returned by status updates that match no message.
var ErrMessageNotFound = errors.New("message not found")

// ErrTaskNotFound is returned when a task lookup by id matches nothing.
var ErrTaskNotFound = errors.New("task not found")
