package store

import "fmt"

// NotFoundError reports a lookup for a name that has no record.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("process '%s' not found", e.Name)
}

// AlreadyExistsError reports an Insert that collided with an existing name.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("process '%s' already exists", e.Name)
}

// InvalidStateError reports an operation applied to a record whose current
// state cannot support it, e.g. stopping a record that has no pid.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid process state: %s", e.Reason)
}
