package symtab

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a symbol identity is not registered.
var ErrNotFound = errors.New("symbol not found")

// DuplicateSymbolError reports a second registration of the same identity.
// It indicates a front-end data defect and is fatal.
type DuplicateSymbolError struct {
	ID     string
	First  Location
	Second Location
}

func (e *DuplicateSymbolError) Error() string {
	if e.First.File != "" || e.Second.File != "" {
		return fmt.Sprintf("duplicate symbol %q (first at %s, again at %s)", e.ID, e.First, e.Second)
	}
	return fmt.Sprintf("duplicate symbol %q", e.ID)
}
