package engine

import "fmt"

// ValidationError indicates rejected input; the ledger and catalog are left
// untouched when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DuplicateError indicates a catalog name collision.
type DuplicateError struct {
	Name string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("product %s already exists", e.Name)
}

// InvalidStateError indicates an illegal lifecycle transition.
type InvalidStateError struct {
	OrderID string
	Status  string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("order %s is %s; only open orders can be completed", e.OrderID, e.Status)
}
