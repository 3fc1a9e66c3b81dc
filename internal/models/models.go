package models

import "time"

// Model is implemented by records kept in the local history database.
type Model interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Repository is the CRUD surface of a history table.
//
// Delete is a soft delete; List accepts table-specific criteria such as "status" or "limit".
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Update(model T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}

var _ Model = (*TaskRecord)(nil)
