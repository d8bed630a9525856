// README: Opaque string IDs shared across modules.
package types

import "github.com/google/uuid"

// ID is an opaque entity identifier. Orders, users, restaurants and drivers
// reference each other by ID only; resolution happens at read time.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) IsZero() bool {
	return id == ""
}
