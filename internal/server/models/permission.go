package models

import "time"

// Capability names a single permission flag.
type Capability string

const (
	CapRead   Capability = "read"
	CapEdit   Capability = "edit"
	CapDelete Capability = "delete"
)

// Capabilities is the set of flags granted on an object.
type Capabilities struct {
	Read   bool `json:"can_read"`
	Edit   bool `json:"can_edit"`
	Delete bool `json:"can_delete"`
}

// OwnerCapabilities is what the creator of an object receives.
func OwnerCapabilities() Capabilities {
	return Capabilities{Read: true, Edit: true, Delete: true}
}

// Allows reports whether c includes capability.
func (c Capabilities) Allows(capability Capability) bool {
	switch capability {
	case CapRead:
		return c.Read
	case CapEdit:
		return c.Edit
	case CapDelete:
		return c.Delete
	default:
		return false
	}
}

// Permission is a (user, object) grant. The pair is unique.
type Permission struct {
	UserID       string
	ObjectID     string
	Capabilities Capabilities
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Grant is a permission joined with the grantee's public identity.
type Grant struct {
	UserID       string
	Email        string
	Capabilities Capabilities
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}
