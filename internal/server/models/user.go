package models

import "time"

// User is the public identity of an account. Credentials live elsewhere.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// ActorKind tells whether a request comes from a person or an automated client.
type ActorKind string

const (
	ActorUser  ActorKind = "user"
	ActorRobot ActorKind = "robot"
)

// Actor is the authenticated identity on whose behalf an operation runs.
// For a robot, ID is the robot and OwnerID the user whose namespace it writes to.
type Actor struct {
	ID      string
	OwnerID string
	Kind    ActorKind
}

// Owner returns the namespace owner, falling back to ID for plain users.
func (a Actor) Owner() string {
	if a.OwnerID == "" {
		return a.ID
	}
	return a.OwnerID
}
