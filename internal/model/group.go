package model

import "time"

// DefaultGroupID is the group unassigned records fall into when an owner has
// no groups at all.
const DefaultGroupID = "default"

// DefaultGroupName is the display name of an owner's default group.
const DefaultGroupName = "General Ledger"

// Group is a user-defined budget or class that transactions are filed under.
type Group struct {
	CreatedAt   time.Time
	ID          string
	OwnerID     string
	Name        string
	Description string
	Color       string
	IsDefault   bool
}
