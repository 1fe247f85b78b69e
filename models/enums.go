package models

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// PublishStatus is shared by blogs and galleries.
type PublishStatus string

const (
	StatusDraft     PublishStatus = "draft"
	StatusPublished PublishStatus = "published"
	StatusArchived  PublishStatus = "archived"
)

func (s PublishStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

type ActionType string

const (
	ActionSimple  ActionType = "simple"
	ActionGallery ActionType = "gallery"
)

func (t ActionType) Valid() bool {
	return t == ActionSimple || t == ActionGallery
}

type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in-progress"
	ActionCompleted  ActionStatus = "completed"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case ActionPending, ActionInProgress, ActionCompleted:
		return true
	}
	return false
}
