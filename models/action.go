package models

// Action is a task of the association. A gallery-typed action owns exactly one gallery.
type Action struct {
	Base
	Name        string       `gorm:"not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	Type        ActionType   `gorm:"not null;default:simple" json:"type"`
	Status      ActionStatus `gorm:"not null;default:pending;index" json:"status"`
	GalleryID   *uint        `gorm:"index" json:"galleryId"`
	Gallery     *Gallery     `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

func (Action) TableName() string {
	return "actions"
}
