package models

type Blog struct {
	Base
	Title   string        `gorm:"not null" json:"title"`
	Content string        `gorm:"type:text" json:"content"`
	Author  string        `json:"author"`
	Status  PublishStatus `gorm:"not null;default:draft;index" json:"status"`
}

func (Blog) TableName() string {
	return "blogs"
}
