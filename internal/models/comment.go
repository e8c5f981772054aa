package models

import (
	"database/sql"
)

// Field limits, counted in characters
const (
	MaxAuthorLength    = 80
	MaxBodyLength      = 4000
	MaxUserAgentLength = 255
)

// Comment represents a stored comment. Rows are written once and never updated.
type Comment struct {
	ID        int64         `gorm:"primaryKey;autoIncrement;column:id"`
	Slug      string        `gorm:"type:text;not null;index:idx_comments_slug_created,priority:1;column:slug"`
	Author    string        `gorm:"type:varchar(320);not null;column:author"`
	Body      string        `gorm:"type:text;not null;column:body"`
	BodyHTML  string        `gorm:"type:text;not null;column:body_html"`
	CreatedAt int64         `gorm:"not null;autoCreateTime:milli;index:idx_comments_slug_created,priority:2;column:created_at"`
	ParentID  sql.NullInt64 `gorm:"index;column:parent_id"`
	IPHash    string        `gorm:"type:char(64);not null;column:ip_hash"`
	UserAgent string        `gorm:"type:varchar(1020);not null;default:'';column:ua"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}
