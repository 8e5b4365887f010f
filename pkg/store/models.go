package store

import "time"

// Entry is one stored key in the database backend.
type Entry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:512"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the gorm default table name.
func (Entry) TableName() string {
	return "kv_entries"
}
