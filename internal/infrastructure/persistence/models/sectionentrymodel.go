package models

import (
	"time"
)

// TableSectionEntries holds the persisted runtime state of the registry.
const TableSectionEntries = "section_entries"

// SectionEntryModel is one key of one persisted section.
type SectionEntryModel struct {
	Section   string `gorm:"primaryKey;size:32"`
	Key       string `gorm:"primaryKey;column:entry_key;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (SectionEntryModel) TableName() string {
	return TableSectionEntries
}
