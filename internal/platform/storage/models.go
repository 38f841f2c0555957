package storage

import "time"

// SessionResult is the sqlite row backing one finalized pipeline result.
// Payload carries the serialized record so the row schema stays stable as
// result fields evolve; SessionID is the lookup key.
type SessionResult struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:128;uniqueIndex"`
	Status    string `gorm:"size:16"`
	Payload   []byte `gorm:"type:blob"`
	CreatedAt time.Time
}

// TableName keeps the table name explicit.
func (SessionResult) TableName() string {
	return "session_results"
}
