package models

import "time"

// ArchivedSession is one council session as recorded by the archive. A reset
// closes the current row and opens a new one for the same surface key.
type ArchivedSession struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Surface   string     `gorm:"size:16;not null;index:idx_surface_key" json:"surface"` // cli, http, slack, discord
	Key       string     `gorm:"size:191;not null;index:idx_surface_key" json:"key"`
	Profile   string     `gorm:"size:32" json:"profile"`
	Stage     string     `gorm:"size:16;default:INIT" json:"stage"`
	Summary   string     `gorm:"type:text" json:"summary,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	Messages []ArchivedMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// ArchivedMessage is one transcript entry of an archived session.
type ArchivedMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID uint      `gorm:"not null;uniqueIndex:idx_session_seq" json:"-"`
	Sequence  int       `gorm:"not null;uniqueIndex:idx_session_seq" json:"sequence"`
	Role      string    `gorm:"size:32;not null" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
