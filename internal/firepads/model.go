package firepads

import "time"

// Firepad is a collaborative document record. The document body lives
// in an external realtime backend addressed by RealtimeKey; this store
// only tracks ownership and access.
type Firepad struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp   time.Time `gorm:"column:timestamp;not null"`
	OwnerID     int64     `gorm:"column:owner_id;not null;index"`
	RealtimeKey string    `gorm:"column:realtime_key;size:190;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Firepad) TableName() string {
	return "firepads"
}

// Collab grants one user collaborator access to one firepad. No
// uniqueness constraint exists on (user_id, firepad_id); repeated adds
// accumulate duplicate rows.
type Collab struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64 `gorm:"column:user_id;not null;index"`
	FirepadID int64 `gorm:"column:firepad_id;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Collab) TableName() string {
	return "collabs"
}

// Actor is the already-authenticated identity performing an operation,
// as supplied by the session layer.
type Actor struct {
	ID       int64
	Username string
}
