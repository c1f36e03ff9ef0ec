package roster

import "time"

// User is a classroom account. Accounts are provisioned by the wider
// application; the collaboration feature only reads them.
type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Username  string    `gorm:"column:username;size:64;uniqueIndex;not null"`
	Email     string    `gorm:"column:email;size:320"`
	IsAdmin   bool      `gorm:"column:is_admin;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing classroom users.
func (User) TableName() string {
	return "users"
}

// Class is a taught class (turma) with a single teacher.
type Class struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Label     string `gorm:"column:label;size:190;not null"`
	TeacherID int64  `gorm:"column:teacher_id;not null;index"`
}

// TableName exposes the table backing classes.
func (Class) TableName() string {
	return "classes"
}

// Enrollment links one user to one class.
type Enrollment struct {
	ID      int64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID  int64 `gorm:"column:user_id;not null;index"`
	ClassID int64 `gorm:"column:class_id;not null;index"`
}

// TableName exposes the table backing enrollments.
func (Enrollment) TableName() string {
	return "enrollments"
}
