// Package portal holds the storage-relevant side of the portal's domain
// entities: which files they reference and what happens to those files
// when an entity goes away.
package portal

import "time"

// Organization is a university organization.
type Organization struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:varchar(255);not null"`
	// Logo is a filename on the organizations disk, a public path, or an external URL.
	Logo      string `gorm:"type:varchar(1024);not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (Organization) TableName() string {
	return "organizations"
}

// OrganizationMember links a user to an organization.
type OrganizationMember struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	OrganizationID uint64 `gorm:"not null;uniqueIndex:uq_organization_members_org_user,priority:1"`
	UserID         uint64 `gorm:"not null;uniqueIndex:uq_organization_members_org_user,priority:2;index"`
	Role           string `gorm:"type:varchar(32);not null;default:'member'"`
	CreatedAt      time.Time
}

// TableName returns the database table name.
func (OrganizationMember) TableName() string {
	return "organization_members"
}

// Activity is an event run by an organization.
type Activity struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	OrganizationID uint64 `gorm:"not null;index"`
	Title          string `gorm:"type:varchar(255);not null"`
	// Images are references on the activities disk.
	Images    []string `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (Activity) TableName() string {
	return "activities"
}

// News is a news item.
type News struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Title     string `gorm:"type:varchar(255);not null"`
	Image     string `gorm:"type:varchar(1024);not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (News) TableName() string {
	return "news"
}

// Announcement is a notice board entry.
type Announcement struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Title     string `gorm:"type:varchar(255);not null"`
	Image     string `gorm:"type:varchar(1024);not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (Announcement) TableName() string {
	return "announcements"
}
