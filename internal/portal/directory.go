package portal

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/Laisky/campus-portal/internal/storage/registry"
)

// ErrNotFound is returned when the domain entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Directory answers ownership and membership questions from the portal tables.
type Directory struct {
	db *gorm.DB
}

// NewDirectory constructs a directory on db.
func NewDirectory(db *gorm.DB) (*Directory, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	return &Directory{db: db}, nil
}

// Migrate creates the portal tables.
func (d *Directory) Migrate(ctx context.Context) error {
	if err := d.db.WithContext(ctx).AutoMigrate(
		&Organization{},
		&OrganizationMember{},
		&Activity{},
		&News{},
		&Announcement{},
	); err != nil {
		return errors.Wrap(err, "auto migrate portal tables")
	}
	return nil
}

// OwnerExists reports whether the entity owning a file in context c still exists.
func (d *Directory) OwnerExists(ctx context.Context, c registry.Context, id uint64) (bool, error) {
	var model any
	switch c {
	case registry.ContextOrganization:
		model = &Organization{}
	case registry.ContextActivity:
		model = &Activity{}
	case registry.ContextNews:
		model = &News{}
	case registry.ContextAnnouncement:
		model = &Announcement{}
	default:
		return false, errors.Wrapf(registry.ErrUnknownContext, "%q", c)
	}

	var count int64
	if err := d.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, errors.Wrapf(err, "count %s %d", c, id)
	}
	return count > 0, nil
}

// IsOrganizationMember reports whether userID belongs to organizationID.
func (d *Directory) IsOrganizationMember(ctx context.Context, userID, organizationID uint64) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&OrganizationMember{}).
		Where("organization_id = ? AND user_id = ?", organizationID, userID).
		Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "count organization members")
	}
	return count > 0, nil
}

// ActivityOrganization returns the organization running activityID.
func (d *Directory) ActivityOrganization(ctx context.Context, activityID uint64) (uint64, bool, error) {
	var activity Activity
	err := d.db.WithContext(ctx).Select("id", "organization_id").Take(&activity, activityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "find activity %d", activityID)
	}
	return activity.OrganizationID, true, nil
}
