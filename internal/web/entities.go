package web

import (
	"context"
	"net/http"
	"strconv"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/campus-portal/internal/portal"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

// EntityDeleter removes portal entities together with their files.
type EntityDeleter interface {
	DeleteOrganization(ctx context.Context, id uint64) (int, error)
	DeleteActivity(ctx context.Context, id uint64) (int, error)
	DeleteNews(ctx context.Context, id uint64) (int, error)
	DeleteAnnouncement(ctx context.Context, id uint64) (int, error)
}

// EntityMedia attaches stored images to portal entities.
type EntityMedia interface {
	SetOrganizationLogo(ctx context.Context, orgID uint64, upload portal.Upload) (*registry.FileRecord, error)
	AddActivityImage(ctx context.Context, activityID uint64, upload portal.Upload) (*registry.FileRecord, error)
	SetNewsImage(ctx context.Context, newsID uint64, upload portal.Upload) (*registry.FileRecord, error)
	SetAnnouncementImage(ctx context.Context, announcementID uint64, upload portal.Upload) (*registry.FileRecord, error)
	URL(ctx context.Context, name disk.Name, raw string) (string, bool)
}

// EntitiesController exposes entity deletion and entity images to administrators.
type EntitiesController struct {
	deleter EntityDeleter
	media   EntityMedia
}

// NewEntitiesController constructs the controller.
func NewEntitiesController(deleter EntityDeleter, media EntityMedia) (*EntitiesController, error) {
	if deleter == nil {
		return nil, errors.New("entity deleter is required")
	}
	if media == nil {
		return nil, errors.New("entity media is required")
	}
	return &EntitiesController{deleter: deleter, media: media}, nil
}

type deleteEntityResult struct {
	FilesRemoved int `json:"files_removed"`
}

// Delete removes the entity of kind with id, and every file it owns.
func (c *EntitiesController) Delete(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		abort(ctx, http.StatusBadRequest, "Invalid id")
		return
	}

	var del func(context.Context, uint64) (int, error)
	switch ctx.Param("kind") {
	case "organizations":
		del = c.deleter.DeleteOrganization
	case "activities":
		del = c.deleter.DeleteActivity
	case "news":
		del = c.deleter.DeleteNews
	case "announcements":
		del = c.deleter.DeleteAnnouncement
	default:
		abort(ctx, http.StatusNotFound, "Unknown entity kind")
		return
	}

	removed, err := del(ctx.Request.Context(), id)
	switch {
	case errors.Is(err, portal.ErrNotFound):
		abort(ctx, http.StatusNotFound, "Entity not found")
	case err != nil:
		gmw.GetLogger(ctx).Error("delete entity",
			zap.String("kind", ctx.Param("kind")),
			zap.Uint64("id", id),
			zap.Error(err))
		fail(ctx, err)
	default:
		ok(ctx, http.StatusOK, deleteEntityResult{FilesRemoved: removed})
	}
}

type setImageFunc func(context.Context, uint64, portal.Upload) (*registry.FileRecord, error)

// SetImage stores the multipart "file" field as the image of the entity of kind with id.
// Activities collect images; the other kinds replace their previous one.
func (c *EntitiesController) SetImage(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		abort(ctx, http.StatusBadRequest, "Invalid id")
		return
	}

	var set setImageFunc
	switch ctx.Param("kind") {
	case "organizations":
		set = c.media.SetOrganizationLogo
	case "activities":
		set = c.media.AddActivityImage
	case "news":
		set = c.media.SetNewsImage
	case "announcements":
		set = c.media.SetAnnouncementImage
	default:
		abort(ctx, http.StatusNotFound, "Unknown entity kind")
		return
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadBytes)
	header, err := ctx.FormFile("file")
	if err != nil {
		abort(ctx, http.StatusBadRequest, "Missing file")
		return
	}
	body, err := header.Open()
	if err != nil {
		abort(ctx, http.StatusBadRequest, "Unreadable file")
		return
	}
	defer body.Close() //nolint:errcheck

	rec, err := set(ctx.Request.Context(), id, portal.Upload{
		Body:         body,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		UploadedBy:   PrincipalFromContext(ctx).UserID,
	})
	switch {
	case errors.Is(err, portal.ErrNotFound):
		abort(ctx, http.StatusNotFound, "Entity not found")
		return
	case err != nil:
		fail(ctx, err)
		return
	}

	url, _ := c.media.URL(ctx.Request.Context(), rec.Disk, rec.Filename)
	view, err := newFileView(rec, url)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusCreated, view)
}
