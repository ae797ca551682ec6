package web

import (
	"mime"
	"net/http"
	"strconv"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/access"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

const (
	msgAccessDenied = "Access denied"
	msgFileNotFound = "File not found"

	// maxUploadBytes caps a single multipart upload.
	maxUploadBytes = 32 << 20
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func abort(ctx *gin.Context, status int, message string) {
	ctx.AbortWithStatusJSON(status, response{Success: false, Message: message})
}

func ok(ctx *gin.Context, status int, data any) {
	ctx.JSON(status, response{Success: true, Data: data})
}

// FileView is the public projection of a file record.
type FileView struct {
	Filename     string           `json:"filename"`
	OriginalName string           `json:"original_name"`
	MimeType     string           `json:"mime_type"`
	Size         int64            `json:"size"`
	Disk         disk.Name        `json:"disk"`
	Context      registry.Context `json:"context,omitempty"`
	ContextID    *uint64          `json:"context_id,omitempty"`
	UploadedBy   uint64           `json:"uploaded_by"`
	CreatedAt    time.Time        `json:"created_at"`
	URL          string           `json:"url"`
	IsImage      bool             `json:"is_image"`
	IsDocument   bool             `json:"is_document"`
}

// FilesController serves, accepts and removes stored files.
type FilesController struct {
	svc  *storage.Service
	gate *access.Gate
}

// NewFilesController constructs the controller.
func NewFilesController(svc *storage.Service, gate *access.Gate) (*FilesController, error) {
	if svc == nil {
		return nil, errors.New("storage service is required")
	}
	if gate == nil {
		return nil, errors.New("access gate is required")
	}
	return &FilesController{svc: svc, gate: gate}, nil
}

// Serve streams a file after the access gate allows it.
func (c *FilesController) Serve(ctx *gin.Context) {
	logger := gmw.GetLogger(ctx)
	name, err := disk.ParseName(ctx.Param("disk"))
	if err != nil {
		abort(ctx, http.StatusNotFound, msgFileNotFound)
		return
	}
	filename := ctx.Param("filename")

	decision, err := c.gate.Authorize(ctx.Request.Context(), name, filename, PrincipalFromContext(ctx))
	if err != nil {
		logger.Error("authorize file access", zap.String("disk", name.String()),
			zap.String("filename", filename), zap.Error(err))
		abort(ctx, http.StatusInternalServerError, "Internal server error")
		return
	}
	switch decision.Outcome {
	case access.NotFound:
		abort(ctx, http.StatusNotFound, msgFileNotFound)
		return
	case access.Deny:
		abort(ctx, http.StatusForbidden, msgAccessDenied)
		return
	}

	rc, err := c.svc.Open(ctx.Request.Context(), name, filename)
	if err != nil {
		if storage.IsCode(err, storage.ErrCodeNotFound) {
			logger.Warn("registered file missing on disk",
				zap.String("disk", name.String()), zap.String("filename", filename))
		}
		fail(ctx, err)
		return
	}
	defer rc.Close() //nolint:errcheck

	rec := decision.Record
	contentType := rec.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := map[string]string{
		"Content-Disposition": mime.FormatMediaType("inline", map[string]string{"filename": rec.OriginalName}),
	}
	if rec.Context != registry.ContextNews && rec.Context != registry.ContextAnnouncement {
		headers["Cache-Control"] = "private"
	}
	// the stored object is authoritative, -1 streams without a length
	size := int64(-1)
	if n, known := disk.ObjectSize(rc); known {
		size = n
		if n != rec.Size {
			logger.Warn("stored size differs from record",
				zap.String("disk", name.String()), zap.String("filename", filename),
				zap.Int64("recorded", rec.Size), zap.Int64("stored", n))
		}
	}
	ctx.DataFromReader(http.StatusOK, size, contentType, rc, headers)
}

// Upload stores the multipart "file" field on the disk in the path.
func (c *FilesController) Upload(ctx *gin.Context) {
	principal := PrincipalFromContext(ctx)
	name, err := disk.ParseName(ctx.Param("disk"))
	if err != nil {
		abort(ctx, http.StatusNotFound, "Unknown disk")
		return
	}
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadBytes)

	fileCtx, err := registry.ParseContext(ctx.PostForm("context"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, "Invalid context")
		return
	}
	var contextID *uint64
	if raw := ctx.PostForm("context_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			abort(ctx, http.StatusBadRequest, "Invalid context_id")
			return
		}
		contextID = &id
	}

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

	rec, err := c.svc.Store(ctx.Request.Context(), storage.StoreRequest{
		Disk:         name,
		Body:         body,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Context:      fileCtx,
		ContextID:    contextID,
		UploadedBy:   principal.UserID,
	})
	if err != nil {
		fail(ctx, err)
		return
	}

	view, err := c.view(ctx, rec)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusCreated, view)
}

// Delete removes a file and its record.
func (c *FilesController) Delete(ctx *gin.Context) {
	name, err := disk.ParseName(ctx.Param("disk"))
	if err != nil {
		abort(ctx, http.StatusNotFound, msgFileNotFound)
		return
	}

	existed, err := c.svc.DeleteFile(ctx.Request.Context(), name, ctx.Param("filename"))
	if err != nil {
		fail(ctx, err)
		return
	}
	if !existed {
		abort(ctx, http.StatusNotFound, msgFileNotFound)
		return
	}
	ok(ctx, http.StatusOK, nil)
}

func (c *FilesController) view(ctx *gin.Context, rec *registry.FileRecord) (*FileView, error) {
	var url string
	if d, err := c.svc.Disks().Disk(rec.Disk); err == nil {
		url = d.URL(rec.Filename)
	} else {
		gmw.GetLogger(ctx).Warn("resolve file url", zap.Error(err))
	}
	return newFileView(rec, url)
}

func newFileView(rec *registry.FileRecord, url string) (*FileView, error) {
	view := new(FileView)
	if err := copier.Copy(view, rec); err != nil {
		return nil, errors.Wrap(err, "copy file record")
	}
	view.URL = url
	view.IsImage = rec.IsImage()
	view.IsDocument = rec.IsDocument()
	return view, nil
}

// statusForError maps storage errors onto HTTP statuses.
func statusForError(err error) (int, string) {
	typed, found := storage.AsError(err)
	if !found {
		return http.StatusInternalServerError, "Internal server error"
	}
	switch typed.Code {
	case storage.ErrCodeNotFound:
		return http.StatusNotFound, msgFileNotFound
	case storage.ErrCodeUnknownDisk:
		return http.StatusNotFound, "Unknown disk"
	case storage.ErrCodeInvalidArgument:
		return http.StatusBadRequest, typed.Message
	case storage.ErrCodeDiskUnavailable, storage.ErrCodeRegistryUnavailable:
		return http.StatusServiceUnavailable, "Storage unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func fail(ctx *gin.Context, err error) {
	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		gmw.GetLogger(ctx).Error("storage request failed", zap.Error(err))
	}
	abort(ctx, status, message)
}
