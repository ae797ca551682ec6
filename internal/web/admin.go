package web

import (
	"net/http"
	"strconv"

	errors "github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/cleanup"
	"github.com/Laisky/campus-portal/internal/storage/disk"
)

// AdminController exposes usage and cleanup operations to administrators.
type AdminController struct {
	svc         *storage.Service
	job         *cleanup.Job
	defaultDays int
}

// NewAdminController constructs the controller. Sweeps default to defaultDays.
func NewAdminController(svc *storage.Service, job *cleanup.Job, defaultDays int) (*AdminController, error) {
	if svc == nil {
		return nil, errors.New("storage service is required")
	}
	if job == nil {
		return nil, errors.New("cleanup job is required")
	}
	return &AdminController{svc: svc, job: job, defaultDays: defaultDays}, nil
}

// AllUsage reports usage of every configured disk.
func (c *AdminController) AllUsage(ctx *gin.Context) {
	usages, err := c.svc.GetAllDiskUsage(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, usages)
}

// Usage reports usage of the disk in the path.
func (c *AdminController) Usage(ctx *gin.Context) {
	name, parsed := parseDisk(ctx)
	if !parsed {
		return
	}
	usage, err := c.svc.GetDiskUsage(ctx.Request.Context(), name)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, usage)
}

// LastSweep returns the stored report of the most recent sweep.
func (c *AdminController) LastSweep(ctx *gin.Context) {
	name, parsed := parseDisk(ctx)
	if !parsed {
		return
	}
	report, err := c.job.LastReport(ctx.Request.Context(), name)
	switch {
	case errors.Is(err, cleanup.ErrNoReport):
		abort(ctx, http.StatusNotFound, "No sweep recorded")
	case err != nil:
		fail(ctx, err)
	default:
		ok(ctx, http.StatusOK, report)
	}
}

// Sweep runs an orphan sweep now. Query parameters: days, dry_run.
func (c *AdminController) Sweep(ctx *gin.Context) {
	name, parsed := parseDisk(ctx)
	if !parsed {
		return
	}

	days := c.defaultDays
	if raw := ctx.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			abort(ctx, http.StatusBadRequest, "Invalid days")
			return
		}
		days = v
	}
	dryRun := false
	if raw := ctx.Query("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			abort(ctx, http.StatusBadRequest, "Invalid dry_run")
			return
		}
		dryRun = v
	}

	report, err := c.job.Sweep(ctx.Request.Context(), name, days, dryRun)
	switch {
	case errors.Is(err, cleanup.ErrSweepInProgress):
		abort(ctx, http.StatusConflict, "Sweep already in progress")
	case err != nil:
		fail(ctx, err)
	default:
		ok(ctx, http.StatusOK, report)
	}
}

func parseDisk(ctx *gin.Context) (disk.Name, bool) {
	name, err := disk.ParseName(ctx.Param("disk"))
	if err != nil {
		abort(ctx, http.StatusNotFound, "Unknown disk")
		return "", false
	}
	return name, true
}
