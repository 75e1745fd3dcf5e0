package libraries

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ankyy/musicbox/internal/api/util"
	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/internal/library"
	"github.com/ankyy/musicbox/pkg/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var controllerLogger = logger.Get("LibraryController")

type (
	Store interface {
		ListFiles(limit uint64) ([]*library.FileRecord, error)
		GetFile(id uuid.UUID) (*library.FileRecord, error)
		DeleteFile(id uuid.UUID) error
	}

	// LibraryController exposes the persisted output files. Listing is open
	// to everyone; destructive operations are restricted to administrators.
	LibraryController struct {
		store     Store
		eventBus  event.EventDispatcher
		outputDir string
	}
)

func New(store Store, eventBus event.EventDispatcher, outputDir string) *LibraryController {
	return &LibraryController{store: store, eventBus: eventBus, outputDir: outputDir}
}

func (controller *LibraryController) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete, util.RequireAdmin)
}

func (controller *LibraryController) list(ec echo.Context) error {
	var limit uint64
	if raw := ec.QueryParam("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Query param 'limit' must be a non-negative integer")
		}
		limit = parsed
	}

	records, err := controller.store.ListFiles(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list library files")
	}

	return ec.JSON(http.StatusOK, records)
}

func (controller *LibraryController) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Path param 'id' must be a valid UUID")
	}

	record, err := controller.store.GetFile(id)
	if err != nil {
		if errors.Is(err, library.ErrFileNotFound) {
			return echo.ErrNotFound
		}

		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch library file")
	}

	return ec.JSON(http.StatusOK, record)
}

func (controller *LibraryController) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Path param 'id' must be a valid UUID")
	}

	record, err := controller.store.GetFile(id)
	if err != nil {
		if errors.Is(err, library.ErrFileNotFound) {
			return echo.ErrNotFound
		}

		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete library file")
	}

	if err := controller.store.DeleteFile(id); err != nil {
		if errors.Is(err, library.ErrFileNotFound) {
			return echo.ErrNotFound
		}

		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete library file")
	}

	// The record is authoritative; a missing on-disk file is only noted.
	if err := os.Remove(filepath.Join(controller.outputDir, record.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		controllerLogger.Warnf("Deleted record %s but failed to remove file '%s': %v\n", id, record.Filename, err)
	}

	controllerLogger.Infof("Deleted library file %s (%s)\n", id, record.Filename)
	controller.eventBus.Dispatch(event.LibraryUpdateEvent, id)
	return ec.NoContent(http.StatusNoContent)
}
