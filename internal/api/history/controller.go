package history

import (
	"net/http"

	"github.com/ankyy/musicbox/internal/api/util"
	"github.com/ankyy/musicbox/internal/usage"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		HistoryForUser(userID uuid.UUID) ([]*usage.Record, error)
		CountAllUsage() (int, error)
		TotalLibrarySizeMB() (float64, error)
	}

	// HistoryController exposes extraction history. Signed-in callers see
	// their own records; anonymous callers see only the public aggregates.
	HistoryController struct {
		store Store
	}

	publicHistoryResponse struct {
		TotalExtractions int     `json:"totalExtractions"`
		StorageUsage     float64 `json:"storageUsage"`
	}
)

func New(store Store) *HistoryController {
	return &HistoryController{store: store}
}

func (controller *HistoryController) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
}

func (controller *HistoryController) list(ec echo.Context) error {
	id := util.IdentityFromContext(ec)
	if !id.Authenticated {
		return controller.publicAggregates(ec)
	}

	records, err := controller.store.HistoryForUser(id.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch history")
	}

	return ec.JSON(http.StatusOK, records)
}

func (controller *HistoryController) publicAggregates(ec echo.Context) error {
	total, err := controller.store.CountAllUsage()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch history")
	}

	storage, err := controller.store.TotalLibrarySizeMB()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch history")
	}

	return ec.JSON(http.StatusOK, publicHistoryResponse{TotalExtractions: total, StorageUsage: storage})
}
