package rights

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsura/portal-api/internal/domain/consultation"
	"github.com/clinsura/portal-api/internal/platform/auth"
)

type Handler struct {
	coord *Coordinator
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinic := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSecretary))
	clinic.POST("/consultations/:id/rights-check", h.CheckRights)
}

func (h *Handler) CheckRights(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	owner, err := consultation.OwnerFromRequest(c)
	if err != nil {
		return err
	}

	result, err := h.coord.CheckRights(c.Request().Context(), id, owner.DoctorID)
	if err != nil {
		var illegal *consultation.IllegalTransitionError
		switch {
		case errors.Is(err, ErrCheckInFlight):
			return c.JSON(http.StatusAccepted, map[string]string{"status": "in_flight"})
		case errors.Is(err, ErrRightsCheckFailed):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		case errors.Is(err, ErrNoPatientIdentity):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, consultation.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "consultation not found")
		case errors.As(err, &illegal):
			return echo.NewHTTPError(http.StatusConflict, illegal.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
