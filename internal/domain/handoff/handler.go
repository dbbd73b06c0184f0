package handoff

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsura/portal-api/internal/domain/consultation"
	"github.com/clinsura/portal-api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the handoff endpoints. Starting a handoff is a
// clinic action on the authenticated group; the return navigation goes on
// the public group because the scanner resumes the browser with a bare GET
// that carries no bearer token. The consultation anchor and the stale-return
// guard bound what an unauthenticated return can change.
func (h *Handler) RegisterRoutes(api, public *echo.Group) {
	clinic := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSecretary))
	clinic.POST("/consultations/:id/handoff", h.StartHandoff)

	public.GET("/handoff/return", h.Return)
}

func (h *Handler) StartHandoff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	owner, err := consultation.OwnerFromRequest(c)
	if err != nil {
		return err
	}

	attempt, err := h.svc.StartAttempt(c.Request().Context(), owner, &id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, attempt)
}

func (h *Handler) Return(c echo.Context) error {
	outcome, err := h.svc.ApplyReturn(c.Request().Context(), c.QueryParams())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func toHTTPError(err error) error {
	var illegal *consultation.IllegalTransitionError
	switch {
	case errors.Is(err, ErrMalformedReturn), errors.Is(err, ErrStaleReturn):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidParameters):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, consultation.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "consultation not found")
	case errors.As(err, &illegal):
		return echo.NewHTTPError(http.StatusConflict, illegal.Error())
	case errors.Is(err, consultation.ErrDraftCreationFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
