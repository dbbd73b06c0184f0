package consultation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsura/portal-api/internal/platform/auth"
	"github.com/clinsura/portal-api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Clinic-side endpoints
	clinic := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSecretary))
	clinic.POST("/consultations/draft", h.CreateDraft)
	clinic.GET("/consultations", h.ListConsultations)
	clinic.GET("/consultations/:id", h.GetConsultation)
	clinic.GET("/consultations/:id/status-history", h.GetStatusHistory)
	clinic.PUT("/consultations/:id", h.SaveClinical)
	clinic.POST("/consultations/:id/submit", h.Submit)
	clinic.POST("/consultations/:id/relaunch", h.Relaunch)

	// Insurer-side HTTP fallback for the queue events
	insurer := api.Group("", auth.RequireRole(auth.RoleInsurer))
	insurer.POST("/consultations/:id/decision", h.ApplyDecision)
	insurer.POST("/consultations/:id/payment", h.ApplyPayment)
}

// OwnerFromRequest builds the owner context from the JWT claims, falling back
// to explicit request parameters for dev tokens that carry no UUIDs.
func OwnerFromRequest(c echo.Context) (OwnerContext, error) {
	ctx := c.Request().Context()
	var owner OwnerContext

	if id, err := uuid.Parse(auth.ClinicIDFromContext(ctx)); err == nil {
		owner.ClinicID = id
	} else if id, err := uuid.Parse(c.QueryParam("clinic_id")); err == nil {
		owner.ClinicID = id
	}
	if id, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		owner.DoctorID = id
	} else if id, err := uuid.Parse(c.QueryParam("operator_id")); err == nil {
		owner.DoctorID = id
	}

	if owner.ClinicID == uuid.Nil || owner.DoctorID == uuid.Nil {
		return owner, echo.NewHTTPError(http.StatusBadRequest, "clinic and operator identity required")
	}
	return owner, nil
}

// toHTTPError maps domain errors onto status codes: validation failures are
// 422, lifecycle conflicts 409.
func toHTTPError(err error) error {
	var illegal *IllegalTransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "consultation not found")
	case errors.Is(err, ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.As(err, &illegal):
		return echo.NewHTTPError(http.StatusConflict, illegal.Error())
	case errors.Is(err, ErrIncompleteConsultation),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrMissingClinicalContent):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrDraftCreationFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) CreateDraft(c echo.Context) error {
	owner, err := OwnerFromRequest(c)
	if err != nil {
		return err
	}

	var body struct {
		ConsultationID *uuid.UUID `json:"consultation_id,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cons, err := h.svc.EnsureDraft(c.Request().Context(), owner, body.ConsultationID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, cons)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetDetail(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	pg := pagination.FromContext(c)

	var filter ListFilter
	if v := c.QueryParam("clinic_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
		}
		filter.ClinicID = id
	}
	if v := c.QueryParam("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		filter.DoctorID = id
	}
	if v := c.QueryParam("status"); v != "" {
		status, ok := ParseStatus(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		filter.Status = status
	}

	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SaveClinical(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	owner, err := OwnerFromRequest(c)
	if err != nil {
		return err
	}
	var upd ClinicalUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cons, err := h.svc.SaveClinical(c.Request().Context(), id, owner, upd)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	owner, err := OwnerFromRequest(c)
	if err != nil {
		return err
	}

	cons, err := h.svc.Submit(c.Request().Context(), id, owner)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Relaunch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	owner, err := OwnerFromRequest(c)
	if err != nil {
		return err
	}

	cons, err := h.svc.Relaunch(c.Request().Context(), id, owner)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) GetStatusHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	history, err := h.svc.GetStatusHistory(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) ApplyDecision(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Accepted      bool   `json:"accepted"`
		InsurerAmount *int64 `json:"insurer_amount,omitempty"`
		PatientAmount *int64 `json:"patient_amount,omitempty"`
		Reason        string `json:"reason,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.svc.ApplyInsurerDecision(c.Request().Context(), id, body.Accepted, body.InsurerAmount, body.PatientAmount, body.Reason); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ApplyPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		PaidAmount int64  `json:"paid_amount"`
		Reference  string `json:"reference,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.svc.ApplyPayment(c.Request().Context(), id, body.PaidAmount, body.Reference); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
