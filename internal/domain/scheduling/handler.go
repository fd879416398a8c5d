package scheduling

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/booking/internal/platform/fhir"
	"github.com/medbook/booking/internal/platform/validate"
	"github.com/medbook/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PATCH("/appointments/:id/status", h.UpdateStatus)
	api.PUT("/appointments/:id/schedule", h.Reschedule)
	api.POST("/appointments/conflicts", h.CheckConflict)
	api.GET("/doctors/:id/appointments", h.ListDoctorAppointments)
	api.GET("/appointment-statuses", h.ListStatuses)
	api.GET("/appointment-statuses/:slug/transitions", h.ListTransitions)

	fhirGroup.GET("/Appointment/:id", h.GetAppointmentFHIR)
}

// ConflictCheckRequest asks whether a doctor is free. EndTime wins over
// Duration when both are set.
type ConflictCheckRequest struct {
	DoctorID             uuid.UUID  `json:"doctor_id" validate:"required"`
	StartTime            time.Time  `json:"start_time" validate:"required"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Duration             *int       `json:"duration,omitempty"`
	ExcludeAppointmentID *uuid.UUID `json:"exclude_appointment_id,omitempty"`
}

type TransitionsResponse struct {
	Status  string   `json:"status"`
	IsFinal bool     `json:"is_final"`
	Allowed []Status `json:"allowed"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateAppointmentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req StatusUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), id, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CheckConflict(c echo.Context) error {
	var req ConflictCheckRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	end := req.StartTime.Add(time.Duration(NormalizeDuration(req.Duration)) * time.Minute)
	if req.EndTime != nil {
		end = *req.EndTime
	}
	result, err := h.svc.CheckConflict(c.Request().Context(), req.DoctorID, req.StartTime, end, req.ExcludeAppointmentID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListDoctorAppointments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) ListStatuses(c echo.Context) error {
	items, err := h.svc.ListStatuses(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListTransitions(c echo.Context) error {
	st, allowed, err := h.svc.AllowedTransitions(c.Param("slug"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, TransitionsResponse{
		Status:  string(st),
		IsFinal: st.IsTerminal(),
		Allowed: allowed,
	})
}

func (h *Handler) GetAppointmentFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, fhir.NotFoundOutcome("Appointment", c.Param("id")))
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a.ToFHIR())
}

// -- helpers --

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome(name, "invalid "+name))
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome("", "malformed request body")).SetInternal(err)
	}
	if err := c.Validate(req); err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome(verr.Field, verr.Error()))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fhir.ErrorOutcome("request validation unavailable")).SetInternal(err)
	}
	return nil
}

// toHTTPError maps domain errors to status codes with an OperationOutcome
// body. Deadline errors pass through for the timeout middleware.
func toHTTPError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		ve  *ValidationError
		nfe *NotFoundError
		ce  *ConflictError
		te  *InvalidTransitionError
		cfg *ConfigurationError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome(ve.Field, ve.Error())).SetInternal(err)
	case errors.As(err, &nfe):
		return echo.NewHTTPError(http.StatusNotFound, fhir.NotFoundOutcome(nfe.Resource, nfe.ID)).SetInternal(err)
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, fhir.ConflictOutcome(ce.Error())).SetInternal(err)
	case errors.As(err, &te):
		return echo.NewHTTPError(http.StatusConflict, fhir.BusinessRuleOutcome(te.Error())).SetInternal(err)
	case errors.Is(err, ErrStaleAppointment):
		return echo.NewHTTPError(http.StatusConflict, fhir.ConflictOutcome(err.Error())).SetInternal(err)
	case errors.Is(err, ErrScheduleBusy):
		return echo.NewHTTPError(http.StatusServiceUnavailable, fhir.TransientOutcome(ErrScheduleBusy.Error())).SetInternal(err)
	case errors.As(err, &cfg):
		return echo.NewHTTPError(http.StatusInternalServerError, fhir.ErrorOutcome("scheduling service is misconfigured")).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, fhir.ErrorOutcome("internal server error")).SetInternal(err)
	}
}
