package admission

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospital/inpatient/internal/platform/apperr"
	"github.com/hospital/inpatient/internal/platform/auth"
	"github.com/hospital/inpatient/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RolePhysician, auth.RoleBilling))
	read.GET("/admissions/:id/stay", h.GetStay)
	read.GET("/stays", h.ListStays)

	ward := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RolePhysician))
	ward.POST("/admissions", h.Admit)
	ward.POST("/admissions/:id/transfer", h.Transfer)

	discharge := api.Group("", auth.RequireRole(auth.RolePhysician))
	discharge.POST("/admissions/:id/discharge", h.InitiateDischarge)
	discharge.POST("/admissions/:id/discharge/confirm", h.ConfirmDischarge)
	discharge.POST("/admissions/:id/discharge/abort", h.AbortDischarge)

	pay := api.Group("", auth.RequireRole(auth.RoleBilling))
	pay.POST("/admissions/:id/discharge/pay", h.Pay)
}

func (h *Handler) GetStay(c echo.Context) error {
	stay, err := h.svc.GetStay(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stay)
}

func (h *Handler) ListStays(c echo.Context) error {
	pg := pagination.FromContext(c)
	state := State(c.QueryParam("state"))
	if state == "" {
		state = StatePendingDischarge
	}
	items, total, err := h.svc.Pending(c.Request().Context(), state, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Stay{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Admit(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stay, err := h.svc.Admit(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, stay)
}

func (h *Handler) Transfer(c echo.Context) error {
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stay, err := h.svc.Transfer(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stay)
}

func (h *Handler) InitiateDischarge(c echo.Context) error {
	stay, err := h.svc.InitiateDischarge(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stay)
}

func (h *Handler) Pay(c echo.Context) error {
	stay, err := h.svc.Pay(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stay)
}

// ConfirmDischarge stamps the discharge with the current time unless the
// request names one.
func (h *Handler) ConfirmDischarge(c echo.Context) error {
	var req DischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DischargedAt.IsZero() {
		req.DischargedAt = h.svc.now()
	}
	stay, err := h.svc.ConfirmDischarge(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stay)
}

func (h *Handler) AbortDischarge(c echo.Context) error {
	stay, err := h.svc.AbortDischarge(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stay)
}
