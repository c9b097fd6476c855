package ward

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
	read.GET("/beds", h.ListBeds)
	read.GET("/beds/:id", h.GetBed)
	read.GET("/occupancy", h.GetOccupancy)
	read.GET("/departments", h.ListDepartments)
	read.GET("/departments/:id", h.GetDepartment)
	read.GET("/inpatients", h.ListInpatients)

	write := api.Group("", auth.RequireRole(auth.RoleNurse))
	write.POST("/beds", h.CreateBed)
	write.PUT("/beds/:id", h.UpdateBed)
	write.DELETE("/beds/:id", h.DeleteBed)
}

// -- Bed Handlers --

func (h *Handler) ListBeds(c echo.Context) error {
	pg := pagination.FromContext(c)
	beds, err := h.svc.ListBeds(c.Request().Context(), BedFilter{
		Query:        c.QueryParam("q"),
		DepartmentID: c.QueryParam("department_id"),
		Status:       c.QueryParam("status"),
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(beds, pg), len(beds), pg.Limit, pg.Offset))
}

func (h *Handler) GetBed(c echo.Context) error {
	b, err := h.svc.GetBed(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CreateBed(c echo.Context) error {
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBed(c.Request().Context(), &b); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) UpdateBed(c echo.Context) error {
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.ID = c.Param("id")
	if err := h.svc.UpdateBed(c.Request().Context(), &b); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBed(c echo.Context) error {
	if err := h.svc.DeleteBed(c.Request().Context(), c.Param("id")); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Occupancy --

type occupancyResponse struct {
	Stats       []DepartmentStats `json:"stats"`
	Totals      DepartmentStats   `json:"totals"`
	Warnings    []Warning         `json:"warnings"`
	GeneratedAt string            `json:"generated_at"`
}

func (h *Handler) GetOccupancy(c echo.Context) error {
	ctx := c.Request().Context()
	load := h.svc.Snapshot
	if c.QueryParam("refresh") == "true" {
		load = h.svc.Refresh
	}
	snap, err := load(ctx)
	if err != nil {
		return apperr.HTTPError(err)
	}
	warnings := snap.Warnings
	if warnings == nil {
		warnings = []Warning{}
	}
	return c.JSON(http.StatusOK, occupancyResponse{
		Stats:       snap.Stats,
		Totals:      Totals(snap.Stats),
		Warnings:    warnings,
		GeneratedAt: snap.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// -- Departments --

func (h *Handler) ListDepartments(c echo.Context) error {
	depts, err := h.svc.Departments(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, depts)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	d, err := h.svc.Department(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// -- Inpatients --

func (h *Handler) ListInpatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.Inpatients(c.Request().Context(), AdmissionQuery{
		PatientID:    c.QueryParam("patient_id"),
		DepartmentID: c.QueryParam("department_id"),
		Query:        c.QueryParam("q"),
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}
