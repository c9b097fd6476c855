package reporting

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospital/inpatient/internal/domain/billing"
	"github.com/hospital/inpatient/internal/platform/apperr"
	"github.com/hospital/inpatient/internal/platform/auth"
)

type Handler struct {
	occupancy OccupancySource
	invoices  InvoiceLister
	now       func() time.Time
}

func NewHandler(occupancy OccupancySource, invoices InvoiceLister) *Handler {
	return &Handler{occupancy: occupancy, invoices: invoices, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reports := api.Group("/reports")
	reports.GET("/bed-capacity", h.BedCapacity, auth.RequireRole(auth.RoleNurse, auth.RolePhysician, auth.RoleBilling))
	reports.GET("/treatment-cost", h.TreatmentCost, auth.RequireRole(auth.RoleBilling))
}

func (h *Handler) BedCapacity(c echo.Context) error {
	format, err := formatParam(c)
	if err != nil {
		return err
	}
	snap, err := h.occupancy.Snapshot(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	report := BuildBedCapacity(snap)
	if format == "xlsx" {
		return sendXLSX(c, "bed-capacity", report.GeneratedAt, report.Table())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) TreatmentCost(c echo.Context) error {
	format, err := formatParam(c)
	if err != nil {
		return err
	}
	q := billing.InvoiceQuery{
		PatientID:   c.QueryParam("patient_id"),
		AdmissionID: c.QueryParam("admission_id"),
	}
	invoices, err := h.invoices.ListInvoices(c.Request().Context(), q)
	if err != nil {
		return apperr.HTTPError(err)
	}
	report := BuildTreatmentCost(q.PatientID, invoices, h.now())
	if format == "xlsx" {
		return sendXLSX(c, "treatment-cost", report.GeneratedAt, report.Table())
	}
	return c.JSON(http.StatusOK, report)
}

func formatParam(c echo.Context) (string, error) {
	switch f := c.QueryParam("format"); f {
	case "", "json":
		return "json", nil
	case "xlsx":
		return f, nil
	default:
		return "", echo.NewHTTPError(http.StatusBadRequest,
			map[string]string{"kind": "validation", "message": "format must be json or xlsx"})
	}
}

func sendXLSX(c echo.Context, name string, at time.Time, t Table) error {
	data, err := WriteXLSX(t)
	if err != nil {
		return apperr.HTTPError(apperr.Internal("reporting."+name, err))
	}
	filename := fmt.Sprintf("%s-%s.xlsx", name, at.Format("20060102-1504"))
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+filename)
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
