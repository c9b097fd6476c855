package billing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo, *mockInvoices) {
	svc, m := newTestService()
	return NewHandler(svc), echo.New(), m
}

func TestHandler_ListInvoices(t *testing.T) {
	h, e, m := newTestHandler()
	m.invoices["hd1"] = &Invoice{ID: "hd1", AdmissionID: "a1", PatientID: "p1", Status: Paid}
	m.invoices["hd2"] = &Invoice{ID: "hd2", AdmissionID: "a2", PatientID: "p2"}

	req := httptest.NewRequest(http.MethodGet, "/?patient_id=p1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListInvoices(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"hd1"`) || strings.Contains(rec.Body.String(), `"hd2"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"paid"`) {
		t.Errorf("expected status encoded as text, got %s", rec.Body.String())
	}
}

func TestHandler_GetInvoice_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.GetInvoice(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
