package admission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hospital/inpatient/internal/domain/billing"
)

func newTestHandler() (*Handler, *echo.Echo, *mockGateway) {
	svc, _, gw, _ := newTestService()
	return NewHandler(svc), echo.New(), gw
}

func postJSON(e *echo.Echo, body string, id string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c, rec
}

func TestHandler_Admit(t *testing.T) {
	h, e, _ := newTestHandler()
	c, rec := postJSON(e, `{"patient_id":"p1","bed_id":"g1","reason":"fever"}`, "")

	if err := h.Admit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var stay Stay
	if err := json.Unmarshal(rec.Body.Bytes(), &stay); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stay.State != StateAdmitted || stay.DepartmentID != "k1" {
		t.Errorf("unexpected stay %+v", stay)
	}
}

func TestHandler_Admit_Conflict(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := postJSON(e, `{"patient_id":"p1","bed_id":"g1"}`, "")
	h.Admit(c)

	c, _ = postJSON(e, `{"patient_id":"p2","bed_id":"g1"}`, "")
	err := h.Admit(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	if body := he.Message.(map[string]string); body["kind"] != "conflict" {
		t.Errorf("expected conflict kind, got %v", body)
	}
}

func TestHandler_Admit_BadRequest(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := postJSON(e, `{"bed_id":"g1"}`, "")

	err := h.Admit(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_DischargeFlow(t *testing.T) {
	h, e, gw := newTestHandler()
	c, rec := postJSON(e, `{"patient_id":"p1","bed_id":"g1"}`, "")
	if err := h.Admit(c); err != nil {
		t.Fatalf("admit: %v", err)
	}
	var stay Stay
	json.Unmarshal(rec.Body.Bytes(), &stay)
	gw.previews[stay.AdmissionID] = &billing.Preview{BedPrice: 500000, NightsStayed: 3, CoverageRate: 0.8}

	c, rec = postJSON(e, ``, stay.AdmissionID)
	if err := h.InitiateDischarge(c); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"patient_owed":300000`) {
		t.Errorf("expected bill in response, got %s", rec.Body.String())
	}

	c, _ = postJSON(e, ``, stay.AdmissionID)
	if err := h.Pay(c); err != nil {
		t.Fatalf("pay: %v", err)
	}

	c, rec = postJSON(e, `{"diagnosis":"recovered","doctor_advice":"rest"}`, stay.AdmissionID)
	if err := h.ConfirmDischarge(c); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"state":"discharged"`) {
		t.Errorf("expected discharged state, got %s", rec.Body.String())
	}
}

func TestHandler_AbortDischarge_InvalidState(t *testing.T) {
	h, e, _ := newTestHandler()
	c, rec := postJSON(e, `{"patient_id":"p1","bed_id":"g1"}`, "")
	h.Admit(c)
	var stay Stay
	json.Unmarshal(rec.Body.Bytes(), &stay)

	c, _ = postJSON(e, ``, stay.AdmissionID)
	err := h.AbortDischarge(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_GetStay_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.GetStay(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_ListStays(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := postJSON(e, `{"patient_id":"p1","bed_id":"g1"}`, "")
	h.Admit(c)

	req := httptest.NewRequest(http.MethodGet, "/?state=admitted", nil)
	rec := httptest.NewRecorder()
	if err := h.ListStays(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one admitted stay, got %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/?state=bogus", nil)
	err := h.ListStays(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad state, got %v", err)
	}
}
