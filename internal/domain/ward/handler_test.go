package ward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo, *mockSource) {
	svc, src := newTestService()
	return NewHandler(svc), echo.New(), src
}

func TestHandler_ListBeds(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?status=occupied", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListBeds(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data  []Bed `json:"data"`
		Total int   `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Data[0].ID != "g1" || body.Data[0].Occupancy != Occupied {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandler_ListBeds_BadStatus(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?status=dirty", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ListBeds(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetBed_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.GetBed(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_CreateBed(t *testing.T) {
	h, e, src := newTestHandler()
	body := `{"name":"G-103","department_id":"k1","category":"vip","price_per_day":900000}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateBed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if _, ok := src.beds["new-G-103"]; !ok {
		t.Error("expected bed created at source")
	}
}

func TestHandler_CreateBed_BadRequest(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"department_id":"k1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateBed(c); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestHandler_DeleteBed_Occupied(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("g1")

	err := h.DeleteBed(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_GetOccupancy(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetOccupancy(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body occupancyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Totals.Total != 2 || body.Totals.OccupiedPct != 50 {
		t.Errorf("unexpected totals %+v", body.Totals)
	}
	if body.Warnings == nil {
		t.Error("warnings should encode as an empty list")
	}
}

func TestHandler_GetOccupancy_RefreshBuildsOnce(t *testing.T) {
	h, e, src := newTestHandler()
	if _, err := h.svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?refresh=true", nil)
	rec := httptest.NewRecorder()
	if err := h.GetOccupancy(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.listCalls != 2 {
		t.Errorf("expected one rebuild for refresh, got %d fetches", src.listCalls)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	if err := h.GetOccupancy(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.listCalls != 2 {
		t.Errorf("expected cached snapshot without refresh, got %d fetches", src.listCalls)
	}
}

func TestHandler_UpdateBed_KeepsOccupancy(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"G-101A","department_id":"k1","occupancy":"available"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("g1")

	if err := h.UpdateBed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var b Bed
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Occupancy != Occupied || b.Name != "G-101A" {
		t.Errorf("unexpected bed %+v", b)
	}
}

func TestHandler_ListDepartments(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListDepartments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"occupied_beds":1`) {
		t.Errorf("expected live counts, got %s", rec.Body.String())
	}
}

func TestHandler_ListInpatients(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?department_id=k1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListInpatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one inpatient, got %s", rec.Body.String())
	}
}
