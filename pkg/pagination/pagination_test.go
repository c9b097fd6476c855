package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor("limit=5&offset=10")
	if p.Limit != 5 || p.Offset != 10 {
		t.Errorf("expected 5/10, got %+v", p)
	}
}

func TestFromContext_PageNumber(t *testing.T) {
	p := paramsFor("page=3&page_size=10")
	if p.Limit != 10 || p.Offset != 20 {
		t.Errorf("expected 10/20, got %+v", p)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := paramsFor("limit=1000")
	if p.Limit != MaxLimit {
		t.Errorf("expected %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := paramsFor("offset=-4")
	if p.Offset != 0 {
		t.Errorf("expected 0, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 25, 20, 0)
	if !r.HasMore {
		t.Error("expected has_more for first page of 25")
	}
	r = NewResponse([]string{"a"}, 25, 20, 20)
	if r.HasMore {
		t.Error("expected no more on last page")
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	if got := Page(items, Params{Limit: 2, Offset: 0}); len(got) != 2 || got[0] != 1 {
		t.Errorf("first page: %v", got)
	}
	if got := Page(items, Params{Limit: 2, Offset: 4}); len(got) != 1 || got[0] != 5 {
		t.Errorf("last page: %v", got)
	}
	if got := Page(items, Params{Limit: 2, Offset: 9}); got == nil || len(got) != 0 {
		t.Errorf("past end should be empty non-nil, got %#v", got)
	}
}

func TestParams_HasNextPrevious(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	if !p.HasNext(25) || p.HasNext(20) {
		t.Error("HasNext mismatch")
	}
	if !p.HasPrevious() || (Params{Limit: 10}).HasPrevious() {
		t.Error("HasPrevious mismatch")
	}
}
