package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext(""))
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("got %+v, want default limit and zero offset", p)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p := FromContext(newContext("limit=99999"))
	if p.Limit != MaxLimit {
		t.Errorf("limit = %d, want %d", p.Limit, MaxLimit)
	}
}

func TestFromContext_ParsesValues(t *testing.T) {
	p := FromContext(newContext("limit=10&offset=30"))
	if p.Limit != 10 || p.Offset != 30 {
		t.Errorf("got %+v", p)
	}
}

func TestSlice_Bounds(t *testing.T) {
	cases := []struct {
		params   Params
		total    int
		from, to int
	}{
		{Params{Limit: 10, Offset: 0}, 25, 0, 10},
		{Params{Limit: 10, Offset: 20}, 25, 20, 25},
		{Params{Limit: 10, Offset: 100}, 25, 25, 25},
	}
	for _, tc := range cases {
		from, to := tc.params.Slice(tc.total)
		if from != tc.from || to != tc.to {
			t.Errorf("Slice(%d) with %+v = [%d,%d), want [%d,%d)", tc.total, tc.params, from, to, tc.from, tc.to)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	r := NewResponse(nil, 100, 10, 0)
	if !r.HasMore {
		t.Error("expected has_more for first page of 100")
	}
	r = NewResponse(nil, 100, 10, 95)
	if r.HasMore {
		t.Error("expected no more past the end")
	}
}
