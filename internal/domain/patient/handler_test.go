package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	svc, _ := newTestService()
	seedService(t, svc)
	return NewHandler(svc), echo.New()
}

func newRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_HomeAndAbout(t *testing.T) {
	h, e := newTestHandler(t)

	c, rec := newRequest(e, http.MethodGet, "/", "")
	if err := h.Home(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Patient Management System API") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	c, rec = newRequest(e, http.MethodGet, "/about", "")
	if err := h.About(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_View(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := newRequest(e, http.MethodGet, "/view", "")

	if err := h.View(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, `{"P001":{"name":"Ananya Verma"`) {
		t.Errorf("expected object keyed by id in collection order, got %s", body)
	}
	var view map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view) != 3 || view["P001"]["verdict"] != VerdictObese {
		t.Errorf("unexpected view: %v", view)
	}
	if _, ok := view["P001"]["id"]; ok {
		t.Error("id is the key and must not be repeated inside the record")
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("P003")

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != "P003" || p.BMI != 17.58 || p.Verdict != VerdictUnderweight {
		t.Errorf("unexpected record: %+v", p)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler(t)
	c, _ := newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("P404")

	if code := httpCode(t, h.GetPatient(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_SortPatients(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := newRequest(e, http.MethodGet, "/sort?sort_by=weight&order=desc", "")

	if err := h.SortPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var records []Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 3 || records[0].ID != "P001" || records[2].ID != "P003" {
		t.Errorf("unexpected order: %+v", records)
	}
}

func TestHandler_SortPatients_InvalidField(t *testing.T) {
	h, e := newTestHandler(t)
	c, _ := newRequest(e, http.MethodGet, "/sort?sort_by=color", "")

	if code := httpCode(t, h.SortPatients(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler(t)
	body := `{"id":"P010","name":"Kabir","city":"Delhi","age":45,"gender":"male","height":1.78,"weight":82,"verdict":"Obese"}`
	c, rec := newRequest(e, http.MethodPost, "/api/v1/patients", body)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/api/v1/patients/P010" {
		t.Errorf("unexpected Location: %s", loc)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Verdict != VerdictNormal {
		t.Errorf("client supplied verdict must be ignored, got %s", p.Verdict)
	}
}

func TestHandler_CreatePatientMessage(t *testing.T) {
	h, e := newTestHandler(t)
	body := `{"id":"P010","name":"Kabir","city":"Delhi","age":45,"gender":"male","height":1.78,"weight":82}`
	c, rec := newRequest(e, http.MethodPost, "/create", body)

	if err := h.CreatePatientMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "patient created successfully") {
		t.Errorf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_CreatePatient_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate", `{"id":"P001","name":"X","city":"Y","age":30,"gender":"male","height":1.7,"weight":70}`, http.StatusBadRequest},
		{"missing fields", `{"id":"P010"}`, http.StatusUnprocessableEntity},
		{"invalid gender", `{"id":"P010","name":"X","city":"Y","age":30,"gender":"M","height":1.7,"weight":70}`, http.StatusUnprocessableEntity},
		{"not json", `hello`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, e := newTestHandler(t)
			c, _ := newRequest(e, http.MethodPost, "/create", tt.body)
			if code := httpCode(t, h.CreatePatientMessage(c)); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestHandler_ValidationBody(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := newRequest(e, http.MethodPost, "/create", `{"id":"P010","name":"X","city":"Y","age":300,"gender":"male","height":1.7,"weight":70}`)

	err := h.CreatePatientMessage(c)
	e.DefaultHTTPErrorHandler(err, c)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body struct {
		Message    string      `json:"message"`
		Violations []Violation `json:"violations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Violations) != 1 || body.Violations[0].Field != "age" {
		t.Errorf("unexpected violations: %+v", body.Violations)
	}
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := newRequest(e, http.MethodPut, "/", `{"id":"P999","weight":60}`)
	c.SetParamNames("id")
	c.SetParamValues("P001")

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.ID != "P001" || p.Weight != 60 {
		t.Errorf("expected id to stay P001 with new weight, got %+v", p)
	}
}

func TestHandler_UpdatePatient_Errors(t *testing.T) {
	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"not found", "P404", `{"age":30}`, http.StatusNotFound},
		{"null field", "P001", `{"city":null}`, http.StatusUnprocessableEntity},
		{"invalid value", "P001", `{"height":0}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, e := newTestHandler(t)
			c, _ := newRequest(e, http.MethodPut, "/", tt.body)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			if code := httpCode(t, h.UpdatePatientMessage(c)); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := newRequest(e, http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("P002")

	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c, _ = newRequest(e, http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("P002")
	if code := httpCode(t, h.DeletePatientMessage(c)); code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler(t)
	h.RegisterRoutes(e, e.Group("/api/v1"))

	want := map[string]bool{
		"GET /":                       false,
		"GET /view":                   false,
		"GET /patient/:id":            false,
		"GET /sort":                   false,
		"POST /create":                false,
		"PUT /edit/:id":               false,
		"DELETE /delete/:id":          false,
		"GET /api/v1/patients":        false,
		"PATCH /api/v1/patients/:id":  false,
		"DELETE /api/v1/patients/:id": false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

type failingBody struct{ err error }

func (b failingBody) Read([]byte) (int, error) { return 0, b.err }
func (b failingBody) Close() error             { return nil }

func TestHandler_BodyReadErrors(t *testing.T) {
	tooLarge := echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body exceeds maximum allowed size of 1024 bytes")
	tests := []struct {
		name    string
		readErr error
		want    int
	}{
		{"limit exceeded keeps 413", tooLarge, http.StatusRequestEntityTooLarge},
		{"wrapped limit error keeps 413", fmt.Errorf("read: %w", tooLarge), http.StatusRequestEntityTooLarge},
		{"broken connection is 400", errors.New("unexpected EOF"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, e := newTestHandler(t)

			c, _ := newRequest(e, http.MethodPost, "/create", "")
			c.Request().Body = failingBody{err: tt.readErr}
			if code := httpCode(t, h.CreatePatientMessage(c)); code != tt.want {
				t.Errorf("create: expected %d, got %d", tt.want, code)
			}

			c, _ = newRequest(e, http.MethodPut, "/edit/P001", "")
			c.SetParamNames("id")
			c.SetParamValues("P001")
			c.Request().Body = failingBody{err: tt.readErr}
			if code := httpCode(t, h.UpdatePatientMessage(c)); code != tt.want {
				t.Errorf("update: expected %d, got %d", tt.want, code)
			}
		})
	}
}
