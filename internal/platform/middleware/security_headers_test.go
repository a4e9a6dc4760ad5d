package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func securedEcho() *echo.Echo {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/patient/:id", func(c echo.Context) error {
		if c.Param("id") != "P001" {
			return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
		}
		return c.JSON(http.StatusOK, map[string]any{"id": "P001", "bmi": 33.06})
	})
	e.POST("/create", func(c echo.Context) error {
		return c.JSON(http.StatusCreated, map[string]string{"message": "patient created successfully"})
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	})
	return e
}

func TestSecurityHeaders_PatientResponsesAreNotCached(t *testing.T) {
	e := securedEcho()

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"record read", http.MethodGet, "/patient/P001", http.StatusOK},
		{"create", http.MethodPost, "/create", http.StatusCreated},
		{"not found error", http.MethodGet, "/patient/P404", http.StatusNotFound},
		{"server error", http.MethodGet, "/fail", http.StatusInternalServerError},
		{"unmatched route", http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
			if got := rec.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
				t.Errorf("Content-Security-Policy = %q", got)
			}
		})
	}
}

func TestSecurityHeaders_Values(t *testing.T) {
	rec := httptest.NewRecorder()
	securedEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patient/P001", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "0",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Referrer-Policy":           "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestSecurityHeaders_PassesThroughHandlerError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/patient/P404", nil), httptest.NewRecorder())

	err := SecurityHeaders()(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected the handler's 404 to be returned, got %v", err)
	}
}
