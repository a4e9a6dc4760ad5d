package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the original flat routes on root and the resource
// style routes on api.
func (h *Handler) RegisterRoutes(root *echo.Echo, api *echo.Group) {
	root.GET("/", h.Home)
	root.GET("/about", h.About)
	root.GET("/view", h.View)
	root.GET("/patient/:id", h.GetPatient)
	root.GET("/sort", h.SortPatients)
	root.POST("/create", h.CreatePatientMessage)
	root.PUT("/edit/:id", h.UpdatePatientMessage)
	root.DELETE("/delete/:id", h.DeletePatientMessage)

	api.GET("/patients", h.ListPatients)
	api.GET("/patients/sort", h.SortPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.POST("/patients", h.CreatePatient)
	api.PATCH("/patients/:id", h.UpdatePatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
}

type messageResponse struct {
	Message string `json:"message"`
}

type validationResponse struct {
	Message    string      `json:"message"`
	Violations []Violation `json:"violations"`
}

func (h *Handler) Home(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "Patient Management System API"})
}

func (h *Handler) About(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "A fully functional API to manage your patients data"})
}

// View returns the whole collection as an object keyed by id.
func (h *Handler) View(c echo.Context) error {
	records, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, recordSet(records))
}

func (h *Handler) ListPatients(c echo.Context) error {
	records, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetPatient(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) SortPatients(c echo.Context) error {
	records, err := h.svc.Sort(c.Request().Context(), c.QueryParam("sort_by"), c.QueryParam("order"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	rec, err := h.create(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/patients/"+rec.ID)
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) CreatePatientMessage(c echo.Context) error {
	if _, err := h.create(c); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: "patient created successfully"})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	rec, err := h.update(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdatePatientMessage(c echo.Context) error {
	if _, err := h.update(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Patient updated successfully"})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeletePatientMessage(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Patient deleted successfully"})
}

func (h *Handler) create(c echo.Context) (*Patient, error) {
	body, err := readBody(c)
	if err != nil {
		return nil, err
	}
	d, ignored, err := DecodeDraft(body)
	if err != nil {
		return nil, httpError(err)
	}
	logIgnored(c, ignored)
	rec, err := h.svc.Create(c.Request().Context(), d)
	if err != nil {
		return nil, httpError(err)
	}
	return rec, nil
}

func (h *Handler) update(c echo.Context) (*Patient, error) {
	body, err := readBody(c)
	if err != nil {
		return nil, err
	}
	p, ignored, err := DecodePatch(body)
	if err != nil {
		return nil, httpError(err)
	}
	logIgnored(c, ignored)
	rec, err := h.svc.Patch(c.Request().Context(), c.Param("id"), p)
	if err != nil {
		return nil, httpError(err)
	}
	return rec, nil
}

// readBody keeps HTTP errors raised while reading, such as the 413 from the
// body limit middleware.
func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read request body").SetInternal(err)
	}
	return body, nil
}

func logIgnored(c echo.Context, ignored []string) {
	if len(ignored) == 0 {
		return
	}
	zerolog.Ctx(c.Request().Context()).Debug().
		Str("path", c.Path()).
		Strs("ignored_fields", ignored).
		Msg("dropped fields outside the patient schema")
}

// httpError maps domain errors to HTTP errors.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, validationResponse{
			Message:    "validation failed",
			Violations: ve.Violations,
		})
	case errors.Is(err, ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrDuplicateID):
		return echo.NewHTTPError(http.StatusBadRequest, "Patient already exists")
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

// recordSet renders records as one JSON object keyed by id, keeping order.
type recordSet []*Patient

func (rs recordSet) MarshalJSON() ([]byte, error) {
	type body struct {
		Fields
		Derived
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(body{Fields: p.Fields, Derived: p.Derived})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
