package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Recorder receives operational counters from the service.
type Recorder interface {
	RecordOperation(op string, err error)
	ObserveGateway(op string, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, error)                {}
func (nopRecorder) ObserveGateway(string, time.Duration, error) {}

// Problem is a stored record that no longer passes validation.
type Problem struct {
	ID  string
	Err error
}

// Service runs every operation as load, transform in memory, and (for
// mutations) save. Nothing is cached between calls.
type Service struct {
	gw      Gateway
	log     zerolog.Logger
	metrics Recorder
	tracer  trace.Tracer
}

func NewService(gw Gateway, logger zerolog.Logger) *Service {
	return &Service{
		gw:      gw,
		log:     logger.With().Str("component", "patient").Logger(),
		metrics: nopRecorder{},
		tracer:  otel.Tracer("github.com/ehr/pms/internal/domain/patient"),
	}
}

func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.metrics = r
}

func (s *Service) Ping(ctx context.Context) error {
	return s.gw.Ping(ctx)
}

func (s *Service) List(ctx context.Context) (records []*Patient, err error) {
	ctx, end := s.start(ctx, "list", "")
	defer func() { end(err) }()

	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return List(c), nil
}

func (s *Service) Get(ctx context.Context, id string) (rec *Patient, err error) {
	ctx, end := s.start(ctx, "get", id)
	defer func() { end(err) }()

	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return Get(c, id)
}

// Sort validates field and order before touching the store.
func (s *Service) Sort(ctx context.Context, field, order string) (records []*Patient, err error) {
	ctx, end := s.start(ctx, "sort", "")
	defer func() { end(err) }()

	sf, err := ParseSortField(field)
	if err != nil {
		return nil, err
	}
	so, err := ParseSortOrder(order)
	if err != nil {
		return nil, err
	}
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return Sort(c, sf, so), nil
}

func (s *Service) Create(ctx context.Context, d Draft) (rec *Patient, err error) {
	ctx, end := s.start(ctx, "create", d.ID)
	defer func() { end(err) }()

	rec, err = d.Build()
	if err != nil {
		return nil, err
	}
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if c.Has(rec.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	c.Put(rec.ID, rec.Fields)
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}

	s.log.Info().Str("patient_id", rec.ID).Msg("patient created")
	return rec, nil
}

func (s *Service) Patch(ctx context.Context, id string, p Patch) (rec *Patient, err error) {
	ctx, end := s.start(ctx, "patch", id)
	defer func() { end(err) }()

	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, err = ApplyPatch(c, id, p)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}

	s.log.Info().Str("patient_id", id).Strs("fields", p.Touched()).Msg("patient updated")
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, end := s.start(ctx, "delete", id)
	defer func() { end(err) }()

	c, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !c.Remove(id) {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err := s.save(ctx, c); err != nil {
		return err
	}

	s.log.Info().Str("patient_id", id).Msg("patient deleted")
	return nil
}

// Verify re-validates every stored record and reports the ones that fail.
func (s *Service) Verify(ctx context.Context) (problems []Problem, total int, err error) {
	ctx, end := s.start(ctx, "verify", "")
	defer func() { end(err) }()

	c, err := s.load(ctx)
	if err != nil {
		return nil, 0, err
	}
	c.Each(func(id string, f Fields) {
		if _, err := New(id, f); err != nil {
			problems = append(problems, Problem{ID: id, Err: err})
		}
	})
	return problems, c.Len(), nil
}

func (s *Service) load(ctx context.Context) (*Collection, error) {
	start := time.Now()
	c, err := s.gw.Load(ctx)
	s.metrics.ObserveGateway("load", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Collection) error {
	start := time.Now()
	err := s.gw.Save(ctx, c)
	s.metrics.ObserveGateway("save", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

// start opens a span for op and returns a func that closes it and records
// the outcome.
func (s *Service) start(ctx context.Context, op, id string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("patient.operation", op)}
	if id != "" {
		attrs = append(attrs, attribute.String("patient.id", id))
	}
	ctx, span := s.tracer.Start(ctx, "patient."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		s.metrics.RecordOperation(op, err)
		if err != nil && !isClientError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error().Err(err).Str("operation", op).Msg("patient operation failed")
		}
		span.End()
	}
}

// isClientError reports whether err is caused by the request rather than the
// store.
func isClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidArgument)
}
