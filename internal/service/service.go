package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/media"
	"kasirpos/backend/internal/sequence"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	InvoiceFormat sequence.Format
	// StorageTimeout bounds every repository call made by the engines.
	StorageTimeout time.Duration
}

type Service struct {
	repo     store.Repository
	invoices *sequence.Generator
	media    media.Store
	validate *validator.Validate
	tracer   trace.Tracer
	format   sequence.Format
	timeout  time.Duration
	now      func() time.Time
}

// New wires the service. A nil generator counts invoices on the repository
// itself and a nil media store falls back to the local store.
func New(repo store.Repository, invoices *sequence.Generator, mediaStore media.Store, opts Options) *Service {
	if invoices == nil {
		invoices = sequence.NewGenerator(repo, repo)
	}
	if mediaStore == nil {
		mediaStore = media.NewLocalStore("")
	}
	if opts.InvoiceFormat.Prefix == "" && opts.InvoiceFormat.Width == 0 {
		opts.InvoiceFormat = sequence.DefaultFormat()
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	return &Service{
		repo:     repo,
		invoices: invoices,
		media:    mediaStore,
		validate: newValidator(),
		tracer:   otel.Tracer("kasirpos/service"),
		format:   opts.InvoiceFormat,
		timeout:  opts.StorageTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// requireRole returns the principal when it holds one of roles.
func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, apperror.NewUnauthorized("authentication required")
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return actor, apperror.NewForbidden(strings.Join(roles, " or ") + " role required")
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Role: "system"}
	}

	writeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	if err := s.repo.CreateAuditLog(writeCtx, domain.AuditLog{
		ID:         xid.New("audit"),
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		logger.Warn(ctx, "failed to write audit log",
			"action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

// translateStoreError converts repository errors into API errors. entity and
// id describe the record the failing call was about.
func translateStoreError(err error, entity string, id string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}

	var shortage *store.StockShortage
	var missingVariation *store.MissingVariation
	var missingProduct *store.MissingProduct
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.NewStorageTimeout(err)
	case errors.As(err, &shortage):
		label := lineLabel(shortage.ProductName, shortage.VariationLabel)
		return apperror.NewInsufficientStock(label, shortage.ProductID, shortage.VariationCombinationID,
			shortage.Requested, shortage.Available).WithCause(err)
	case errors.As(err, &missingVariation):
		name := missingVariation.ProductName
		if name == "" {
			name = missingVariation.ProductID
		}
		return apperror.NewVariationNotFound(name, missingVariation.ProductID, missingVariation.VariationCombinationID).WithCause(err)
	case errors.As(err, &missingProduct):
		return apperror.NewProductNotFound(missingProduct.ProductID).WithCause(err)
	case errors.Is(err, store.ErrConcurrentModification):
		return apperror.NewConcurrentModification(entity, id).WithCause(err)
	case errors.Is(err, store.ErrNotFound):
		return apperror.NewNotFound(entity, id).WithCause(err)
	case errors.Is(err, store.ErrDuplicate):
		return apperror.NewDuplicate(entity, "id", id).WithCause(err)
	case errors.Is(err, store.ErrInvalidTransaction):
		return apperror.NewValidation(fmt.Sprintf("invalid %s", entity)).WithCause(err)
	default:
		return apperror.NewInternal(err)
	}
}

func lineLabel(productName string, variationLabel string) string {
	if variationLabel == "" {
		return productName
	}
	return productName + " - " + variationLabel
}

func parseDay(raw string) (time.Time, time.Time, error) {
	if raw == "" {
		start := time.Now().UTC().Truncate(24 * time.Hour)
		return start, start.Add(24 * time.Hour), nil
	}
	start, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.NewValidation("date must use YYYY-MM-DD")
	}
	return start, start.Add(24 * time.Hour), nil
}
