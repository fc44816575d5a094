// Package products is the product lifecycle controller. Legal moves:
//
//	submit:   draft, rejected -> pending
//	decide:   pending -> approved | rejected
//	archive:  approved -> archived
//	resubmit: archived -> pending
package products

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/access"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/idgen"
)

const idPrefix = "prd_"

var tracer = otel.Tracer("github.com/ariefcatur/go-tour-booking/internal/products")

type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

type CreateInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	PosterURL   string          `json:"poster_url"`
	BasePrice   decimal.Decimal `json:"base_price"`
	// Submit creates the product directly in pending.
	Submit bool `json:"submit"`
}

// Patch carries optional field edits; nil fields are left unchanged.
type Patch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	PosterURL   *string          `json:"poster_url"`
	BasePrice   *decimal.Decimal `json:"base_price"`
}

type Numberer interface {
	Generate(ctx context.Context, kind idgen.Kind) (string, error)
	Attempts() int
}

type Service struct {
	repo    booking.ProductRepo
	numbers Numberer
	events  booking.EventPublisher
	log     *zap.Logger
	clock   func() time.Time
	newID   func() string
}

func NewService(repo booking.ProductRepo, numbers Numberer, events booking.EventPublisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		numbers: numbers,
		events:  events,
		log:     log.Named("products"),
		clock:   time.Now,
		newID:   func() string { return idPrefix + ulid.Make().String() },
	}
}

func (s *Service) Create(ctx context.Context, actor booking.Actor, in CreateInput) (*booking.Product, error) {
	if err := access.Authorize(actor, access.ProductCreate, access.Resource{MerchantID: actor.ID}); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", booking.ErrInvalid)
	}
	if err := checkPrice(in.BasePrice); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	status := booking.ProductDraft
	if in.Submit {
		status = booking.ProductPending
	}
	p := &booking.Product{
		ID:          s.newID(),
		MerchantID:  actor.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		PosterURL:   strings.TrimSpace(in.PosterURL),
		BasePrice:   in.BasePrice,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// the number is assigned once, on the first insert that succeeds
	for attempt := 0; ; attempt++ {
		number, err := s.numbers.Generate(ctx, idgen.KindProduct)
		if err != nil {
			return nil, fmt.Errorf("product number: %w", err)
		}
		p.Number = number
		err = s.repo.Create(ctx, p)
		if err == nil {
			break
		}
		if !errors.Is(err, booking.ErrDuplicateNumber) {
			return nil, fmt.Errorf("create product: %w", err)
		}
		if attempt+1 >= s.numbers.Attempts() {
			return nil, fmt.Errorf("%w: product number kept colliding", booking.ErrExhaustedRetries)
		}
	}

	s.log.Info("product created",
		zap.String("product_id", p.ID),
		zap.String("number", p.Number),
		zap.String("merchant_id", p.MerchantID),
		zap.String("status", string(p.Status)),
	)
	s.publish(ctx, booking.ProductStatusChangedPayload{
		ProductID: p.ID,
		Number:    p.Number,
		To:        p.Status,
		ActorID:   actor.ID,
	})
	return p, nil
}

// Get returns the product when the actor may see it, booking.ErrNotFound otherwise.
func (s *Service) Get(ctx context.Context, actor booking.Actor, id string) (*booking.Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanSeeProduct(actor, p) {
		return nil, fmt.Errorf("%w: product %s", booking.ErrNotFound, id)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, actor booking.Actor, status booking.ProductStatus) ([]*booking.Product, error) {
	scope, err := access.ProductScope(actor)
	if err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", booking.ErrInvalid, status)
	}
	return s.repo.List(ctx, booking.ProductFilter{Scope: scope, Status: status})
}

// Edit changes title, description, poster or base price. Only draft,
// rejected and archived products are editable; an approved product must be
// archived first.
func (s *Service) Edit(ctx context.Context, actor booking.Actor, id string, patch Patch) (*booking.Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if err = access.Authorize(actor, access.ProductEdit, access.Resource{MerchantID: p.MerchantID}); err != nil {
		return nil, err
	}
	if !p.Status.Editable() {
		return nil, fmt.Errorf("%w: %s product cannot be edited", booking.ErrIllegalTransition, p.Status)
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", booking.ErrInvalid)
		}
		p.Title = title
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.PosterURL != nil {
		p.PosterURL = strings.TrimSpace(*patch.PosterURL)
	}
	if patch.BasePrice != nil {
		if err = checkPrice(*patch.BasePrice); err != nil {
			return nil, err
		}
		p.BasePrice = *patch.BasePrice
	}
	p.UpdatedAt = s.clock().UTC()

	if err = s.repo.UpdateDetails(ctx, p); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// Delete removes a product that is not approved.
func (s *Service) Delete(ctx context.Context, actor booking.Actor, id string) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if err = access.Authorize(actor, access.ProductDelete, access.Resource{MerchantID: p.MerchantID}); err != nil {
		return err
	}
	if p.Status == booking.ProductApproved {
		return fmt.Errorf("%w: approved product must be archived before deletion", booking.ErrIllegalTransition)
	}
	if err = s.repo.Delete(ctx, id, p.Status); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.log.Info("product deleted", zap.String("product_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// Submit sends a draft or rejected product to review.
func (s *Service) Submit(ctx context.Context, actor booking.Actor, id string) (*booking.Product, error) {
	return s.transition(ctx, actor, id, access.ProductSubmit, booking.ProductPending, "",
		booking.ProductDraft, booking.ProductRejected)
}

// Decide approves or rejects a pending product; a rejection needs a reason.
func (s *Service) Decide(ctx context.Context, actor booking.Actor, id string, outcome Outcome, reason string) (*booking.Product, error) {
	reason = strings.TrimSpace(reason)
	switch outcome {
	case OutcomeApprove:
		return s.transition(ctx, actor, id, access.ProductDecide, booking.ProductApproved, "", booking.ProductPending)
	case OutcomeReject:
		if reason == "" {
			return nil, fmt.Errorf("%w: reason is required to reject", booking.ErrInvalid)
		}
		return s.transition(ctx, actor, id, access.ProductDecide, booking.ProductRejected, reason, booking.ProductPending)
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", booking.ErrInvalid, outcome)
	}
}

// Archive takes an approved product off sale.
func (s *Service) Archive(ctx context.Context, actor booking.Actor, id string) (*booking.Product, error) {
	return s.transition(ctx, actor, id, access.ProductArchive, booking.ProductArchived, "", booking.ProductApproved)
}

// Resubmit sends an archived product back to review.
func (s *Service) Resubmit(ctx context.Context, actor booking.Actor, id string) (*booking.Product, error) {
	return s.transition(ctx, actor, id, access.ProductResubmit, booking.ProductPending, "", booking.ProductArchived)
}

func (s *Service) transition(
	ctx context.Context,
	actor booking.Actor,
	id string,
	action access.Action,
	to booking.ProductStatus,
	reason string,
	from ...booking.ProductStatus,
) (_ *booking.Product, err error) {
	ctx, span := tracer.Start(ctx, string(action))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("product.id", id), attribute.String("actor.role", string(actor.Role)))

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if err = access.Authorize(actor, action, access.Resource{MerchantID: p.MerchantID}); err != nil {
		return nil, err
	}
	if !slices.Contains(from, p.Status) || !p.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s cannot move product from %s to %s", booking.ErrIllegalTransition, action, p.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, booking.StatusChange[booking.ProductStatus]{
		ID:     id,
		From:   p.Status,
		To:     to,
		Reason: reason,
		At:     s.clock().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("update product status: %w", err)
	}

	s.log.Info("product status changed",
		zap.String("product_id", id),
		zap.String("from", string(p.Status)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID),
	)
	s.publish(ctx, booking.ProductStatusChangedPayload{
		ProductID: id,
		Number:    updated.Number,
		From:      p.Status,
		To:        to,
		Reason:    reason,
		ActorID:   actor.ID,
	})
	return updated, nil
}

func (s *Service) publish(ctx context.Context, payload booking.ProductStatusChangedPayload) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, booking.Event{
		Type:        booking.EventProductStatusChanged,
		Aggregate:   booking.AggregateProduct,
		AggregateID: payload.ProductID,
		OccurredAt:  s.clock().UTC(),
		Payload:     payload,
	})
	if err != nil {
		s.log.Warn("publish product event failed", zap.String("product_id", payload.ProductID), zap.Error(err))
	}
}

func checkPrice(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: base_price must be >= 0", booking.ErrInvalid)
	}
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("%w: base_price has more than two decimals", booking.ErrInvalid)
	}
	return nil
}
