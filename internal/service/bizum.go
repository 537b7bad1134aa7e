package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var bizumTracer = otel.Tracer("service/bizum")

const (
	// DefaultBizumConcept is used when a transfer carries no concept.
	DefaultBizumConcept = "Transferencia"
	// UnknownRecipientName is shown for profiles without a full name.
	UnknownRecipientName = "Usuario desconocido"

	maxConceptLength = 140
)

// BizumCurrencies lists the currencies a transfer may be sent in.
var BizumCurrencies = []string{"EUR", "USD"}

// BizumService sends peer-to-peer transfers addressed by Bizum code.
type BizumService struct {
	profiles port.ProfileStore
	metrics  *observability.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

func NewBizumService(profiles port.ProfileStore, metrics *observability.Metrics, logger *zap.Logger) *BizumService {
	return &BizumService{profiles: profiles, metrics: metrics, now: time.Now, logger: logger}
}

// NormalizeBizumCode trims and upper-cases a code as typed by the user.
func NormalizeBizumCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LookupRecipient resolves code to the profile that will receive a
// transfer. Unknown codes are a NotFound.
func (s *BizumService) LookupRecipient(ctx context.Context, ownerID, code string) (*domain.BizumRecipient, error) {
	ctx, span := bizumTracer.Start(ctx, "BizumService.LookupRecipient")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}
	code = NormalizeBizumCode(code)
	if code == "" {
		return nil, &domain.ErrValidation{Field: "recipientCode", Message: "required"}
	}

	rec, err := s.profiles.LookupByBizumCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.FullName) == "" {
		rec.FullName = UnknownRecipientName
	}
	return rec, nil
}

// MyCode returns the Bizum code other users send money to.
func (s *BizumService) MyCode(ctx context.Context, ownerID string) (string, error) {
	ctx, span := bizumTracer.Start(ctx, "BizumService.MyCode")
	defer span.End()

	if ownerID == "" {
		return "", &domain.ErrNotAuthenticated{}
	}
	return s.profiles.GetBizumCode(ctx, ownerID)
}

// Send validates t, confirms the recipient exists and is not the sender,
// and runs the transfer as the user owning accessToken.
func (s *BizumService) Send(ctx context.Context, ownerID, accessToken string, t *domain.BizumTransfer) (*domain.BizumReceipt, error) {
	ctx, span := bizumTracer.Start(ctx, "BizumService.Send")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID), attribute.Float64("amount", t.Amount))

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("bizum_send", s.now().Sub(start)) }()

	if ownerID == "" || accessToken == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}
	if err := normalizeTransfer(t); err != nil {
		return nil, err
	}

	rec, err := s.LookupRecipient(ctx, ownerID, t.RecipientCode)
	if err != nil {
		return nil, err
	}
	if rec.ID == ownerID {
		return nil, &domain.ErrValidation{Field: "recipientCode", Message: "cannot send to yourself"}
	}

	if err := s.profiles.SendBizum(ctx, accessToken, t); err != nil {
		s.logger.Error("bizum transfer failed",
			zap.String("owner_id", ownerID),
			zap.String("recipient_code", t.RecipientCode),
			zap.Float64("amount", t.Amount),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("bizum transfer sent",
		zap.String("owner_id", ownerID),
		zap.String("recipient_code", t.RecipientCode),
		zap.Float64("amount", t.Amount),
		zap.String("currency", t.Currency),
	)
	return &domain.BizumReceipt{
		RecipientCode: t.RecipientCode,
		RecipientName: rec.FullName,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Concept:       t.Concept,
		SentAt:        s.now().UTC(),
	}, nil
}

func normalizeTransfer(t *domain.BizumTransfer) error {
	t.RecipientCode = NormalizeBizumCode(t.RecipientCode)
	if t.RecipientCode == "" {
		return &domain.ErrValidation{Field: "recipientCode", Message: "required"}
	}
	if err := validateAmount(t.Amount); err != nil {
		return err
	}
	if t.Amount != round2(t.Amount) {
		return &domain.ErrValidation{Field: "amount", Message: "must be a whole number of cents"}
	}

	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	if t.Currency == "" {
		t.Currency = BizumCurrencies[0]
	}
	if !slices.Contains(BizumCurrencies, t.Currency) {
		return &domain.ErrValidation{Field: "currency", Message: fmt.Sprintf("must be one of %s", strings.Join(BizumCurrencies, ", "))}
	}

	t.Concept = strings.TrimSpace(t.Concept)
	if t.Concept == "" {
		t.Concept = DefaultBizumConcept
	}
	if len([]rune(t.Concept)) > maxConceptLength {
		return &domain.ErrValidation{Field: "concept", Message: fmt.Sprintf("at most %d characters", maxConceptLength)}
	}
	return nil
}
