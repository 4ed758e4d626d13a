package lnurl

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/lock"
	"github.com/ManuelReschke/SatsFox/internal/pkg/metrics"
	"github.com/ManuelReschke/SatsFox/internal/pkg/provider"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// DefaultWithdrawTTL is used when an offer is created without a lifetime.
const DefaultWithdrawTTL = 10 * time.Minute

const settleLockTTL = time.Minute

// ErrInvalidBounds is returned when the minimum exceeds the maximum.
var ErrInvalidBounds = errors.New("invalid_bounds")

// CreateWithdrawInput describes a withdraw offer. Amounts are millisatoshi.
type CreateWithdrawInput struct {
	TenantID        uint          `json:"tenant_id" validate:"required,gt=0"`
	MinWithdrawable int64         `json:"min_withdrawable" validate:"required,gt=0"`
	MaxWithdrawable int64         `json:"max_withdrawable" validate:"required,gt=0"`
	Description     string        `json:"description" validate:"max=639"`
	TTL             time.Duration `json:"-"`
}

// WithdrawRequest is the LUD-03 withdrawRequest body.
type WithdrawRequest struct {
	Tag                string `json:"tag"`
	Callback           string `json:"callback"`
	K1                 string `json:"k1"`
	MinWithdrawable    int64  `json:"minWithdrawable"`
	MaxWithdrawable    int64  `json:"maxWithdrawable"`
	DefaultDescription string `json:"defaultDescription"`
}

// WithdrawService runs the LNURL-withdraw offer machine.
type WithdrawService struct {
	repo     repository.LnurlWithdrawSessionRepository
	provider provider.Provider
	locker   lock.Locker
	validate *validator.Validate
	ttl      time.Duration
	now      func() time.Time
}

// NewWithdrawService creates a withdraw service. A nil locker selects an
// in-process KeyedMutex.
func NewWithdrawService(repo repository.LnurlWithdrawSessionRepository, p provider.Provider, locker lock.Locker, ttl time.Duration) *WithdrawService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if ttl <= 0 {
		ttl = DefaultWithdrawTTL
	}
	return &WithdrawService{
		repo:     repo,
		provider: p,
		locker:   locker,
		validate: validator.New(),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create persists a PENDING offer. Reversed bounds are rejected with
// ErrInvalidBounds.
func (s *WithdrawService) Create(ctx context.Context, in CreateWithdrawInput) (*models.LnurlWithdrawSession, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if in.MinWithdrawable > in.MaxWithdrawable {
		return nil, ErrInvalidBounds
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	k1, err := NewK1()
	if err != nil {
		return nil, err
	}
	session := &models.LnurlWithdrawSession{
		K1:                 k1,
		TenantID:           in.TenantID,
		MinWithdrawable:    in.MinWithdrawable,
		MaxWithdrawable:    in.MaxWithdrawable,
		DefaultDescription: in.Description,
		Status:             models.LnurlStatusPending,
		ExpiresAt:          s.now().Add(ttl),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// BuildWithdrawRequest renders the body a wallet fetches before paying out.
func (s *WithdrawService) BuildWithdrawRequest(session *models.LnurlWithdrawSession, callback string) WithdrawRequest {
	return WithdrawRequest{
		Tag:                "withdrawRequest",
		Callback:           callback,
		K1:                 session.K1,
		MinWithdrawable:    session.MinWithdrawable,
		MaxWithdrawable:    session.MaxWithdrawable,
		DefaultDescription: session.DefaultDescription,
	}
}

// Get loads an offer, marking it EXPIRED first if its deadline passed.
func (s *WithdrawService) Get(ctx context.Context, k1 string) (*models.LnurlWithdrawSession, error) {
	session, err := s.repo.GetByK1(ctx, strings.ToLower(strings.TrimSpace(k1)))
	if err != nil {
		return nil, err
	}
	if !session.ExpiredAt(s.now()) {
		return session, nil
	}
	won, err := s.repo.MarkExpired(ctx, session.K1)
	if err != nil {
		return nil, err
	}
	if won {
		session.Status = models.LnurlStatusExpired
		return session, nil
	}
	return s.repo.GetByK1(ctx, session.K1)
}

// Settle pays invoice from the service wallet and marks the offer PAID only
// after the provider confirmed the payment. The invoice amount, decoded by the
// provider, must lie within the offer's bounds. Settling a PAID offer is a no-op
// success. The returned error is reserved for store failures.
func (s *WithdrawService) Settle(ctx context.Context, k1, invoice string) (Result, error) {
	k1 = strings.ToLower(strings.TrimSpace(k1))
	res, err := s.settle(ctx, k1, strings.TrimSpace(invoice))
	if err != nil {
		return Result{}, err
	}
	metrics.LnurlWithdrawResults.WithLabelValues(res.Status, res.Reason).Inc()
	return res, nil
}

func (s *WithdrawService) settle(ctx context.Context, k1, invoice string) (Result, error) {
	if _, ok := decodeHex(k1, k1Len); !ok {
		return Fail(ReasonInvalidK1), nil
	}
	if !looksLikeInvoice(invoice) {
		return Fail(ReasonInvalidInvoice), nil
	}

	unlock, ok, err := s.locker.TryLock(ctx, "lnurlw:"+k1, settleLockTTL)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Fail(ReasonInProgress), nil
	}
	defer unlock()

	session, err := s.Get(ctx, k1)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Fail(ReasonUnknownK1), nil
		}
		return Result{}, err
	}

	switch session.Status {
	case models.LnurlStatusPaid:
		return OK(), nil
	case models.LnurlStatusExpired:
		return Fail(ReasonExpired), nil
	case models.LnurlStatusPending:
	default:
		return Fail(ReasonInvalidStatus), nil
	}

	payer, ok := provider.PayerOf(s.provider)
	if !ok {
		log.Warnf("[LNURLWithdraw] Provider %s cannot pay invoices (k1=%s)", s.provider.Name(), keyPrefix(k1))
		return Fail(ReasonProviderNotSupported), nil
	}

	decoder, ok := provider.DecoderOf(s.provider)
	if !ok {
		log.Warnf("[LNURLWithdraw] Provider %s cannot decode invoices (k1=%s)", s.provider.Name(), keyPrefix(k1))
		return Fail(ReasonProviderNotSupported), nil
	}
	decoded, err := decoder.DecodeInvoice(ctx, invoice)
	if err != nil {
		var perr *provider.Error
		switch {
		case errors.Is(err, provider.ErrNotConfigured):
			log.Errorf("[LNURLWithdraw] Invoice decoding not configured: %v", err)
			return Fail(ReasonProviderNotConfigured), nil
		case errors.As(err, &perr) && perr.StatusCode >= 400 && perr.StatusCode < 500:
			return Fail(ReasonInvalidInvoice), nil
		default:
			log.Errorf("[LNURLWithdraw] Decode failed for k1=%s: %v", keyPrefix(k1), err)
			return Fail(ReasonPaymentFailed), nil
		}
	}
	if decoded.AmountMsat <= 0 || decoded.AmountMsat < session.MinWithdrawable || decoded.AmountMsat > session.MaxWithdrawable {
		log.Warnf("[LNURLWithdraw] Invoice amount %d msat outside [%d, %d] for k1=%s",
			decoded.AmountMsat, session.MinWithdrawable, session.MaxWithdrawable, keyPrefix(k1))
		return Fail(ReasonInvalidAmount), nil
	}

	out, err := payer.PayInvoice(ctx, invoice)
	if err != nil {
		if errors.Is(err, provider.ErrNotConfigured) {
			log.Errorf("[LNURLWithdraw] Outbound payments not configured: %v", err)
			return Fail(ReasonProviderNotConfigured), nil
		}
		log.Errorf("[LNURLWithdraw] Payment failed for k1=%s: %v", keyPrefix(k1), err)
		return Fail(ReasonPaymentFailed), nil
	}
	if status := models.NormalizeStatus(out.Status); status == models.PaymentStatusFailed || status == models.PaymentStatusCanceled {
		log.Errorf("[LNURLWithdraw] Provider reported %s for k1=%s", status, keyPrefix(k1))
		return Fail(ReasonPaymentFailed), nil
	}

	if _, err := s.repo.MarkPaid(ctx, k1, invoice, out.Ref, s.now()); err != nil {
		log.Errorf("[LNURLWithdraw] Paid k1=%s (ref %s) but failed to record it: %v", keyPrefix(k1), out.Ref, err)
		return Result{}, err
	}
	log.Infof("[LNURLWithdraw] Settled k1=%s ref=%s", keyPrefix(k1), keyPrefix(out.Ref))
	return OK(), nil
}

// looksLikeInvoice accepts bech32 BOLT11 strings by prefix only.
func looksLikeInvoice(invoice string) bool {
	if len(invoice) < 8 {
		return false
	}
	return strings.HasPrefix(strings.ToLower(invoice), "ln")
}
