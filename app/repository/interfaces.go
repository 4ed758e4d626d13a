package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"gorm.io/gorm"
)

// PaymentRepository defines the interface for payment persistence.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error)
	// UpdateStatusIfCurrent moves a payment from expected to next and reports
	// whether this call performed the transition.
	UpdateStatusIfCurrent(ctx context.Context, id, expected, next string) (bool, error)
	// ListUnresolved returns payments updated after since that are not yet
	// resolved, least recently checked first.
	ListUnresolved(ctx context.Context, since time.Time, limit int) ([]models.Payment, error)
	MarkChecked(ctx context.Context, ids []string, at time.Time) error
}

// LnurlAuthSessionRepository defines the interface for LNURL-auth sessions.
type LnurlAuthSessionRepository interface {
	Create(ctx context.Context, session *models.LnurlAuthSession) error
	GetByK1(ctx context.Context, k1 string) (*models.LnurlAuthSession, error)
	// MarkVerified binds the linking key only while the session is still PENDING.
	MarkVerified(ctx context.Context, k1, linkingKey string, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, k1 string) (bool, error)
}

// LnurlWithdrawSessionRepository defines the interface for LNURL-withdraw offers.
type LnurlWithdrawSessionRepository interface {
	Create(ctx context.Context, session *models.LnurlWithdrawSession) error
	GetByK1(ctx context.Context, k1 string) (*models.LnurlWithdrawSession, error)
	MarkPaid(ctx context.Context, k1, invoice, paymentRef string, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, k1 string) (bool, error)
}

// WebhookEventRepository records provider webhook deliveries.
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, outcome, processingError string) error
}

// TenantRepository defines the interface for tenant lookups.
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id uint) (*models.Tenant, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, error)
	TouchAPIKeyUsage(ctx context.Context, id uint, at time.Time) error
}

// Repositories holds all repository instances
type Repositories struct {
	Payment         PaymentRepository
	AuthSession     LnurlAuthSessionRepository
	WithdrawSession LnurlWithdrawSessionRepository
	WebhookEvent    WebhookEventRepository
	Tenant          TenantRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment:         NewPaymentRepository(db),
		AuthSession:     NewLnurlAuthSessionRepository(db),
		WithdrawSession: NewLnurlWithdrawSessionRepository(db),
		WebhookEvent:    NewWebhookEventRepository(db),
		Tenant:          NewTenantRepository(db),
	}
}
