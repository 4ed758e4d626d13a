package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	payment.Status = models.NormalizeStatus(payment.Status)
	if payment.CheckedAt.IsZero() {
		payment.CheckedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("provider_ref = ?", providerRef).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdateStatusIfCurrent is a compare-and-set on the status column. Exactly one
// of several concurrent callers observing the same expected status wins.
func (r *paymentRepository) UpdateStatusIfCurrent(ctx context.Context, id, expected, next string) (bool, error) {
	now := time.Now()
	tx := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{
			"status":     models.NormalizeStatus(next),
			"checked_at": now,
			"updated_at": now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *paymentRepository) ListUnresolved(ctx context.Context, since time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("updated_at >= ? AND status NOT IN ?", since, models.ResolvedStatuses()).
		Order("checked_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) MarkChecked(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id IN ?", ids).
		UpdateColumn("checked_at", at).Error
}
