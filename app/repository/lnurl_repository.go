package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"gorm.io/gorm"
)

type lnurlAuthSessionRepository struct {
	db *gorm.DB
}

// NewLnurlAuthSessionRepository creates a new LNURL-auth session repository
func NewLnurlAuthSessionRepository(db *gorm.DB) LnurlAuthSessionRepository {
	return &lnurlAuthSessionRepository{db: db}
}

func (r *lnurlAuthSessionRepository) Create(ctx context.Context, session *models.LnurlAuthSession) error {
	if session.Status == "" {
		session.Status = models.LnurlStatusPending
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *lnurlAuthSessionRepository) GetByK1(ctx context.Context, k1 string) (*models.LnurlAuthSession, error) {
	var session models.LnurlAuthSession
	if err := r.db.WithContext(ctx).Where("k1 = ?", k1).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *lnurlAuthSessionRepository) MarkVerified(ctx context.Context, k1, linkingKey string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.LnurlAuthSession{}).
		Where("k1 = ? AND status = ?", k1, models.LnurlStatusPending).
		Updates(map[string]any{
			"status":      models.LnurlStatusVerified,
			"linking_key": linkingKey,
			"verified_at": at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *lnurlAuthSessionRepository) MarkExpired(ctx context.Context, k1 string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.LnurlAuthSession{}).
		Where("k1 = ? AND status = ?", k1, models.LnurlStatusPending).
		Update("status", models.LnurlStatusExpired)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

type lnurlWithdrawSessionRepository struct {
	db *gorm.DB
}

// NewLnurlWithdrawSessionRepository creates a new LNURL-withdraw session repository
func NewLnurlWithdrawSessionRepository(db *gorm.DB) LnurlWithdrawSessionRepository {
	return &lnurlWithdrawSessionRepository{db: db}
}

func (r *lnurlWithdrawSessionRepository) Create(ctx context.Context, session *models.LnurlWithdrawSession) error {
	if session.Status == "" {
		session.Status = models.LnurlStatusPending
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *lnurlWithdrawSessionRepository) GetByK1(ctx context.Context, k1 string) (*models.LnurlWithdrawSession, error) {
	var session models.LnurlWithdrawSession
	if err := r.db.WithContext(ctx).Where("k1 = ?", k1).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// MarkPaid records the settled invoice. Funds have already left the wallet at
// this point, so an offer that lapsed during the payment is still marked paid.
func (r *lnurlWithdrawSessionRepository) MarkPaid(ctx context.Context, k1, invoice, paymentRef string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.LnurlWithdrawSession{}).
		Where("k1 = ? AND status <> ?", k1, models.LnurlStatusPaid).
		Updates(map[string]any{
			"status":      models.LnurlStatusPaid,
			"invoice":     invoice,
			"payment_ref": paymentRef,
			"paid_at":     at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *lnurlWithdrawSessionRepository) MarkExpired(ctx context.Context, k1 string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.LnurlWithdrawSession{}).
		Where("k1 = ? AND status = ?", k1, models.LnurlStatusPending).
		Update("status", models.LnurlStatusExpired)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
