package models

import "time"

// LNURL session states.
const (
	LnurlStatusPending  = "PENDING"
	LnurlStatusVerified = "VERIFIED"
	LnurlStatusPaid     = "PAID"
	LnurlStatusExpired  = "EXPIRED"
)

// LnurlAuthSession is a single LNURL-auth challenge. K1 is both the primary key
// and the message the wallet signs.
type LnurlAuthSession struct {
	K1         string     `gorm:"type:char(64);primaryKey" json:"k1"`
	Status     string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	LinkingKey *string    `gorm:"type:varchar(66);default:null" json:"linking_key"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	VerifiedAt *time.Time `gorm:"default:null" json:"verified_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the default pluralization.
func (LnurlAuthSession) TableName() string {
	return "lnurl_auth_sessions"
}

// ExpiredAt reports whether a pending session has passed its deadline.
// Verified sessions are terminal and never expire.
func (s *LnurlAuthSession) ExpiredAt(now time.Time) bool {
	return s.Status == LnurlStatusPending && now.After(s.ExpiresAt)
}

// LinkingKeyValue returns the linking key or an empty string.
func (s *LnurlAuthSession) LinkingKeyValue() string {
	if s.LinkingKey == nil {
		return ""
	}
	return *s.LinkingKey
}

// LnurlWithdrawSession is a bounded LNURL-withdraw offer. Bounds are in
// millisatoshi.
type LnurlWithdrawSession struct {
	K1                 string     `gorm:"type:char(64);primaryKey" json:"k1"`
	TenantID           uint       `gorm:"not null;index" json:"tenant_id"`
	MinWithdrawable    int64      `gorm:"not null" json:"min_withdrawable"`
	MaxWithdrawable    int64      `gorm:"not null" json:"max_withdrawable"`
	DefaultDescription string     `gorm:"type:varchar(639);default:''" json:"default_description"`
	Status             string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	Invoice            string     `gorm:"type:text" json:"invoice,omitempty"`
	PaymentRef         string     `gorm:"type:varchar(191);default:''" json:"payment_ref,omitempty"`
	ExpiresAt          time.Time  `gorm:"not null;index" json:"expires_at"`
	PaidAt             *time.Time `gorm:"default:null" json:"paid_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the default pluralization.
func (LnurlWithdrawSession) TableName() string {
	return "lnurl_withdraw_sessions"
}

// ExpiredAt reports whether a pending withdraw offer has passed its deadline.
func (s *LnurlWithdrawSession) ExpiredAt(now time.Time) bool {
	return s.Status == LnurlStatusPending && now.After(s.ExpiresAt)
}
