package lnurl

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// DefaultAuthTTL is used when a session is created without a lifetime.
const DefaultAuthTTL = 10 * time.Minute

// AuthService runs the LNURL-auth challenge machine.
type AuthService struct {
	repo repository.LnurlAuthSessionRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewAuthService creates an auth service. ttl <= 0 selects DefaultAuthTTL.
func NewAuthService(repo repository.LnurlAuthSessionRepository, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultAuthTTL
	}
	return &AuthService{repo: repo, ttl: ttl, now: time.Now}
}

// Create persists a new PENDING challenge. ttl <= 0 uses the service default.
func (s *AuthService) Create(ctx context.Context, ttl time.Duration) (*models.LnurlAuthSession, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	k1, err := NewK1()
	if err != nil {
		return nil, err
	}
	session := &models.LnurlAuthSession{
		K1:        k1,
		Status:    models.LnurlStatusPending,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Encode returns the callback URL for session and its bech32 lnurl.
func (s *AuthService) Encode(callback string, session *models.LnurlAuthSession) (string, string, error) {
	authURL, err := BuildAuthURL(callback, session.K1)
	if err != nil {
		return "", "", err
	}
	encoded, err := Encode(authURL)
	if err != nil {
		return "", "", err
	}
	return authURL, encoded, nil
}

// Verify handles a wallet callback. Protocol failures come back as an error
// Result; the returned error is reserved for store failures.
func (s *AuthService) Verify(ctx context.Context, k1, sig, key string) (Result, error) {
	k1 = strings.ToLower(strings.TrimSpace(k1))
	key = strings.ToLower(strings.TrimSpace(key))
	res, err := s.verify(ctx, k1, strings.TrimSpace(sig), key)
	if err != nil {
		return Result{}, err
	}

	metrics.LnurlAuthResults.WithLabelValues(res.Status, res.Reason).Inc()
	if !res.IsOK() {
		log.Warnf("[LNURLAuth] Rejected k1=%s key=%s: %s", keyPrefix(k1), keyPrefix(key), res.Reason)
	}
	return res, nil
}

func (s *AuthService) verify(ctx context.Context, k1, sig, key string) (Result, error) {
	challenge, reason := ParseChallenge(k1, sig, key)
	if challenge == nil {
		return Fail(reason), nil
	}

	session, err := s.Status(ctx, k1)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Fail(ReasonUnknownK1), nil
		}
		return Result{}, err
	}
	if session.Status == models.LnurlStatusExpired {
		return Fail(ReasonExpired), nil
	}

	if !VerifySignature(challenge.K1, challenge.Sig, challenge.Key) {
		return Fail(ReasonInvalidSignature), nil
	}

	switch session.Status {
	case models.LnurlStatusVerified:
		return s.sameKey(session, key), nil
	case models.LnurlStatusPending:
		won, err := s.repo.MarkVerified(ctx, k1, key, s.now())
		if err != nil {
			return Result{}, err
		}
		if won {
			log.Infof("[LNURLAuth] Verified k1=%s key=%s", keyPrefix(k1), keyPrefix(key))
			return OK(), nil
		}
		// Another callback or an expiring read got there first.
		current, err := s.repo.GetByK1(ctx, k1)
		if err != nil {
			return Result{}, err
		}
		switch current.Status {
		case models.LnurlStatusVerified:
			return s.sameKey(current, key), nil
		case models.LnurlStatusExpired:
			return Fail(ReasonExpired), nil
		}
		return Fail(ReasonInvalidStatus), nil
	default:
		return Fail(ReasonInvalidStatus), nil
	}
}

func (s *AuthService) sameKey(session *models.LnurlAuthSession, key string) Result {
	if strings.EqualFold(session.LinkingKeyValue(), key) {
		return OK()
	}
	return Fail(ReasonAlreadyUsed)
}

// Status loads a session, marking it EXPIRED first if its deadline passed.
func (s *AuthService) Status(ctx context.Context, k1 string) (*models.LnurlAuthSession, error) {
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
