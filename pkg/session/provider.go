// Package session authenticates users and carries the signed-in user through
// a request. Provider owns accounts and tokens; Session is the per-request
// capability handed to everything that needs to know who is calling.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"krishismart/models"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// User is the authenticated caller as seen by the rest of the service.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`

	tokenID   string
	expiresAt time.Time
}

// Tokens is what a successful sign-in or refresh hands back to the client.
type Tokens struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type claims struct {
	Email string `json:"email"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type Option func(*Provider)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option { return func(p *Provider) { p.cost = cost } }

func WithAccessTTL(d time.Duration) Option { return func(p *Provider) { p.accessTTL = d } }

// Provider signs users up and in, and issues, rotates and revokes their tokens.
// Revoked access tokens are remembered by jti until they would have expired.
type Provider struct {
	db         *gorm.DB
	secret     []byte
	cost       int
	accessTTL  time.Duration
	refreshTTL time.Duration
	denied     *cache.Cache
}

func NewProvider(db *gorm.DB, secret []byte, opts ...Option) *Provider {
	p := &Provider{
		db:         db,
		secret:     secret,
		cost:       bcrypt.DefaultCost,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	for _, o := range opts {
		o(p)
	}
	p.denied = cache.New(p.accessTTL, 10*time.Minute)
	return p
}

// SignUp creates the account and its profile in one transaction.
func (p *Provider) SignUp(ctx context.Context, email, password, name string) (*models.User, error) {
	if err := ValidateSignUp(email, password, name); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	var n int64
	if err := p.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if n > 0 {
		return nil, ErrAlreadyRegistered
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("sign up: hash password: %w", err)
	}
	user := &models.User{
		Email:          email,
		HashedPassword: hashed,
		Profile:        &models.Profile{FullName: strings.TrimSpace(name)},
	}
	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			// lost a race with a concurrent sign-up
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("sign up: %w", err)
	}
	log.WithField("user_id", user.ID).Info("user signed up")
	return user, nil
}

// SignIn checks the password and issues a fresh token pair.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Tokens, *User, error) {
	if err := ValidateCredentials(email, password); err != nil {
		return Tokens{}, nil, err
	}
	var u models.User
	err := p.db.WithContext(ctx).Preload("Profile").Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tokens{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, nil, fmt.Errorf("sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(u.HashedPassword, []byte(password)); err != nil {
		return Tokens{}, nil, ErrInvalidCredentials
	}
	return p.issue(ctx, &u)
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is
// revoked, so each one can be used exactly once.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (Tokens, *User, error) {
	var out Tokens
	var user *User
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt models.RefreshToken
		if err := tx.Where("token_hash = ?", hashToken(refreshToken)).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if rt.Revoked || time.Now().After(rt.ExpiresAt) {
			return ErrInvalidToken
		}
		res := tx.Model(&models.RefreshToken{}).Where("id = ? AND revoked = ?", rt.ID, false).Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}
		var u models.User
		if err := tx.Preload("Profile").First(&u, "id = ?", rt.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		var err error
		out, user, err = p.issueTx(tx, &u)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return Tokens{}, nil, err
		}
		return Tokens{}, nil, fmt.Errorf("refresh: %w", err)
	}
	return out, user, nil
}

// Authenticate verifies an access token and returns its user.
func (p *Provider) Authenticate(token string) (*User, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	if _, revoked := p.denied.Get(c.ID); revoked {
		return nil, ErrInvalidToken
	}
	u := &User{ID: c.Subject, Email: c.Email, IsAdmin: c.Admin, tokenID: c.ID}
	if c.ExpiresAt != nil {
		u.expiresAt = c.ExpiresAt.Time
	}
	return u, nil
}

// Revoke ends a session: the access token stops authenticating immediately.
// The given refresh token is marked revoked; without one, every live refresh
// token of the user is, since the caller cannot say which device is leaving.
func (p *Provider) Revoke(ctx context.Context, u *User, refreshToken string) error {
	if u == nil {
		return nil
	}
	if u.tokenID != "" {
		ttl := time.Until(u.expiresAt)
		if ttl <= 0 {
			ttl = cache.DefaultExpiration
		}
		p.denied.Set(u.tokenID, struct{}{}, ttl)
	}
	q := p.db.WithContext(ctx).Model(&models.RefreshToken{}).Where("user_id = ? AND revoked = ?", u.ID, false)
	if refreshToken != "" {
		q = q.Where("token_hash = ?", hashToken(refreshToken))
	}
	res := q.Update("revoked", true)
	if res.Error != nil {
		return fmt.Errorf("revoke refresh token: %w", res.Error)
	}
	if refreshToken == "" {
		log.WithField("user_id", u.ID).WithField("tokens", res.RowsAffected).Info("revoked all refresh tokens")
	}
	return nil
}

func (p *Provider) issue(ctx context.Context, u *models.User) (Tokens, *User, error) {
	return p.issueTx(p.db.WithContext(ctx), u)
}

func (p *Provider) issueTx(tx *gorm.DB, u *models.User) (Tokens, *User, error) {
	now := time.Now()
	user := &User{
		ID:        u.ID,
		Email:     u.Email,
		IsAdmin:   u.Profile != nil && u.Profile.IsAdmin,
		tokenID:   uuid.NewString(),
		expiresAt: now.Add(p.accessTTL),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		Admin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        user.tokenID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(user.expiresAt),
		},
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return Tokens{}, nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := p.createRefreshToken(tx, u.ID)
	if err != nil {
		return Tokens{}, nil, err
	}
	return Tokens{AccessToken: signed, RefreshToken: refresh, ExpiresAt: user.expiresAt}, user, nil
}

// createRefreshToken stores the sha256 of a random token and returns the raw value.
func (p *Provider) createRefreshToken(tx *gorm.DB, userID string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: hashToken(token), ExpiresAt: time.Now().Add(p.refreshTTL)}
	if err := tx.Create(&rt).Error; err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "UNIQUE constraint") || strings.Contains(s, "unique constraint")
}
