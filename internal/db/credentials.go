package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/akumotech/wakasync/internal/db/models"
)

// ErrUserNotFound reports a credential operation against an unknown user.
var ErrUserNotFound = errors.New("db: user not found")

// Credentials reads and writes the encrypted WakaTime token pair on the user
// row. All writes touch both token columns in a single statement, so a reader
// can never observe an access token from one exchange next to a refresh token
// from another.
type Credentials struct {
	db *gorm.DB
}

// NewCredentials returns a credential repository over db.
func NewCredentials(db *gorm.DB) *Credentials {
	return &Credentials{db: db}
}

// Get returns the stored ciphertext pair. Empty strings mean not linked.
func (c *Credentials) Get(ctx context.Context, userID uint) (access, refresh string, err error) {
	var user models.User
	if err := c.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrUserNotFound
		}
		return "", "", fmt.Errorf("db: load user %d: %w", userID, err)
	}
	if user.WakatimeAccessTokenEncrypted != nil {
		access = *user.WakatimeAccessTokenEncrypted
	}
	if user.WakatimeRefreshTokenEncrypted != nil {
		refresh = *user.WakatimeRefreshTokenEncrypted
	}
	return access, refresh, nil
}

// Link stores the initial token pair after a successful authorization
// callback. An empty refresh ciphertext is stored as NULL.
func (c *Credentials) Link(ctx context.Context, userID uint, access, refresh string) error {
	res := c.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"wakatime_access_token_encrypted":  &access,
			"wakatime_refresh_token_encrypted": nullable(refresh),
		})
	if res.Error != nil {
		return fmt.Errorf("db: link user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateTokens rotates the pair, guarded by a compare-and-swap on the
// previous access ciphertext. It reports false without touching the row when
// another writer rotated first; the caller must re-read and yield, never
// overwrite the winner.
func (c *Credentials) UpdateTokens(ctx context.Context, userID uint, prevAccess, access, refresh string) (bool, error) {
	res := c.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND wakatime_access_token_encrypted = ?", userID, prevAccess).
		Updates(map[string]any{
			"wakatime_access_token_encrypted":  &access,
			"wakatime_refresh_token_encrypted": nullable(refresh),
		})
	if res.Error != nil {
		return false, fmt.Errorf("db: rotate tokens for user %d: %w", userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ClearTokens removes both tokens in one statement. Used when a refresh is
// rejected or a ciphertext no longer decrypts.
func (c *Credentials) ClearTokens(ctx context.Context, userID uint) error {
	res := c.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"wakatime_access_token_encrypted":  gorm.Expr("NULL"),
			"wakatime_refresh_token_encrypted": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return fmt.Errorf("db: clear tokens for user %d: %w", userID, res.Error)
	}
	return nil
}

// ListLinked returns every user holding an access token ciphertext.
func (c *Credentials) ListLinked(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.db.WithContext(ctx).
		Where("wakatime_access_token_encrypted IS NOT NULL").
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("db: list linked users: %w", err)
	}
	return users, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
