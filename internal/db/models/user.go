package models

import "time"

// User is the application account that owns at most one set of WakaTime
// credentials. Identity fields belong to the app's own auth system; the
// encrypted token columns are managed exclusively by the integration core.
type User struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Email string `gorm:"uniqueIndex" json:"email"`
	Name  string `json:"name,omitempty"`

	// Vault ciphertext, base64 text. NULL means not linked. The pair is
	// always written together: both set by a successful exchange or
	// refresh, both cleared on irrecoverable auth failure.
	WakatimeAccessTokenEncrypted  *string `json:"-"`
	WakatimeRefreshTokenEncrypted *string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
