// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User represents a registered account. Email and names are encrypted at rest by the
// repository; MFASecret is sealed before it reaches the database.
type User struct {
	ID         uuid.UUID // PK
	Username   string    // unique, stored sanitized
	Email      string    // unique, stored sanitized
	PwdHash    string    // bcrypt digest of the sanitized password
	FirstName  string
	LastName   string
	MFASecret  string    // base32 TOTP secret
	MFALastUse time.Time // advanced on every successful MFA verification
	CreatedAt  time.Time
}

// Post is a single published entry. Title and Content are stored sanitized.
type Post struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Title    string
	Content  string
	PostedAt time.Time
}

// PostView is a post prepared for output: masked id and display-encoded text.
type PostView struct {
	ID       string // mask token, never the real id
	Title    string
	Content  string
	Author   string
	Date     string
	Editable bool
}

// Fingerprint is the parsed client identity a session is bound to.
type Fingerprint struct {
	BrowserName    string
	BrowserVersion string
	BrowserMajor   string
	OSName         string
	OSVersion      string
}

// Session is an authenticated, fingerprint-bound handle held in process memory.
type Session struct {
	ID          string
	UserID      uuid.UUID
	Fingerprint Fingerprint
	SourceIP    string
	CreatedAt   time.Time
}

// Enrollment carries a freshly issued MFA secret for the signup form.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	QRCode          string // data:image/png;base64 URL
}
