package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("storage: invalid download token")
	ErrTokenExpired = errors.New("storage: download token expired")
)

// DownloadClaim is the content of a verified download token.
type DownloadClaim struct {
	AttachmentID int64
	StoredName   string
	ExpiresAt    time.Time
}

// URLSigner issues short-lived download tokens for stored attachments.
type URLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewURLSigner constructs a signer with the provided secret and TTL.
func NewURLSigner(secret string, ttl time.Duration) *URLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &URLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token of the form id.expiry.name.signature.
func (s *URLSigner) Sign(attachmentID int64, storedName string) (string, time.Time, error) {
	if attachmentID <= 0 || storedName == "" {
		return "", time.Time{}, fmt.Errorf("attachment id and stored name required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	id := strconv.FormatInt(attachmentID, 10)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	name := base64.RawURLEncoding.EncodeToString([]byte(storedName))
	return strings.Join([]string{id, exp, name, s.mac(id, exp, name)}, "."), expiresAt, nil
}

// Verify checks the signature and expiry of a token.
func (s *URLSigner) Verify(token string) (DownloadClaim, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return DownloadClaim{}, ErrInvalidToken
	}
	id, exp, name, signature := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(s.mac(id, exp, name)), []byte(signature)) {
		return DownloadClaim{}, ErrInvalidToken
	}

	attachmentID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return DownloadClaim{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return DownloadClaim{}, ErrInvalidToken
	}
	rawName, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return DownloadClaim{}, ErrInvalidToken
	}

	claim := DownloadClaim{AttachmentID: attachmentID, StoredName: string(rawName), ExpiresAt: time.Unix(expUnix, 0).UTC()}
	if s.now().After(claim.ExpiresAt) {
		return claim, ErrTokenExpired
	}
	return claim, nil
}

func (s *URLSigner) mac(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
