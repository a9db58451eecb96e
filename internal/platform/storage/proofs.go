package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry   = 15 * time.Minute
	maxDownloadExpiry     = 15 * time.Minute
	defaultDownloadExpiry = 5 * time.Minute
	maxProofSizeBytes     = 10 << 20
)

var (
	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
	errExpiryTooLong = errors.New("storage: expiry exceeds permitted maximum")

	// ErrContentTypeNotAllowed rejects uploads with a content type outside
	// the accepted proof formats.
	ErrContentTypeNotAllowed = errors.New("storage: content type not allowed")
)

// Accepted content types for uploaded payment proofs.
var allowedProofTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

// SignedURLResult describes the generated signed URL details.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// ProofStore issues signed upload and download URLs for payment proof objects.
type ProofStore struct {
	signer Signer
	bucket string
	ttl    time.Duration
	scheme storage.SigningScheme
	now    func() time.Time
}

// ProofStoreOption customises ProofStore behaviour.
type ProofStoreOption func(*ProofStore)

// WithUploadTTL overrides the validity window for signed upload URLs.
func WithUploadTTL(ttl time.Duration) ProofStoreOption {
	return func(s *ProofStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ProofStoreOption {
	return func(s *ProofStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewProofStore constructs a ProofStore bound to the given bucket.
func NewProofStore(signer Signer, bucket string, opts ...ProofStoreOption) (*ProofStore, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	store := &ProofStore{
		signer: signer,
		bucket: bucket,
		ttl:    defaultUploadExpiry,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// ProofObjectPath builds the canonical object path for an order's payment proof.
func ProofObjectPath(orderID, filename string) string {
	filename = strings.TrimSpace(path.Base(filename))
	if filename == "" || filename == "." {
		filename = "proof"
	}
	return fmt.Sprintf("orders/%s/proofs/%s", strings.TrimSpace(orderID), filename)
}

// UploadURL generates a signed PUT URL for uploading a payment proof.
func (s *ProofStore) UploadURL(ctx context.Context, object, contentType string) (SignedURLResult, error) {
	if s == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !contentTypeAllowed(contentType) {
		return SignedURLResult{}, ErrContentTypeNotAllowed
	}

	expiresAt := s.now().Add(s.ttl)
	sizeRange := fmt.Sprintf("0,%d", maxProofSizeBytes)
	opts := &storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         s.scheme,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expiresAt,
		Headers:        []string{fmt.Sprintf("x-goog-content-length-range:%s", sizeRange)},
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(s.bucket, object, opts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURLResult{
		URL:       signedURL,
		Method:    "PUT",
		ExpiresAt: expiresAt,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
	}, nil
}

// DownloadURL generates a signed GET URL for retrieving a stored payment proof.
func (s *ProofStore) DownloadURL(ctx context.Context, object string, expiresIn time.Duration) (SignedURLResult, error) {
	if s == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	if expiresIn <= 0 {
		expiresIn = defaultDownloadExpiry
	}
	if expiresIn > maxDownloadExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}

	expiresAt := s.now().Add(expiresIn)
	opts := &storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         s.scheme,
		Method:         "GET",
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(s.bucket, object, opts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURLResult{URL: signedURL, Method: "GET", ExpiresAt: expiresAt}, nil
}

func contentTypeAllowed(contentType string) bool {
	for _, candidate := range allowedProofTypes {
		if contentType == candidate {
			return true
		}
	}
	return false
}
