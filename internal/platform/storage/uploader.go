// Package storage writes user uploads to Cloud Storage.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
)

const (
	defaultPublicBaseURL = "https://storage.googleapis.com"
	defaultMaxUploadSize = 5 << 20
	uploadCacheControl   = "public, max-age=31536000, immutable"
)

var (
	// ErrUploadTooLarge indicates the body exceeded the configured size limit.
	ErrUploadTooLarge = errors.New("storage: upload exceeds size limit")
	// ErrContentTypeDenied indicates the detected content type is not accepted for the upload kind.
	ErrContentTypeDenied = errors.New("storage: content type not allowed")
)

var allowedContentTypes = map[AssetPurpose][]string{
	PurposePaymentSlip:  {"image/*", "application/pdf"},
	PurposeProductImage: {"image/*"},
}

// Object is one upload: its purpose decides the path prefix and accepted content types, and
// OwnerID is the order or product the file belongs to.
type Object struct {
	Purpose  AssetPurpose
	OwnerID  string
	FileName string
	Size     int64
	Body     io.Reader
}

// ObjectWriterFunc opens a writer for bucket/object. Cancelling ctx before Close discards the object.
type ObjectWriterFunc func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// UploaderOption customises the uploader.
type UploaderOption func(*Uploader)

// WithPublicBaseURL overrides the host used to build object URLs, e.g. a CDN in front of the bucket.
func WithPublicBaseURL(base string) UploaderOption {
	return func(u *Uploader) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			u.publicBase = base
		}
	}
}

// WithMaxSize overrides the maximum accepted upload size in bytes.
func WithMaxSize(size int64) UploaderOption {
	return func(u *Uploader) {
		if size > 0 {
			u.maxSize = size
		}
	}
}

// WithIDGenerator injects the upload id generator (useful for tests).
func WithIDGenerator(gen func() string) UploaderOption {
	return func(u *Uploader) {
		if gen != nil {
			u.newID = gen
		}
	}
}

// WithObjectWriter replaces the Cloud Storage writer (useful for tests).
func WithObjectWriter(open ObjectWriterFunc) UploaderOption {
	return func(u *Uploader) {
		if open != nil {
			u.open = open
		}
	}
}

// Uploader streams uploads into a single public bucket and returns their URL.
type Uploader struct {
	bucket     string
	publicBase string
	maxSize    int64
	newID      func() string
	open       ObjectWriterFunc
}

// NewUploader constructs an uploader writing to bucket through client.
func NewUploader(client *gcs.Client, bucket string, opts ...UploaderOption) (*Uploader, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage uploader: bucket is required")
	}
	u := &Uploader{
		bucket:     bucket,
		publicBase: defaultPublicBaseURL,
		maxSize:    defaultMaxUploadSize,
		newID:      func() string { return ulid.Make().String() },
	}
	if client != nil {
		u.open = func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
			w := client.Bucket(bucket).Object(object).NewWriter(ctx)
			w.ContentType = contentType
			w.CacheControl = uploadCacheControl
			return w
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	if u.open == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	return u, nil
}

// Upload validates the body type by sniffing its first bytes, streams it to the bucket and
// returns the public object URL.
func (u *Uploader) Upload(ctx context.Context, object Object) (string, error) {
	if object.Body == nil {
		return "", errors.New("storage uploader: body is required")
	}
	if object.Size > u.maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, object.Size)
	}

	purpose := object.Purpose
	params := PathParams{UploadID: u.newID(), FileName: object.FileName}
	switch purpose {
	case PurposePaymentSlip:
		params.OrderID = object.OwnerID
	case PurposeProductImage:
		params.ProductID = object.OwnerID
	default:
		return "", fmt.Errorf("storage uploader: unsupported asset purpose %q", purpose)
	}
	name, err := BuildObjectPath(purpose, params)
	if err != nil {
		return "", err
	}

	body := bufio.NewReaderSize(object.Body, 512)
	head, err := body.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("storage uploader: read body: %w", err)
	}
	contentType := http.DetectContentType(head)
	if !contentTypeAllowed(contentType, allowedContentTypes[purpose]) {
		return "", fmt.Errorf("%w: %s", ErrContentTypeDenied, contentType)
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := u.open(writeCtx, u.bucket, name, contentType)
	written, err := io.Copy(w, io.LimitReader(body, u.maxSize+1))
	if err == nil && written > u.maxSize {
		err = fmt.Errorf("%w: more than %d bytes", ErrUploadTooLarge, u.maxSize)
	}
	if err != nil {
		cancel()
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage uploader: finalize %s: %w", name, err)
	}
	return fmt.Sprintf("%s/%s/%s", u.publicBase, u.bucket, name), nil
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(normalized, ';'); i >= 0 {
		normalized = strings.TrimSpace(normalized[:i])
	}
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true
		}
		if strings.HasSuffix(candidate, "/*") {
			if strings.HasPrefix(normalized, strings.TrimSuffix(candidate, "*")) {
				return true
			}
			continue
		}
		if normalized == candidate {
			return true
		}
	}
	return false
}
