// Package idempotency replays stored responses for retried requests carrying the same key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"maps"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a key protects against duplicates.
const DefaultTTL = 24 * time.Hour

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of Store.Reserve.
type ReservationState int

const (
	// ReservationStateNew: the caller owns the key and must run the request.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted: Record holds a response to replay.
	ReservationStateCompleted
	// ReservationStatePending: another request holds the key.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the stored state of one key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is what SaveResponse stores for later replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and responses. Reserve must be atomic: of two concurrent
// calls for a fresh key exactly one observes ReservationStateNew.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a live key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// reserve decides the outcome for an existing record. A nil current means no record exists;
// the returned bool reports whether a fresh pending record has to be written.
func reserve(current *Record, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, bool, error) {
	if current == nil || current.expired(now) {
		return Reservation{State: ReservationStateNew, Record: pendingRecord(key, fingerprint, now, ttl)}, true, nil
	}
	if current.Fingerprint != fingerprint {
		return Reservation{}, false, ErrFingerprintMismatch
	}
	if current.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: *current}, false, nil
	}
	return Reservation{State: ReservationStatePending, Record: *current}, false, nil
}

// complete folds resp into the record, creating one when the reservation vanished meanwhile.
func complete(current *Record, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) (Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	record := pendingRecord(key, fingerprint, now, ttl)
	if current != nil {
		if current.Fingerprint != fingerprint {
			return Record{}, ErrFingerprintMismatch
		}
		record.CreatedAt = current.CreatedAt
	}
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = storableHeaders(resp.Headers)
	record.ResponseBody = append([]byte(nil), resp.Body...)
	record.ExpiresAt = now.Add(ttl)
	return record, nil
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// documentID hashes the scoped key so arbitrary client input is a safe document id. The
// fingerprint is deliberately not part of it: reuse with another body must collide.
func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Content-Length":      {},
	"Date":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func storableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if _, skip := hopHeaders[name]; skip {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func replayHeaders(stored map[string][]string) http.Header {
	return http.Header(maps.Clone(stored))
}
