package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
)

const (
	defaultCollection   = "idempotency_keys"
	defaultCleanupLimit = 100
)

// FirestoreStore keeps records in the idempotency_keys collection. expires_at doubles as the
// field of a Firestore TTL policy, so CleanupExpired only has to catch what TTL has not yet
// removed.
type FirestoreStore struct {
	provider *pfirestore.Provider
	keys     *pfirestore.Collection[keyDocument]
}

var _ Store = (*FirestoreStore)(nil)

type FirestoreOption func(*firestoreOptions)

type firestoreOptions struct {
	collection string
}

// WithCollection stores keys in name instead of idempotency_keys.
func WithCollection(name string) FirestoreOption {
	return func(o *firestoreOptions) {
		if name != "" {
			o.collection = name
		}
	}
}

// NewFirestoreStore shares the provider, and with it the transaction retry policy, of the
// repositories.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	o := firestoreOptions{collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &FirestoreStore{
		provider: provider,
		keys:     pfirestore.NewCollection[keyDocument](provider, o.collection),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	var res Reservation
	err := s.inTransaction(ctx, key, func(tx *firestore.Transaction, ref *firestore.DocumentRef, current *Record) error {
		var (
			write bool
			err   error
		)
		res, write, err = reserve(current, key, fingerprint, now.UTC(), ttl)
		if err != nil || !write {
			return err
		}
		return tx.Set(ref, newKeyDocument(res.Record))
	})
	return res, err
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	return s.inTransaction(ctx, key, func(tx *firestore.Transaction, ref *firestore.DocumentRef, current *Record) error {
		record, err := complete(current, key, fingerprint, resp, now.UTC(), ttl)
		if err != nil {
			return err
		}
		return tx.Set(ref, newKeyDocument(record))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	return s.keys.Delete(ctx, documentID(key))
}

// CleanupExpired deletes up to limit expired keys with a BulkWriter.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	docs, err := s.keys.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expires_at", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(docs) == 0 {
		return 0, err
	}

	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		ref, err := s.keys.Ref(ctx, doc.ID)
		if err != nil {
			writer.End()
			return 0, err
		}
		job, err := writer.Delete(ref)
		if err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	removed := 0
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, pfirestore.WrapError("idempotency.cleanup", fmt.Errorf("%d deletes failed: %w", len(errs), errors.Join(errs...)))
	}
	return removed, nil
}

func (s *FirestoreStore) inTransaction(ctx context.Context, key string, fn func(*firestore.Transaction, *firestore.DocumentRef, *Record) error) error {
	ref, err := s.keys.Ref(ctx, documentID(key))
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fn(tx, ref, nil)
		}
		if err != nil {
			return err
		}
		var doc keyDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode idempotency key: %w", err)
		}
		current := doc.record()
		return fn(tx, ref, &current)
	})
}

type keyDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"response_status"`
	ResponseHeaders map[string][]string `firestore:"response_headers"`
	ResponseBody    []byte              `firestore:"response_body"`
	CreatedAt       time.Time           `firestore:"created_at"`
	UpdatedAt       time.Time           `firestore:"updated_at"`
	ExpiresAt       time.Time           `firestore:"expires_at"`
}

func newKeyDocument(r Record) keyDocument {
	return keyDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d keyDocument) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}
