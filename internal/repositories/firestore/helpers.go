package firestore

import (
	"errors"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/pagination"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

func pageWindow(page domain.Pagination) (offset, limit int, err error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return 0, 0, err
	}
	limit = page.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return cursor.Offset, min(limit, pagination.DefaultMaxPageSize), nil
}

// nextPageToken expects queries to fetch limit+1 documents so a full page signals more results.
func nextPageToken(offset, limit, fetched int) (string, error) {
	if fetched <= limit {
		return "", nil
	}
	return pagination.EncodeToken(pagination.Cursor{Offset: offset + limit})
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
