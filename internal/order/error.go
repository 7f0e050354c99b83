package order

import "storefront/internal/apperror"

var (
	ErrOrderNotFound = apperror.New(apperror.KindNotFound, "order not found")

	// ErrDuplicateOrderID is returned by a store when the generated order
	// identifier collides with an existing one.
	ErrDuplicateOrderID = apperror.New(apperror.KindConflict, "order identifier already exists")
)
