package product

import "storefront/internal/apperror"

var (
	ErrProductNotFound  = apperror.New(apperror.KindNotFound, "product not found")
	ErrDuplicateProduct = apperror.New(apperror.KindConflict, "product already exists")
)
