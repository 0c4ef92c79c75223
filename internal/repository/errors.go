// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// lifecycle service and handlers to distinguish between failure
// scenarios with errors.Is instead of string matching.
package repository

import "errors"

// ErrProductNotFound is returned when a product ID does not exist in the
// catalog.
var ErrProductNotFound = errors.New("product not found")

// ErrVariantNotFound is returned when a SKU does not exist under the
// given product.
var ErrVariantNotFound = errors.New("variant not found")

// ErrReservationNotFound is returned when no reservation exists for the
// given code.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrInsufficientStock is returned by the stock ledger when a lock
// requests more units than the variant has available. The available
// pool is left untouched.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrCodeTaken is returned when inserting a reservation collides with an
// existing code. Callers regenerate the code and retry.
var ErrCodeTaken = errors.New("reservation code already taken")
