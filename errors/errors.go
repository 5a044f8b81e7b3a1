// Package errors provides error handling for GitVan.
//
// This package re-exports github.com/cockroachdb/errors so that every
// GitVan package gets stack traces, wrapping, and user-facing hints from a
// single import. Domain error kinds (ManifestInvalid, PackNotFound, GitError,
// JobTimeout, ...) are defined as concrete types in their owning packages and
// inspected with As/Is from here.
//
// Usage:
//
//	// Create new error
//	err := errors.New("pack id is empty")
//
//	// Wrap with context
//	if err := applier.Apply(ctx, pack); err != nil {
//	    return errors.Wrapf(err, "applying %s", pack.ID)
//	}
//
//	// Add hints for users
//	return errors.WithHint(err, "run 'gitvan pack validate' to see conflicts")
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll

	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Aggregation
var (
	Join               = crdb.Join
	CombineErrors      = crdb.CombineErrors
	WithSecondaryError = crdb.WithSecondaryError
)
