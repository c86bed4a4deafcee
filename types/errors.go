// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

import (
	"github.com/pkg/errors"
)

// ErrorClass groups the kernel error kinds by origin.
type ErrorClass uint8

const (
	ErrorClassStructural ErrorClass = iota + 1
	ErrorClassAuthorization
	ErrorClassState
	ErrorClassConcurrency
	ErrorClassExternal
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassStructural:
		return "Structural"
	case ErrorClassAuthorization:
		return "Authorization"
	case ErrorClassState:
		return "State"
	case ErrorClassConcurrency:
		return "Concurrency"
	case ErrorClassExternal:
		return "External"
	}
	return "Unknown"
}

// KernelError is a typed error kind. Call sites wrap these with pkg/errors
// for context; IsError and ClassOf look through the wrapping.
type KernelError struct {
	Class ErrorClass
	Code  string
}

func (e *KernelError) Error() string {
	return e.Code
}

func structural(code string) *KernelError {
	return &KernelError{Class: ErrorClassStructural, Code: code}
}

func authorization(code string) *KernelError {
	return &KernelError{Class: ErrorClassAuthorization, Code: code}
}

func state(code string) *KernelError {
	return &KernelError{Class: ErrorClassState, Code: code}
}

func concurrency(code string) *KernelError {
	return &KernelError{Class: ErrorClassConcurrency, Code: code}
}

func external(code string) *KernelError {
	return &KernelError{Class: ErrorClassExternal, Code: code}
}

var (
	// structural
	ErrNotFound           = structural("not found")
	ErrAlreadyExists      = structural("already exists")
	ErrCircularDependency = structural("circular dependency")
	ErrInvalidGraph       = structural("invalid graph")
	ErrContentIntegrity   = structural("content integrity failure")

	// authorization
	ErrCapabilityDenied  = authorization("capability denied")
	ErrRevoked           = authorization("revoked")
	ErrExpiredConstraint = authorization("expired constraint")
	ErrNotDelegatable    = authorization("not delegatable")
	ErrNotTransferable   = authorization("not transferable")
	ErrInsufficientRight = authorization("insufficient right")
	ErrCycleWouldForm    = authorization("cycle would form")
	ErrTemplateMisuse    = authorization("template misuse")

	// state
	ErrInvalidStateTransition = state("invalid state transition")
	ErrResourceLocked         = state("resource locked")
	ErrResourceFrozen         = state("resource frozen")
	ErrResourceConsumed       = state("resource consumed")
	ErrQuantityMismatch       = state("quantity mismatch")

	// concurrency
	ErrLockTimeout     = concurrency("lock timeout")
	ErrLockConflict    = concurrency("lock conflict")
	ErrCancelRequested = concurrency("cancel requested")
	ErrTimeout         = concurrency("timeout")

	// external
	ErrNotConnected      = external("not connected")
	ErrChainReorg        = external("chain reorg")
	ErrStaleFact         = external("stale fact")
	ErrProofInvalid      = external("proof invalid")
	ErrTransactionFailed = external("transaction failed")
	ErrTimeMapRegression = external("time map regression")
)

// IsError reports whether err is kind (directly or through wrapping).
func IsError(err error, kind *KernelError) bool {
	if err == nil || kind == nil {
		return false
	}
	cause, ok := errors.Cause(err).(*KernelError)
	return ok && cause == kind
}

// ClassOf extracts the error class, if err carries a kernel kind.
func ClassOf(err error) (ErrorClass, bool) {
	if err == nil {
		return 0, false
	}
	if cause, ok := errors.Cause(err).(*KernelError); ok {
		return cause.Class, true
	}
	return 0, false
}

// Transient errors may be retried by handlers; the scheduler never retries.
func Transient(err error) bool {
	return IsError(err, ErrNotConnected) || IsError(err, ErrStaleFact)
}
