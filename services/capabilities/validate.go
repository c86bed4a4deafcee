// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package capabilities

import (
	"context"
	"time"

	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/types"
)

// Validate walks the delegation chain of the requested token root-ward and
// answers whether the invoker may use it now. The leaf token must be held by
// the invoker, cover the needed right and name the target; every token on
// the chain must be unrevoked with all of its constraints holding.
func (s *service) Validate(ctx context.Context, request services.ValidationRequest) error {
	start := time.Now()
	defer s.metrics.validateLatency.RecordSince(start)
	s.metrics.validationRate.Measure(1)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := s.validateLocked(request); err != nil {
		s.metrics.denialRate.Measure(1)
		s.logger.Info("capability validation denied", logfields.ContentId("capability", request.Capability), log.Error(err))
		return err
	}
	return nil
}

// ValidateAndBeginUse runs the same walk as Validate but takes the in-use
// mark before releasing the mutex. Without that atomicity two concurrent
// invokers holding mutually exclusive tokens could both validate and then
// both begin performing.
func (s *service) ValidateAndBeginUse(ctx context.Context, request services.ValidationRequest) error {
	start := time.Now()
	defer s.metrics.validateLatency.RecordSince(start)
	s.metrics.validationRate.Measure(1)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.validateLocked(request); err != nil {
		s.metrics.denialRate.Measure(1)
		s.logger.Info("capability validation denied", logfields.ContentId("capability", request.Capability), log.Error(err))
		return err
	}
	s.beginUseLocked(request.Capability, request.Txn)
	return nil
}

func (s *service) validateLocked(request services.ValidationRequest) error {
	rec, ok := s.index[request.Capability]
	if !ok {
		return errors.Wrapf(types.ErrNotFound, "capability %s", request.Capability)
	}
	if rec.token.IsTemplate() {
		return errors.Wrap(types.ErrTemplateMisuse, "templates grant nothing until instantiated")
	}
	if rec.holder != request.Invoker {
		return errors.Wrapf(types.ErrCapabilityDenied, "capability %s is not held by %s", rec.id, request.Invoker)
	}
	if !rec.token.Right.Covers(request.Need) {
		return errors.Wrapf(types.ErrInsufficientRight, "capability grants %s, operation needs %s", rec.token.Right, request.Need)
	}
	if rec.token.Target != "" && rec.token.Target != request.Target {
		return errors.Wrapf(types.ErrCapabilityDenied, "capability targets %s, not %s", rec.token.Target, request.Target)
	}

	return s.walkChain(rec, request, 1, make(map[types.ContentId]bool))
}

func (s *service) walkChain(rec *record, request services.ValidationRequest, depth int, path map[types.ContentId]bool) error {
	if depth > int(s.config.CapabilityChainDepthLimit()) {
		return errors.Wrapf(types.ErrCapabilityDenied, "chain exceeds the depth limit of %d", s.config.CapabilityChainDepthLimit())
	}
	if path[rec.id] {
		return errors.Wrapf(types.ErrCycleWouldForm, "capability %s appears twice on its own chain", rec.id)
	}
	path[rec.id] = true
	defer delete(path, rec.id)

	if rec.revocation != nil {
		return errors.Wrapf(types.ErrRevoked, "capability %s was revoked: %s", rec.id, rec.revocation.Reason)
	}
	for _, constraint := range rec.token.Delegation.Constraints {
		if err := s.evaluate(constraint, request); err != nil {
			return errors.Wrapf(err, "constraint on capability %s", rec.id)
		}
	}

	for _, parent := range s.parentsOf(rec) {
		parentRec, ok := s.index[parent]
		if !ok {
			return errors.Wrapf(types.ErrNotFound, "chain is broken at %s", parent)
		}
		if err := s.walkChain(parentRec, request, depth+1, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) evaluate(constraint types.Constraint, request services.ValidationRequest) error {
	switch constraint.Kind {
	case types.ConstraintTemporal:
		now := types.NanosFromTime(request.Now)
		if request.Now.IsZero() {
			now = types.NanosFromTime(time.Now())
		}
		if constraint.NotBefore != 0 && now < constraint.NotBefore {
			return errors.Wrapf(types.ErrExpiredConstraint, "not valid before %s", constraint.NotBefore)
		}
		if constraint.NotAfter != 0 && now > constraint.NotAfter {
			return errors.Wrapf(types.ErrExpiredConstraint, "expired at %s", constraint.NotAfter)
		}

	case types.ConstraintQuantity:
		if request.Amount != nil && request.Amount.Cmp(constraint.MaxQuantity) > 0 {
			return errors.Wrapf(types.ErrExpiredConstraint, "amount %s exceeds the permitted %s", request.Amount, constraint.MaxQuantity)
		}

	case types.ConstraintExclusivity:
		for _, peer := range constraint.ExclusiveAmong {
			if peer == request.Capability {
				continue
			}
			if s.peerInUse(peer, request.Txn) {
				return errors.Wrapf(types.ErrExpiredConstraint, "exclusive peer %s is in use", peer)
			}
		}

	case types.ConstraintPurpose:
		if constraint.PurposeLabel != request.Purpose {
			return errors.Wrapf(types.ErrExpiredConstraint, "purpose %q does not match %q", request.Purpose, constraint.PurposeLabel)
		}
	}
	return nil
}

// peerInUse reports whether peer is performing under any transaction other
// than txn; a transaction never excludes itself.
func (s *service) peerInUse(peer types.ContentId, txn types.TransactionId) bool {
	for holder := range s.inUse[peer] {
		if holder != txn {
			return true
		}
	}
	return false
}
