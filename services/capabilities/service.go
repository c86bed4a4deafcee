// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package capabilities

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/types"
)

var LogTag = log.Service("capability-graph")

type metrics struct {
	liveTokens      *metric.Gauge
	revocationRate  *metric.Rate
	validationRate  *metric.Rate
	denialRate      *metric.Rate
	validateLatency *metric.Histogram
}

func newMetrics(m metric.Factory) *metrics {
	return &metrics{
		liveTokens:      m.NewGauge("Capabilities.Live.Count"),
		revocationRate:  m.NewRate("Capabilities.Revocations.PerSecond"),
		validationRate:  m.NewRate("Capabilities.Validations.PerSecond"),
		denialRate:      m.NewRate("Capabilities.Denials.PerSecond"),
		validateLatency: m.NewLatency("Capabilities.Validate.Duration.Millis", time.Second),
	}
}

// record is one index entry. The token object is immutable; the mutable
// marks (holder after transfers, revocation, outgoing edges) live here.
type record struct {
	id         types.ContentId
	token      types.Capability
	holder     types.Address
	revocation *types.Revocation
	children   []types.ContentId
	source     types.ContentId // template provenance, zero otherwise
}

type service struct {
	config  config.CapabilitiesConfig
	store   services.ContentStore
	logger  log.Logger
	metrics *metrics

	mutex sync.RWMutex
	index map[types.ContentId]*record
	inUse map[types.ContentId]map[types.TransactionId]int
}

func NewCapabilityGraph(cfg config.CapabilitiesConfig, store services.ContentStore, parent log.Logger, metricFactory metric.Factory) services.CapabilityGraph {
	return &service{
		config:  cfg,
		store:   store,
		logger:  parent.WithTags(LogTag),
		metrics: newMetrics(metricFactory),
		index:   make(map[types.ContentId]*record),
		inUse:   make(map[types.ContentId]map[types.TransactionId]int),
	}
}

func (s *service) CreateRoot(ctx context.Context, holder types.Address, target types.LineageId, right types.Right, attributes types.Metadata) (*types.CapabilityRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	token := types.Capability{
		Holder:     holder,
		Target:     target,
		Right:      right,
		Kind:       types.CapabilityRoot,
		Attributes: attributes.Copy(),
		IssuedAt:   types.NanosFromTime(time.Now()),
		Nonce:      uuid.New().String(),
	}

	rec, err := s.insert(ctx, token)
	if err != nil {
		return nil, err
	}

	s.logger.Info("created root capability", logfields.ContentId("capability", rec.id), logfields.Holder(holder), log.Stringable("right", right))
	return rec.view(), nil
}

func (s *service) Delegate(ctx context.Context, parent types.ContentId, delegatee types.Address, right types.Right, constraints []types.Constraint, purpose string) (*types.CapabilityRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	parentRec, ok := s.index[parent]
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "parent capability %s", parent)
	}
	if parentRec.revocation != nil {
		return nil, errors.Wrapf(types.ErrRevoked, "parent capability %s", parent)
	}
	if parentRec.token.IsTemplate() {
		return nil, errors.Wrap(types.ErrTemplateMisuse, "templates are instantiated, not delegated")
	}
	if !parentRec.token.Delegatable() {
		return nil, errors.Wrapf(types.ErrNotDelegatable, "capability %s", parent)
	}
	if !parentRec.token.Right.Covers(right) {
		return nil, errors.Wrapf(types.ErrInsufficientRight, "parent grants %s, cannot delegate %s", parentRec.token.Right, right)
	}
	if depth := s.chainLength(parentRec, make(map[types.ContentId]bool)); depth+1 > int(s.config.CapabilityChainDepthLimit()) {
		return nil, errors.Wrapf(types.ErrCapabilityDenied, "delegation would exceed the chain depth limit of %d", s.config.CapabilityChainDepthLimit())
	}

	token := types.Capability{
		Holder: delegatee,
		Target: parentRec.token.Target,
		Right:  right,
		Kind:   types.CapabilityDelegated,
		Delegation: types.Delegation{
			Parent:      parent,
			Delegator:   parentRec.holder,
			Purpose:     purpose,
			Constraints: constraints,
			DelegatedAt: types.NanosFromTime(time.Now()),
		},
		Attributes: parentRec.token.Attributes.Copy(),
		IssuedAt:   types.NanosFromTime(time.Now()),
		Nonce:      uuid.New().String(),
	}

	rec, err := s.insert(ctx, token)
	if err != nil {
		return nil, err
	}
	parentRec.children = append(parentRec.children, rec.id)

	s.logger.Info("delegated capability", logfields.ContentId("capability", rec.id), logfields.ContentId("parent", parent), logfields.Holder(delegatee))
	return rec.view(), nil
}

// Revoke marks the token dead; under cascade every reachable descendant gets
// the same revocation timestamp. Unknown or already revoked ids are a no-op.
func (s *service) Revoke(ctx context.Context, id types.ContentId, revoker types.Address, reason string, cascade bool) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.index[id]
	if !ok || rec.revocation != nil {
		return 0, nil
	}
	if revoker != rec.holder && revoker != rec.token.Delegation.Delegator {
		return 0, errors.Wrapf(types.ErrCapabilityDenied, "%s may not revoke capability %s", revoker, id)
	}

	mark := types.Revocation{
		RevokedBy: revoker,
		Reason:    reason,
		RevokedAt: types.NanosFromTime(time.Now()),
	}

	marked := s.markRevoked(rec, mark, cascade, make(map[types.ContentId]bool))
	s.metrics.revocationRate.Measure(int64(marked))
	s.metrics.liveTokens.Add(-int64(marked))
	s.logger.Info("revoked capability", logfields.ContentId("capability", id), log.Int("cascade-size", marked), log.String("reason", reason))
	return marked, nil
}

func (s *service) markRevoked(rec *record, mark types.Revocation, cascade bool, visited map[types.ContentId]bool) int {
	if visited[rec.id] || rec.revocation != nil {
		return 0
	}
	visited[rec.id] = true

	copied := mark
	rec.revocation = &copied
	marked := 1

	if cascade {
		for _, child := range rec.children {
			if childRec, ok := s.index[child]; ok {
				marked += s.markRevoked(childRec, mark, cascade, visited)
			}
		}
	}
	return marked
}

func (s *service) Transfer(ctx context.Context, id types.ContentId, newHolder types.Address) (*types.CapabilityRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.index[id]
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "capability %s", id)
	}
	if rec.revocation != nil {
		return nil, errors.Wrapf(types.ErrRevoked, "capability %s", id)
	}
	if !rec.token.Transferable() {
		return nil, errors.Wrapf(types.ErrNotTransferable, "capability %s", id)
	}

	rec.holder = newHolder
	s.logger.Info("transferred capability", logfields.ContentId("capability", id), logfields.Holder(newHolder))
	return rec.view(), nil
}

// Compose joins tokens over one target into a single token whose right is the
// weakest of the children and whose constraints are all of theirs together.
func (s *service) Compose(ctx context.Context, holder types.Address, children []types.ContentId) (*types.CapabilityRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(children) == 0 {
		return nil, errors.New("composing zero capabilities is rejected")
	}

	recs := make([]*record, 0, len(children))
	for _, child := range children {
		rec, ok := s.index[child]
		if !ok {
			return nil, errors.Wrapf(types.ErrNotFound, "composed child %s", child)
		}
		if rec.revocation != nil {
			return nil, errors.Wrapf(types.ErrRevoked, "composed child %s", child)
		}
		if rec.token.IsTemplate() {
			return nil, errors.Wrapf(types.ErrTemplateMisuse, "templates cannot be composed")
		}
		recs = append(recs, rec)
	}

	target := recs[0].token.Target
	right := recs[0].token.Right
	var constraints []types.Constraint
	for _, rec := range recs {
		if rec.token.Target != target {
			return nil, errors.Errorf("composed children disagree on target: %s vs %s", target, rec.token.Target)
		}
		switch {
		case right.Covers(rec.token.Right):
			right = rec.token.Right
		case rec.token.Right.Covers(right):
			// keep the weaker right we already hold
		default:
			return nil, errors.Wrapf(types.ErrInsufficientRight, "rights %s and %s do not intersect", right, rec.token.Right)
		}
		constraints = append(constraints, rec.token.Delegation.Constraints...)
	}

	token := types.Capability{
		Holder: holder,
		Target: target,
		Right:  right,
		Kind:   types.CapabilityComposed,
		Delegation: types.Delegation{
			Constraints: constraints,
			DelegatedAt: types.NanosFromTime(time.Now()),
		},
		Composes: children,
		IssuedAt: types.NanosFromTime(time.Now()),
		Nonce:    uuid.New().String(),
	}

	rec, err := s.insert(ctx, token)
	if err != nil {
		return nil, err
	}
	for _, childRec := range recs {
		childRec.children = append(childRec.children, rec.id)
	}

	s.logger.Info("composed capability", logfields.ContentId("capability", rec.id), log.Int("children", len(children)))
	return rec.view(), nil
}

func (s *service) CreateTemplate(ctx context.Context, from types.ContentId) (*types.CapabilityRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	fromRec, ok := s.index[from]
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "capability %s", from)
	}
	if fromRec.revocation != nil {
		return nil, errors.Wrapf(types.ErrRevoked, "capability %s", from)
	}
	if fromRec.token.IsTemplate() {
		return nil, errors.Wrap(types.ErrTemplateMisuse, "cannot template a template")
	}
	if !fromRec.token.Delegatable() {
		return nil, errors.Wrapf(types.ErrNotDelegatable, "capability %s", from)
	}

	token := types.Capability{
		Holder:     fromRec.holder,
		Right:      fromRec.token.Right,
		Kind:       types.CapabilityTemplate,
		Attributes: fromRec.token.Attributes.Copy(),
		IssuedAt:   types.NanosFromTime(time.Now()),
		Nonce:      uuid.New().String(),
	}

	rec, err := s.insert(ctx, token)
	if err != nil {
		return nil, err
	}
	rec.source = from
	fromRec.children = append(fromRec.children, rec.id)

	s.logger.Info("created capability template", logfields.ContentId("template", rec.id), logfields.ContentId("from", from))
	return rec.view(), nil
}

func (s *service) Instantiate(ctx context.Context, template types.ContentId, owner types.Address, target types.LineageId) (*types.CapabilityRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	templateRec, ok := s.index[template]
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "template %s", template)
	}
	if templateRec.revocation != nil {
		return nil, errors.Wrapf(types.ErrRevoked, "template %s", template)
	}
	if !templateRec.token.IsTemplate() {
		return nil, errors.Wrapf(types.ErrTemplateMisuse, "capability %s is not a template", template)
	}

	boundTarget := target
	if boundTarget == "" {
		boundTarget = templateRec.token.Target
	}

	token := types.Capability{
		Holder: owner,
		Target: boundTarget,
		Right:  templateRec.token.Right,
		Kind:   types.CapabilityDelegated,
		Delegation: types.Delegation{
			Parent:      template,
			Delegator:   templateRec.holder,
			DelegatedAt: types.NanosFromTime(time.Now()),
		},
		Attributes: templateRec.token.Attributes.Copy(),
		IssuedAt:   types.NanosFromTime(time.Now()),
		Nonce:      uuid.New().String(),
	}

	rec, err := s.insert(ctx, token)
	if err != nil {
		return nil, err
	}
	templateRec.children = append(templateRec.children, rec.id)

	s.logger.Info("instantiated capability", logfields.ContentId("capability", rec.id), logfields.ContentId("template", template), logfields.Holder(owner))
	return rec.view(), nil
}

func (s *service) Get(ctx context.Context, id types.ContentId) (*types.CapabilityRecord, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return rec.view(), true
}

func (s *service) BeginUse(id types.ContentId, txn types.TransactionId) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.beginUseLocked(id, txn)
}

func (s *service) beginUseLocked(id types.ContentId, txn types.TransactionId) {
	uses, ok := s.inUse[id]
	if !ok {
		uses = make(map[types.TransactionId]int)
		s.inUse[id] = uses
	}
	uses[txn]++
}

func (s *service) EndUse(id types.ContentId, txn types.TransactionId) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	uses, ok := s.inUse[id]
	if !ok {
		return
	}
	uses[txn]--
	if uses[txn] <= 0 {
		delete(uses, txn)
	}
	if len(uses) == 0 {
		delete(s.inUse, id)
	}
}

// insert persists the token and indexes it; the caller holds the mutex.
func (s *service) insert(ctx context.Context, token types.Capability) (*record, error) {
	id, err := s.store.Put(ctx, canonical.Encode(token))
	if err != nil {
		return nil, errors.Wrap(err, "failed storing capability token")
	}

	rec := &record{id: id, token: token, holder: token.Holder}
	s.index[id] = rec
	s.metrics.liveTokens.Inc()
	return rec, nil
}

// chainLength is the longest path from rec to a chain end, counting rec.
func (s *service) chainLength(rec *record, visited map[types.ContentId]bool) int {
	if visited[rec.id] {
		return 0
	}
	visited[rec.id] = true

	longest := 0
	for _, next := range s.parentsOf(rec) {
		if nextRec, ok := s.index[next]; ok {
			if l := s.chainLength(nextRec, visited); l > longest {
				longest = l
			}
		}
	}
	return longest + 1
}

// parentsOf lists the ids the validation walk continues through.
func (s *service) parentsOf(rec *record) []types.ContentId {
	switch rec.token.Kind {
	case types.CapabilityDelegated:
		return []types.ContentId{rec.token.Delegation.Parent}
	case types.CapabilityComposed:
		return rec.token.Composes
	case types.CapabilityTemplate:
		if !rec.source.IsZero() {
			return []types.ContentId{rec.source}
		}
	}
	return nil
}

func (rec *record) view() *types.CapabilityRecord {
	token := rec.token
	token.Holder = rec.holder
	return &types.CapabilityRecord{Id: rec.id, Capability: token}
}
