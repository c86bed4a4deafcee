// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/crypto/hash"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/events"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/registry/adapter"
	"github.com/tempora-network/tempora-go/types"
)

var LogTag = log.Service("resource-registry")

type metrics struct {
	lineageCount   *metric.Gauge
	versionRate    *metric.Rate
	consumeRate    *metric.Rate
	transitionRate *metric.Rate
	updateLatency  *metric.Histogram
}

func newMetrics(m metric.Factory) *metrics {
	return &metrics{
		lineageCount:   m.NewGauge("Registry.Lineages.Count"),
		versionRate:    m.NewRate("Registry.Versions.PerSecond"),
		consumeRate:    m.NewRate("Registry.Consume.PerSecond"),
		transitionRate: m.NewRate("Registry.Transitions.PerSecond"),
		updateLatency:  m.NewLatency("Registry.Update.Duration.Millis", 10*time.Second),
	}
}

type service struct {
	store   services.ContentStore
	heads   adapter.HeadIndex
	bus     *events.Bus
	logger  log.Logger
	metrics *metrics

	// one writer at a time; register versions are cheap to write and the
	// head swap must observe the version it extends
	mutex sync.Mutex
	logic map[types.LogicKind]services.LogicBehavior
}

func NewRegistry(store services.ContentStore, heads adapter.HeadIndex, bus *events.Bus, parent log.Logger, metricFactory metric.Factory) services.Registry {
	s := &service{
		store:   store,
		heads:   heads,
		bus:     bus,
		logger:  parent.WithTags(LogTag),
		metrics: newMetrics(metricFactory),
		logic:   builtinLogicTable(),
	}

	if count, err := heads.Count(); err == nil {
		s.metrics.lineageCount.Update(int64(count))
	}

	return s
}

func (s *service) RegisterLogic(kind types.LogicKind, behavior services.LogicBehavior) error {
	if !kind.IsCustom() {
		return errors.Errorf("logic kind %s is built in and cannot be replaced", kind)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.logic[kind]; ok {
		return errors.Wrapf(types.ErrAlreadyExists, "logic kind %s is already registered", kind)
	}

	s.logic[kind] = behavior
	s.logger.Info("registered custom logic kind", log.Stringable("kind", kind))
	return nil
}

func (s *service) behavior(kind types.LogicKind) (services.LogicBehavior, error) {
	behavior, ok := s.logic[kind]
	if !ok {
		return services.LogicBehavior{}, errors.Wrapf(types.ErrNotFound, "no logic behavior registered for kind %s", kind)
	}
	return behavior, nil
}

func (s *service) Create(ctx context.Context, input services.CreateRegisterInput) (*types.RegisterRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	behavior, err := s.behavior(input.Logic)
	if err != nil {
		return nil, err
	}
	if behavior.Validate != nil {
		if err := behavior.Validate(input); err != nil {
			return nil, err
		}
	}

	register := types.Register{
		Lineage:      types.NewLineageId(),
		Logic:        input.Logic,
		Fungibility:  input.Fungibility,
		Quantity:     input.Quantity,
		Metadata:     input.Metadata.Copy(),
		State:        types.RegisterInitial,
		NullifierKey: input.NullifierKey,
		Controller:   input.Controller,
		Version:      1,
	}

	record, err := s.appendVersion(ctx, register)
	if err != nil {
		return nil, err
	}

	s.metrics.lineageCount.Inc()
	s.publish(types.LifecycleCreated, record.Register, "")
	s.logger.Info("created register", logfields.Lineage(record.Register.Lineage), log.Stringable("kind", input.Logic))
	return record, nil
}

func (s *service) Read(ctx context.Context, lineage types.LineageId) (*types.RegisterRecord, error) {
	return s.readHead(ctx, lineage)
}

func (s *service) ReadVersion(ctx context.Context, id types.ContentId) (*types.Register, error) {
	data, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading register version %s", id)
	}

	var register types.Register
	if err := canonical.Decode(data, &register); err != nil {
		return nil, errors.Wrapf(err, "object %s is not a register", id)
	}
	return &register, nil
}

func (s *service) Update(ctx context.Context, lineage types.LineageId, f func(types.Register) (types.Register, error)) (*types.RegisterRecord, error) {
	start := time.Now()
	defer s.metrics.updateLatency.RecordSince(start)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	head, err := s.readHead(ctx, lineage)
	if err != nil {
		return nil, err
	}
	if !head.Register.State.AllowsWrite() {
		return nil, writeRefusal(head.Register.State)
	}

	modified, err := f(head.Register)
	if err != nil {
		return nil, err
	}

	// payload fields may change; identity and lifecycle may not
	modified.Lineage = head.Register.Lineage
	modified.Logic = head.Register.Logic
	modified.Fungibility = head.Register.Fungibility
	modified.NullifierKey = head.Register.NullifierKey
	modified.State = head.Register.State
	modified.Version = head.Register.Version + 1
	modified.Prev = head.Id

	record, err := s.appendVersion(ctx, modified)
	if err != nil {
		return nil, err
	}

	s.publish(types.LifecycleUpdated, record.Register, "")
	return record, nil
}

func (s *service) TransitionState(ctx context.Context, lineage types.LineageId, event types.LifecycleEventKind, txn types.TransactionId) (*types.RegisterRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, err := s.transitionLocked(ctx, lineage, event, txn)
	if err != nil {
		return nil, err
	}

	s.metrics.transitionRate.Measure(1)
	return record, nil
}

func (s *service) transitionLocked(ctx context.Context, lineage types.LineageId, event types.LifecycleEventKind, txn types.TransactionId) (*types.RegisterRecord, error) {
	target, ok := event.TargetState()
	if !ok || event == types.LifecycleCreated {
		return nil, errors.Errorf("event %s does not drive a state transition", event)
	}

	head, err := s.readHead(ctx, lineage)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(head.Register.State, event); err != nil {
		return nil, errors.Wrapf(err, "lineage %s", lineage)
	}

	next := head.Register
	next.State = target
	next.Version = head.Register.Version + 1
	next.Prev = head.Id

	record, err := s.appendVersion(ctx, next)
	if err != nil {
		return nil, err
	}

	s.publish(event, record.Register, txn)
	return record, nil
}

func (s *service) Consume(ctx context.Context, lineage types.LineageId, txn types.TransactionId) (*types.ConsumeReceipt, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	head, err := s.readHead(ctx, lineage)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(head.Register.State, types.LifecycleConsumed); err != nil {
		return nil, errors.Wrapf(err, "lineage %s", lineage)
	}

	var nullifier *types.Nullifier
	if len(head.Register.NullifierKey) > 0 {
		tag := hash.CalcSha256(head.Register.NullifierKey, head.Id.Bytes())
		seen, err := s.heads.HasNullifier(tag)
		if err != nil {
			return nil, errors.Wrap(err, "failed checking nullifier")
		}
		if seen {
			return nil, errors.Wrapf(types.ErrResourceConsumed, "nullifier for lineage %s is already recorded", lineage)
		}
		nullifier = &types.Nullifier{
			Tag:             tag,
			Lineage:         lineage,
			ConsumedVersion: head.Id,
			RecordedAt:      types.NanosFromTime(time.Now()),
		}
	}

	record, err := s.transitionLocked(ctx, lineage, types.LifecycleConsumed, txn)
	if err != nil {
		return nil, err
	}

	if nullifier != nil {
		if err := s.heads.RecordNullifier(*nullifier); err != nil {
			return nil, errors.Wrapf(err, "failed recording nullifier for lineage %s", lineage)
		}
	}

	s.metrics.consumeRate.Measure(1)
	s.logger.Info("consumed register", logfields.Lineage(lineage), logfields.Txn(txn))
	return &types.ConsumeReceipt{Consumed: *record, Nullifier: nullifier}, nil
}

func (s *service) Split(ctx context.Context, lineage types.LineageId, amounts []types.Quantity, txn types.TransactionId) ([]*types.RegisterRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	head, err := s.readHead(ctx, lineage)
	if err != nil {
		return nil, err
	}

	behavior, err := s.behavior(head.Register.Logic)
	if err != nil {
		return nil, err
	}
	if !behavior.CanSplit {
		return nil, errors.Wrapf(types.ErrInvalidStateTransition, "logic kind %s cannot split", head.Register.Logic)
	}
	if head.Register.State != types.RegisterActive {
		return nil, writeRefusal(head.Register.State)
	}
	if len(amounts) < 2 {
		return nil, errors.Errorf("split needs at least two amounts, got %d", len(amounts))
	}

	total := types.Quantity{}
	for _, amount := range amounts {
		if amount.IsZero() {
			return nil, errors.Wrap(types.ErrQuantityMismatch, "split amounts must be non-zero")
		}
		if total, err = total.Add(amount); err != nil {
			return nil, errors.Wrap(types.ErrQuantityMismatch, err.Error())
		}
	}
	if total.Cmp(head.Register.Quantity) != 0 {
		return nil, errors.Wrapf(types.ErrQuantityMismatch, "split amounts sum to %s, register holds %s", total, head.Register.Quantity)
	}

	records := make([]*types.RegisterRecord, 0, len(amounts))
	for _, amount := range amounts {
		part := head.Register
		part.Lineage = types.NewLineageId()
		part.Quantity = amount
		part.Metadata = head.Register.Metadata.Copy()
		part.State = types.RegisterActive
		part.Version = 1
		part.Prev = head.Id

		record, err := s.appendVersion(ctx, part)
		if err != nil {
			return nil, err
		}
		s.metrics.lineageCount.Inc()
		s.publish(types.LifecycleCreated, record.Register, txn)
		records = append(records, record)
	}

	if _, err := s.transitionLocked(ctx, lineage, types.LifecycleConsumed, txn); err != nil {
		return nil, errors.Wrapf(err, "failed consuming split source %s", lineage)
	}

	s.metrics.consumeRate.Measure(1)
	s.logger.Info("split register", logfields.Lineage(lineage), log.Int("parts", len(amounts)), logfields.Txn(txn))
	return records, nil
}

func (s *service) Merge(ctx context.Context, lineages []types.LineageId, txn types.TransactionId) (*types.RegisterRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(lineages) < 2 {
		return nil, errors.Errorf("merge needs at least two source lineages, got %d", len(lineages))
	}
	seen := make(map[types.LineageId]bool, len(lineages))
	for _, lineage := range lineages {
		if seen[lineage] {
			return nil, errors.Errorf("lineage %s is listed twice in merge", lineage)
		}
		seen[lineage] = true
	}

	heads := make([]*types.RegisterRecord, 0, len(lineages))
	for _, lineage := range lineages {
		head, err := s.readHead(ctx, lineage)
		if err != nil {
			return nil, err
		}
		heads = append(heads, head)
	}

	first := heads[0].Register
	behavior, err := s.behavior(first.Logic)
	if err != nil {
		return nil, err
	}
	if !behavior.CanMerge {
		return nil, errors.Wrapf(types.ErrInvalidStateTransition, "logic kind %s cannot merge", first.Logic)
	}

	total := types.Quantity{}
	for i, head := range heads {
		if head.Register.State != types.RegisterActive {
			return nil, errors.Wrapf(writeRefusal(head.Register.State), "lineage %s", head.Register.Lineage)
		}
		if i > 0 && !first.Mergeable(head.Register) {
			return nil, errors.Wrapf(types.ErrInvalidStateTransition, "lineage %s is not mergeable with %s", head.Register.Lineage, first.Lineage)
		}
		if total, err = total.Add(head.Register.Quantity); err != nil {
			return nil, errors.Wrap(types.ErrQuantityMismatch, err.Error())
		}
	}

	merged := first
	merged.Lineage = types.NewLineageId()
	merged.Quantity = total
	merged.Metadata = first.Metadata.Copy()
	merged.State = types.RegisterActive
	merged.Version = 1
	merged.Prev = heads[0].Id

	record, err := s.appendVersion(ctx, merged)
	if err != nil {
		return nil, err
	}
	s.metrics.lineageCount.Inc()
	s.publish(types.LifecycleCreated, record.Register, txn)

	for _, lineage := range lineages {
		if _, err := s.transitionLocked(ctx, lineage, types.LifecycleConsumed, txn); err != nil {
			return nil, errors.Wrapf(err, "failed consuming merge source %s", lineage)
		}
		s.metrics.consumeRate.Measure(1)
	}

	s.logger.Info("merged registers", logfields.Lineage(record.Register.Lineage), log.Int("sources", len(lineages)), logfields.Txn(txn))
	return record, nil
}

// StateRoot commits to every lineage head. Heads are folded in lineage order
// so that the root is independent of index iteration order.
func (s *service) StateRoot() types.ContentId {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	type headEntry struct {
		lineage types.LineageId
		id      types.ContentId
	}

	var entries []headEntry
	err := s.heads.Range(func(lineage types.LineageId, id types.ContentId) bool {
		entries = append(entries, headEntry{lineage, id})
		return true
	})
	if err != nil {
		s.logger.Error("failed ranging over heads for state root", log.Error(err))
		return types.EmptyContentId
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].lineage < entries[j].lineage })

	chunks := make([][]byte, 0, len(entries)*2)
	for _, entry := range entries {
		chunks = append(chunks, []byte(entry.lineage), entry.id.Bytes())
	}
	return hash.CalcSha256(chunks...)
}

func (s *service) HeadCount() int {
	count, err := s.heads.Count()
	if err != nil {
		s.logger.Error("failed counting heads", log.Error(err))
		return 0
	}
	return count
}

func (s *service) readHead(ctx context.Context, lineage types.LineageId) (*types.RegisterRecord, error) {
	id, ok, err := s.heads.Lookup(lineage)
	if err != nil {
		return nil, errors.Wrapf(err, "failed looking up head of lineage %s", lineage)
	}
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "lineage %s has no head", lineage)
	}

	register, err := s.ReadVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	return &types.RegisterRecord{Id: id, Register: *register}, nil
}

func (s *service) appendVersion(ctx context.Context, register types.Register) (*types.RegisterRecord, error) {
	id, err := s.store.Put(ctx, canonical.Encode(register))
	if err != nil {
		return nil, errors.Wrapf(err, "failed storing version of lineage %s", register.Lineage)
	}
	if err := s.heads.Swap(register.Lineage, id); err != nil {
		return nil, errors.Wrapf(err, "failed swapping head of lineage %s", register.Lineage)
	}

	s.metrics.versionRate.Measure(1)
	return &types.RegisterRecord{Id: id, Register: register}, nil
}

func (s *service) publish(event types.LifecycleEventKind, register types.Register, txn types.TransactionId) {
	s.bus.Publish(types.Event{
		Kind:      types.EventRegisterLifecycle,
		Subject:   register.Lineage.String(),
		Timestamp: types.NanosFromTime(time.Now()),
		Txn:       txn,
		Fields: types.NewMetadata(map[string]string{
			"event": event.String(),
			"state": register.State.String(),
		}),
	})
}
