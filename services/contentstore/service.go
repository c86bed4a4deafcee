// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package contentstore

import (
	"bytes"
	"context"
	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/crypto/hash"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/contentstore/adapter"
	"github.com/tempora-network/tempora-go/types"
	"time"
)

var LogTag = log.Service("content-store")

type metrics struct {
	putRate          *metric.Rate
	duplicatePutRate *metric.Rate
	objectCount      *metric.Gauge
	byteSize         *metric.Gauge
	getLatency       *metric.Histogram
}

func newMetrics(m metric.Factory) *metrics {
	return &metrics{
		putRate:          m.NewRate("ContentStore.Put.PerSecond"),
		duplicatePutRate: m.NewRate("ContentStore.DuplicatePut.PerSecond"),
		objectCount:      m.NewGauge("ContentStore.Objects.Count"),
		byteSize:         m.NewGauge("ContentStore.Size.Bytes"),
		getLatency:       m.NewLatency("ContentStore.Get.Duration.Millis", 10*time.Second),
	}
}

type service struct {
	storage adapter.StoragePort
	logger  log.Logger
	metrics *metrics
}

func NewContentStore(storage adapter.StoragePort, parent log.Logger, metricFactory metric.Factory) services.ContentStore {
	s := &service{
		storage: storage,
		logger:  parent.WithTags(LogTag),
		metrics: newMetrics(metricFactory),
	}

	if count, size, err := storage.Stats(); err == nil {
		s.metrics.objectCount.Update(count)
		s.metrics.byteSize.Update(size)
	}

	return s
}

func (s *service) Put(ctx context.Context, data []byte) (types.ContentId, error) {
	id := hash.CalcSha256(data)

	exists, err := s.storage.Exists(id)
	if err != nil {
		return types.ContentId{}, errors.Wrap(err, "failed checking object existence")
	}

	if exists {
		stored, err := s.storage.Read(id)
		if err != nil {
			return types.ContentId{}, errors.Wrap(err, "failed reading existing object")
		}
		if !bytes.Equal(stored, data) {
			s.logger.Error("stored object differs from new object under the same id", logfields.ContentId("id", id))
			return types.ContentId{}, errors.Wrapf(types.ErrContentIntegrity, "id %s maps to different bytes", id)
		}
		s.metrics.duplicatePutRate.Measure(1)
		return id, nil
	}

	if err := s.storage.Write(id, data); err != nil {
		return types.ContentId{}, errors.Wrapf(err, "failed writing object %s", id)
	}

	s.metrics.putRate.Measure(1)
	s.metrics.objectCount.Inc()
	s.metrics.byteSize.Add(int64(len(data)))
	return id, nil
}

func (s *service) Get(ctx context.Context, id types.ContentId) ([]byte, error) {
	start := time.Now()
	defer s.metrics.getLatency.RecordSince(start)

	data, err := s.storage.Read(id)
	if err != nil {
		return nil, err
	}

	if recalculated := hash.CalcSha256(data); recalculated != id {
		s.logger.Error("object failed integrity check", logfields.ContentId("id", id), log.Stringable("recalculated", recalculated))
		return nil, errors.Wrapf(types.ErrContentIntegrity, "object %s failed integrity check", id)
	}

	return data, nil
}

func (s *service) Has(ctx context.Context, id types.ContentId) (bool, error) {
	return s.storage.Exists(id)
}

func (s *service) Verify(ctx context.Context, id types.ContentId, data []byte) bool {
	return hash.CalcSha256(data) == id
}

func (s *service) Size() (int64, int64) {
	return s.metrics.objectCount.Value(), s.metrics.byteSize.Value()
}
