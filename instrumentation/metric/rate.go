package metric

import (
	"fmt"
	"github.com/VividCortex/ewma"
	"github.com/orbs-network/scribe/log"
	"sync"
	"time"
)

var tickInterval = 1 * time.Second

type Rate struct {
	namedMetric
	movingAverage ewma.MovingAverage

	m          sync.Mutex
	runningSum int64
	nextTick   time.Time
}

type rateExport struct {
	Name     string
	Rate     float64
	Interval time.Duration
}

func newRate(name string) *Rate {
	return newRateWihStart(name, time.Now())
}

func newRateWihStart(name string, start time.Time) *Rate {
	return &Rate{
		namedMetric:   namedMetric{name: name},
		movingAverage: ewma.NewMovingAverage(),
		nextTick:      start.Add(tickInterval),
	}
}

func (r *Rate) Export() exportedMetric {
	return r.export()
}

func (r *Rate) export() rateExport {
	r.m.Lock()
	defer r.m.Unlock()
	return rateExport{
		r.name,
		r.movingAverage.Value(),
		tickInterval,
	}
}

func (r *Rate) String() string {
	e := r.export()
	return fmt.Sprintf("metric %s: %f per %s\n", e.Name, e.Rate, e.Interval)
}

func (r *Rate) Measure(eventCount int64) {
	r.m.Lock()
	defer r.m.Unlock()
	r.rotateIfDue(time.Now())
	r.runningSum += eventCount
}

func (r *Rate) maybeRotateAsOf(asOf time.Time) {
	r.m.Lock()
	defer r.m.Unlock()
	r.rotateIfDue(asOf)
}

func (r *Rate) rotateIfDue(asOf time.Time) {
	if r.nextTick.Before(asOf) {
		r.movingAverage.Add(float64(r.runningSum))
		r.runningSum = 0
		r.nextTick = r.nextTick.Add(tickInterval)
	}
}

func (r *Rate) Reset() {
	r.m.Lock()
	defer r.m.Unlock()

	r.movingAverage = ewma.NewMovingAverage()
}

func (r rateExport) LogRow() []*log.Field {
	return []*log.Field{
		log.String("metric", r.Name),
		log.String("metric-type", "rate"),
		log.Float64("rate", r.Rate),
	}
}
