package engine

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	predictorsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "predictd",
			Subsystem: "engine",
			Name:      "predictors_created_total",
			Help:      "Total number of predictors created",
		},
		[]string{"engine"},
	)

	predictorsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "predictd",
			Subsystem: "engine",
			Name:      "predictors_live",
			Help:      "Predictors created and not yet closed",
		},
		[]string{"engine"},
	)

	createFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "predictd",
			Subsystem: "engine",
			Name:      "create_failures_total",
			Help:      "Total number of failed predictor creations",
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(predictorsCreated, predictorsLive, createFailures)
}

// Instrument wraps e so every predictor it hands out is counted while live.
func Instrument(e Engine) *Instrumented {
	return &Instrumented{Engine: e}
}

// Instrumented is an Engine that tracks predictor lifetimes.
type Instrumented struct {
	Engine
	live atomic.Int64
}

func (i *Instrumented) Create(cfg Config, model, params []byte) (Predictor, error) {
	name := i.Engine.Name()
	p, err := i.Engine.Create(cfg, model, params)
	if err != nil {
		createFailures.WithLabelValues(name).Inc()
		return nil, err
	}
	predictorsCreated.WithLabelValues(name).Inc()
	predictorsLive.WithLabelValues(name).Inc()
	i.live.Add(1)
	return &countedPredictor{Predictor: p, owner: i}, nil
}

// Live returns the number of predictors created through i and not yet closed.
func (i *Instrumented) Live() int64 { return i.live.Load() }

type countedPredictor struct {
	Predictor
	owner *Instrumented
	once  sync.Once
}

func (c *countedPredictor) Close() error {
	err := c.Predictor.Close()
	c.once.Do(func() {
		c.owner.live.Add(-1)
		predictorsLive.WithLabelValues(c.owner.Engine.Name()).Dec()
	})
	return err
}
