package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lox/ecovision/internal/climateapi"
	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/logger"
	"github.com/lox/ecovision/internal/metrics"
	"github.com/lox/ecovision/internal/models"
)

// Source is the climate API as the controller uses it.
type Source interface {
	GetLocations(ctx context.Context) ([]models.Location, error)
	GetMetrics(ctx context.Context) ([]models.Metric, error)
	GetClimateData(ctx context.Context, f filters.State) (*climateapi.Response, error)
	GetClimateSummary(ctx context.Context, f filters.State) (*climateapi.Response, error)
	GetClimateTrends(ctx context.Context, f filters.State) (*climateapi.Response, error)
}

// Outcome classifies how an apply ended.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeFailed     Outcome = "failed"
	OutcomeSuperseded Outcome = "superseded"
)

// ApplyResult reports one apply cycle back to the caller.
type ApplyResult struct {
	Token        uint64
	Filters      filters.State
	AnalysisType filters.AnalysisType
	Outcome      Outcome
	Err          error
	Duration     time.Duration
}

// LoadResult reports the reference-list load. Locations are kept even when the
// metrics request fails afterwards.
type LoadResult struct {
	Locations int
	Metrics   int
	Err       error
}

// Controller drives one dashboard. It is safe for concurrent use; network calls
// run without holding the lock.
type Controller struct {
	source Source
	log    *logger.Logger

	mu        sync.Mutex
	state     State
	nextToken uint64

	loadMu     sync.Mutex
	loaded     bool
	loadResult LoadResult
}

// NewController creates a controller starting from the given filters.
func NewController(source Source, initial filters.State, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		source: source,
		log:    log,
		state:  State{Filters: initial},
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispatch applies a to the current state and returns the result.
func (c *Controller) Dispatch(a Action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, a)
	return c.state
}

// SetFilters replaces the filter state. It never fetches.
func (c *Controller) SetFilters(f filters.State) State {
	return c.Dispatch(FiltersChanged{Filters: f})
}

// Load fetches locations, then metrics. Once a load has succeeded later calls
// return its result without fetching; a failed load is retried on the next call.
// Concurrent calls wait for the one in flight.
func (c *Controller) Load(ctx context.Context) LoadResult {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.loaded {
		return c.loadResult
	}
	c.loadResult = c.load(ctx)
	c.loaded = c.loadResult.Err == nil
	return c.loadResult
}

func (c *Controller) load(ctx context.Context) LoadResult {
	c.Dispatch(LoadStarted{})
	defer c.Dispatch(LoadFinished{})

	var res LoadResult
	locations, err := c.source.GetLocations(ctx)
	if err != nil {
		c.log.Errorw("load_locations_failed", "err", err)
		res.Err = err
		return res
	}
	c.Dispatch(LocationsLoaded{Locations: locations})
	res.Locations = len(locations)

	ms, err := c.source.GetMetrics(ctx)
	if err != nil {
		c.log.Errorw("load_metrics_failed", "err", err)
		res.Err = err
		return res
	}
	c.Dispatch(MetricsLoaded{Metrics: ms})
	res.Metrics = len(ms)
	return res
}

// Apply fetches the dataset selected by the current analysis type. Results of an
// apply that has since been superseded by a newer one are discarded.
func (c *Controller) Apply(ctx context.Context) ApplyResult {
	c.mu.Lock()
	c.nextToken++
	token := c.nextToken
	f := c.state.Filters
	c.state = Reduce(c.state, ApplyStarted{Token: token})
	c.mu.Unlock()

	start := time.Now()
	kind, data, err := c.fetch(ctx, f)

	res := ApplyResult{
		Token:        token,
		Filters:      f,
		AnalysisType: f.AnalysisType,
		Err:          err,
		Duration:     time.Since(start),
	}

	c.mu.Lock()
	if token != c.state.Pending {
		res.Outcome = OutcomeSuperseded
	} else if err != nil {
		res.Outcome = OutcomeFailed
		c.state = Reduce(c.state, ApplyFailed{Token: token, Err: err})
	} else {
		res.Outcome = OutcomeOK
		c.state = Reduce(c.state, ApplySucceeded{Token: token, Kind: kind, Data: data})
	}
	c.mu.Unlock()

	analysis := string(f.AnalysisType)
	if !f.AnalysisType.Valid() {
		analysis = string(filters.AnalysisRaw)
	}
	metrics.AppliesTotal.WithLabelValues(analysis, string(res.Outcome)).Inc()

	switch res.Outcome {
	case OutcomeFailed:
		c.log.Errorw("apply_failed", "token", token, "analysis_type", analysis, "err", err)
	case OutcomeSuperseded:
		c.log.Infow("apply_superseded", "token", token, "analysis_type", analysis)
	default:
		c.log.Debugw("apply_ok", "token", token, "analysis_type", analysis, "duration", res.Duration)
	}
	return res
}

// fetch picks the endpoint for f. Anything but trends and weighted is treated as raw.
func (c *Controller) fetch(ctx context.Context, f filters.State) (filters.AnalysisType, json.RawMessage, error) {
	var (
		kind = filters.AnalysisRaw
		resp *climateapi.Response
		err  error
	)
	switch f.AnalysisType {
	case filters.AnalysisTrends:
		kind = filters.AnalysisTrends
		resp, err = c.source.GetClimateTrends(ctx, f)
	case filters.AnalysisWeighted:
		kind = filters.AnalysisWeighted
		resp, err = c.source.GetClimateSummary(ctx, f)
	default:
		resp, err = c.source.GetClimateData(ctx, f)
	}
	if err != nil {
		return kind, nil, err
	}
	if resp == nil {
		return kind, nil, nil
	}
	return kind, resp.Data, nil
}
