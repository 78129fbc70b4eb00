// Package dashboard is the root controller: it owns the filter state and the
// fetched datasets of one dashboard and moves them through explicit transitions.
package dashboard

import (
	"encoding/json"

	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/models"
)

// State is an immutable snapshot of one dashboard. It only changes through Reduce.
type State struct {
	Filters   filters.State
	Locations []models.Location
	Metrics   []models.Metric

	// Dataset is the primary slot: the last raw or weighted result. It feeds both
	// charts and the quality indicator.
	Dataset json.RawMessage
	// Trends holds the last trends result. It is never overwritten by raw or
	// weighted applies.
	Trends json.RawMessage

	RefsLoading bool
	// Pending is the token of the latest apply still in flight, zero when idle.
	Pending uint64
	// LastToken is the token of the latest apply issued.
	LastToken uint64
	LastError string
}

// Loading reports whether the reference load or the latest apply is in flight.
func (s State) Loading() bool {
	return s.RefsLoading || s.Pending != 0
}

// ShowTrends reports whether the trend view replaces the charts.
func (s State) ShowTrends() bool {
	return s.Filters.AnalysisType == filters.AnalysisTrends
}

// Action is a state transition.
type Action interface {
	isAction()
}

type FiltersChanged struct{ Filters filters.State }

type LoadStarted struct{}

type LocationsLoaded struct{ Locations []models.Location }

type MetricsLoaded struct{ Metrics []models.Metric }

type LoadFinished struct{}

type ApplyStarted struct{ Token uint64 }

type ApplySucceeded struct {
	Token uint64
	Kind  filters.AnalysisType
	Data  json.RawMessage
}

type ApplyFailed struct {
	Token uint64
	Err   error
}

func (FiltersChanged) isAction()  {}
func (LoadStarted) isAction()     {}
func (LocationsLoaded) isAction() {}
func (MetricsLoaded) isAction()   {}
func (LoadFinished) isAction()    {}
func (ApplyStarted) isAction()    {}
func (ApplySucceeded) isAction()  {}
func (ApplyFailed) isAction()     {}

// Reduce returns the state that follows s after a. Apply results carrying a token
// other than the pending one are stale and leave s untouched.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case FiltersChanged:
		s.Filters = a.Filters
	case LoadStarted:
		s.RefsLoading = true
	case LocationsLoaded:
		s.Locations = a.Locations
		if s.Locations == nil {
			s.Locations = []models.Location{}
		}
	case MetricsLoaded:
		s.Metrics = a.Metrics
		if s.Metrics == nil {
			s.Metrics = []models.Metric{}
		}
	case LoadFinished:
		s.RefsLoading = false
	case ApplyStarted:
		s.Pending = a.Token
		if a.Token > s.LastToken {
			s.LastToken = a.Token
		}
	case ApplySucceeded:
		if a.Token != s.Pending {
			return s
		}
		if a.Kind == filters.AnalysisTrends {
			s.Trends = a.Data
		} else {
			s.Dataset = a.Data
		}
		s.Pending = 0
		s.LastError = ""
	case ApplyFailed:
		if a.Token != s.Pending {
			return s
		}
		s.Pending = 0
		if a.Err != nil {
			s.LastError = a.Err.Error()
		}
	}
	return s
}
