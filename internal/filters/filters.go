// Package filters holds the dashboard filter state and the form that edits it.
//
// A State is a plain value: every edit produces a new copy via With, and nothing in
// this package talks to the network. Applying the filters is the caller's job.
package filters

import (
	"net/url"
	"strconv"
	"strings"
)

// AnalysisType selects which backend endpoint an apply hits and which view renders.
type AnalysisType string

const (
	AnalysisRaw      AnalysisType = "raw"
	AnalysisWeighted AnalysisType = "weighted"
	AnalysisTrends   AnalysisType = "trends"
)

// Valid reports whether a is one of the three known analysis types.
func (a AnalysisType) Valid() bool {
	switch a {
	case AnalysisRaw, AnalysisWeighted, AnalysisTrends:
		return true
	}
	return false
}

// Quality is a data-quality tier passed through to the backend.
type Quality string

const (
	QualityAll          Quality = ""
	QualityExcellent    Quality = "excellent"
	QualityGood         Quality = "good"
	QualityQuestionable Quality = "questionable"
	QualityPoor         Quality = "poor"
)

// Valid reports whether q is a known tier or the empty "All" sentinel.
func (q Quality) Valid() bool {
	switch q {
	case QualityAll, QualityExcellent, QualityGood, QualityQuestionable, QualityPoor:
		return true
	}
	return false
}

// Field names as submitted by the filter form.
const (
	FieldLocationID       = "locationId"
	FieldStartDate        = "startDate"
	FieldEndDate          = "endDate"
	FieldMetric           = "metric"
	FieldQualityThreshold = "qualityThreshold"
	FieldAnalysisType     = "analysisType"
	FieldPage             = "page"
	FieldPerPage          = "perPage"
)

var fieldNames = []string{
	FieldLocationID,
	FieldStartDate,
	FieldEndDate,
	FieldMetric,
	FieldQualityThreshold,
	FieldAnalysisType,
	FieldPage,
	FieldPerPage,
}

// State is the filter record the dashboard applies. Empty strings and zero
// page values mean "not set".
type State struct {
	LocationID       string       `json:"locationId"`
	StartDate        string       `json:"startDate"`
	EndDate          string       `json:"endDate"`
	Metric           string       `json:"metric"`
	QualityThreshold string       `json:"qualityThreshold"`
	AnalysisType     AnalysisType `json:"analysisType"`
	Page             int          `json:"page,omitempty"`
	PerPage          int          `json:"perPage,omitempty"`
}

// Default returns the state a new dashboard starts with.
func Default() State {
	return State{AnalysisType: AnalysisRaw}
}

// With returns a copy of s with one field replaced. Unknown fields return s unchanged.
func (s State) With(field, value string) State {
	switch field {
	case FieldLocationID:
		s.LocationID = value
	case FieldStartDate:
		s.StartDate = value
	case FieldEndDate:
		s.EndDate = value
	case FieldMetric:
		s.Metric = value
	case FieldQualityThreshold:
		s.QualityThreshold = value
	case FieldAnalysisType:
		s.AnalysisType = AnalysisType(value)
	case FieldPage:
		s.Page = parsePositive(value)
	case FieldPerPage:
		s.PerPage = parsePositive(value)
	}
	return s
}

// Active reports whether any filter narrows the query. The default analysis
// type does not count.
func (s State) Active() bool {
	for _, v := range []string{s.LocationID, s.StartDate, s.EndDate, s.Metric, s.QualityThreshold} {
		if v != "" {
			return true
		}
	}
	if s.AnalysisType != "" && s.AnalysisType != AnalysisRaw {
		return true
	}
	return s.Page > 0 || s.PerPage > 0
}

// FromForm applies every filter field present in v on top of base. Values outside the
// fixed enumerations fall back to their defaults.
func FromForm(v url.Values, base State) State {
	s := base
	for _, name := range fieldNames {
		if _, ok := v[name]; !ok {
			continue
		}
		s = s.With(name, strings.TrimSpace(v.Get(name)))
	}
	return s.normalized()
}

func (s State) normalized() State {
	if !s.AnalysisType.Valid() {
		s.AnalysisType = AnalysisRaw
	}
	if !Quality(s.QualityThreshold).Valid() {
		s.QualityThreshold = string(QualityAll)
	}
	return s
}

func parsePositive(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
