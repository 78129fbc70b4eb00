package climateapi

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/ecovision/internal/filters"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 50
)

// Param is a single query parameter. Params keep their insertion order.
type Param struct {
	Key   string
	Value string
}

// ToQuery encodes params in order, dropping any with an empty value.
func ToQuery(params []Param) string {
	var b strings.Builder
	for _, p := range params {
		if p.Value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// filterParams maps the filter fields shared by every dataset endpoint.
func filterParams(f filters.State) []Param {
	return []Param{
		{"location_id", f.LocationID},
		{"start_date", f.StartDate},
		{"end_date", f.EndDate},
		{"metric", f.Metric},
		{"quality_threshold", f.QualityThreshold},
	}
}

// pagedParams adds page and per_page, defaulting unset values.
func pagedParams(f filters.State) []Param {
	page, perPage := f.Page, f.PerPage
	if page <= 0 {
		page = DefaultPage
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return append(filterParams(f),
		Param{"page", strconv.Itoa(page)},
		Param{"per_page", strconv.Itoa(perPage)},
	)
}

// RequestPath returns the endpoint and query string an apply with f requests,
// relative to the API root.
func RequestPath(f filters.State) string {
	endpoint, params := EndpointClimate, pagedParams(f)
	switch f.AnalysisType {
	case filters.AnalysisTrends:
		endpoint, params = EndpointTrends, filterParams(f)
	case filters.AnalysisWeighted:
		endpoint, params = EndpointSummary, filterParams(f)
	}
	if q := ToQuery(params); q != "" {
		return endpoint + "?" + q
	}
	return endpoint
}
