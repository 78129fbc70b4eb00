package filters

import (
	"fmt"
	"strconv"

	"github.com/lox/ecovision/internal/models"
)

// Option is one entry of a select input.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Form is the view model for the filter form. It carries no state of its own:
// everything is derived from the State and the reference lists.
type Form struct {
	State         State
	Locations     []Option
	Metrics       []Option
	AnalysisTypes []Option
	Qualities     []Option
	StartMax      string // upper bound for the start date input
	EndMin        string // lower bound for the end date input
	Status        string
}

var analysisTypeLabels = []struct {
	Type  AnalysisType
	Label string
}{
	{AnalysisRaw, "Raw Data"},
	{AnalysisWeighted, "Weighted Summary"},
	{AnalysisTrends, "Trends & Seasonality"},
}

var qualityLabels = []struct {
	Quality Quality
	Label   string
}{
	{QualityAll, "All"},
	{QualityExcellent, "Excellent"},
	{QualityGood, "Good"},
	{QualityQuestionable, "Questionable"},
	{QualityPoor, "Poor"},
}

// NewForm builds the form for s. Locations are selected by ID and metrics by name,
// each list led by an "All" option with an empty value.
func NewForm(s State, locations []models.Location, metrics []models.Metric) Form {
	f := Form{
		State:    s,
		StartMax: s.EndDate,
		EndMin:   s.StartDate,
		Status:   "No filters applied.",
	}
	if s.Active() {
		f.Status = "Filters applied."
	}

	f.Locations = append(f.Locations, Option{Value: "", Label: "All Locations", Selected: s.LocationID == ""})
	for _, loc := range locations {
		id := strconv.FormatInt(loc.ID, 10)
		f.Locations = append(f.Locations, Option{
			Value:    id,
			Label:    fmt.Sprintf("%s (%s)", loc.Name, loc.Country),
			Selected: s.LocationID == id,
		})
	}

	f.Metrics = append(f.Metrics, Option{Value: "", Label: "All Metrics", Selected: s.Metric == ""})
	for _, m := range metrics {
		f.Metrics = append(f.Metrics, Option{
			Value:    m.Name,
			Label:    fmt.Sprintf("%s (%s)", m.Label(), m.Unit),
			Selected: s.Metric == m.Name,
		})
	}

	for _, at := range analysisTypeLabels {
		f.AnalysisTypes = append(f.AnalysisTypes, Option{
			Value:    string(at.Type),
			Label:    at.Label,
			Selected: s.AnalysisType == at.Type,
		})
	}

	for _, q := range qualityLabels {
		f.Qualities = append(f.Qualities, Option{
			Value:    string(q.Quality),
			Label:    q.Label,
			Selected: s.QualityThreshold == string(q.Quality),
		})
	}

	return f
}
