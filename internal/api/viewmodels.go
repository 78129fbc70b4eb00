package api

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/lox/ecovision/internal/dashboard"
	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/models"
)

var seriesColors = []string{"#4fc3f7", "#81c784", "#ffb74d", "#f48fb1", "#ba68c8", "#4db6ac"}

// qualityTiers is the display order of the quality indicator.
var qualityTiers = []struct {
	Name  filters.Quality
	Label string
}{
	{filters.QualityExcellent, "Excellent"},
	{filters.QualityGood, "Good"},
	{filters.QualityQuestionable, "Questionable"},
	{filters.QualityPoor, "Poor"},
}

type PageData struct {
	Form    filters.Form
	Results ResultsData
	Recent  []models.ApplyRecord
}

type ResultsData struct {
	Loading    bool
	ShowTrends bool
	LineChart  ChartData
	BarChart   ChartData
	Trends     []TrendView
	Quality    QualityView
}

// ChartData is handed to the browser as-is for Chart.js to draw.
type ChartData struct {
	Type   string        `json:"type"`
	Title  string        `json:"title"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}

type ChartSeries struct {
	Name  string     `json:"name"`
	Color string     `json:"color"`
	Data  []*float64 `json:"data"`
}

func (c ChartData) Empty() bool {
	return len(c.Labels) == 0 || len(c.Series) == 0
}

type QualityTier struct {
	Name    string
	Label   string
	Count   float64
	Percent float64
}

type QualityView struct {
	Total float64
	Tiers []QualityTier
}

func (q QualityView) Empty() bool { return q.Total == 0 }

type TrendView struct {
	Metric      string
	Direction   string
	Rate        *float64
	Unit        string
	Confidence  *float64
	Seasonality string
	Anomalies   int
}

func newResultsData(st dashboard.State) ResultsData {
	quality := buildQuality(st.Dataset)
	rd := ResultsData{
		Loading:    st.Loading(),
		ShowTrends: st.ShowTrends(),
		Quality:    quality,
	}
	if rd.ShowTrends {
		rd.Trends = buildTrends(st.Trends)
		return rd
	}
	rd.LineChart = buildLineChart(st.Dataset)
	rd.BarChart = buildQualityChart(quality)
	return rd
}

// buildLineChart charts a dataset. Record arrays become one series per metric
// over their dates; summary objects become one point per metric for each
// statistic present.
func buildLineChart(data json.RawMessage) ChartData {
	chart := ChartData{Type: "line", Title: "Climate Data", Labels: []string{}, Series: []ChartSeries{}}
	if len(data) == 0 {
		return chart
	}
	res := gjson.ParseBytes(data)
	switch {
	case res.IsArray():
		return recordsChart(chart, res)
	case res.IsObject():
		chart.Title = "Weighted Summary"
		return summaryChart(chart, res)
	}
	return chart
}

func recordsChart(chart ChartData, res gjson.Result) ChartData {
	type point struct {
		date  string
		value float64
	}
	var (
		order   []string
		byName  = map[string][]point{}
		seenDay = map[string]bool{}
	)
	res.ForEach(func(_, rec gjson.Result) bool {
		date := rec.Get("date").String()
		value := rec.Get("value")
		if date == "" || value.Type != gjson.Number {
			return true
		}
		name := rec.Get("metric").String()
		if name == "" {
			name = "value"
		}
		if _, ok := byName[name]; !ok {
			order = append(order, name)
		}
		byName[name] = append(byName[name], point{date, value.Float()})
		if !seenDay[date] {
			seenDay[date] = true
			chart.Labels = append(chart.Labels, date)
		}
		return true
	})
	sort.Strings(chart.Labels)

	index := make(map[string]int, len(chart.Labels))
	for i, l := range chart.Labels {
		index[l] = i
	}
	for i, name := range order {
		s := ChartSeries{
			Name:  name,
			Color: seriesColors[i%len(seriesColors)],
			Data:  make([]*float64, len(chart.Labels)),
		}
		for _, p := range byName[name] {
			v := p.value
			s.Data[index[p.date]] = &v
		}
		chart.Series = append(chart.Series, s)
	}
	return chart
}

var summaryStats = []struct {
	key   string
	label string
}{
	{"avg", "Average"},
	{"weighted_avg", "Weighted average"},
	{"min", "Min"},
	{"max", "Max"},
}

func summaryChart(chart ChartData, res gjson.Result) ChartData {
	var entries []gjson.Result
	res.ForEach(func(key, val gjson.Result) bool {
		if key.String() == "quality_distribution" || !val.IsObject() {
			return true
		}
		chart.Labels = append(chart.Labels, key.String())
		entries = append(entries, val)
		return true
	})

	for i, stat := range summaryStats {
		s := ChartSeries{Name: stat.label, Color: seriesColors[i%len(seriesColors)], Data: make([]*float64, len(entries))}
		found := false
		for j, e := range entries {
			if v := e.Get(stat.key); v.Type == gjson.Number {
				f := v.Float()
				s.Data[j] = &f
				found = true
			}
		}
		if found {
			chart.Series = append(chart.Series, s)
		}
	}
	return chart
}

// buildQuality counts quality tiers, either from the records' own quality field
// or from a quality_distribution object on a summary.
func buildQuality(data json.RawMessage) QualityView {
	counts := map[string]float64{}
	if len(data) > 0 {
		res := gjson.ParseBytes(data)
		switch {
		case res.IsArray():
			for _, q := range res.Get("#.quality").Array() {
				counts[q.String()]++
			}
		case res.IsObject():
			res.Get("quality_distribution").ForEach(func(key, val gjson.Result) bool {
				if val.Type == gjson.Number {
					counts[key.String()] += val.Float()
				}
				return true
			})
		}
	}

	var view QualityView
	for _, t := range qualityTiers {
		view.Total += counts[string(t.Name)]
	}
	for _, t := range qualityTiers {
		tier := QualityTier{Name: string(t.Name), Label: t.Label, Count: counts[string(t.Name)]}
		if view.Total > 0 {
			tier.Percent = tier.Count / view.Total * 100
		}
		view.Tiers = append(view.Tiers, tier)
	}
	return view
}

func buildQualityChart(q QualityView) ChartData {
	chart := ChartData{Type: "bar", Title: "Data Quality", Labels: []string{}, Series: []ChartSeries{}}
	if q.Empty() {
		return chart
	}
	s := ChartSeries{Name: "Records", Color: seriesColors[0]}
	for _, t := range q.Tiers {
		chart.Labels = append(chart.Labels, t.Label)
		c := t.Count
		s.Data = append(s.Data, &c)
	}
	chart.Series = append(chart.Series, s)
	return chart
}

// buildTrends reads one entry per metric from a trends result.
func buildTrends(data json.RawMessage) []TrendView {
	if len(data) == 0 {
		return nil
	}
	var views []TrendView
	gjson.ParseBytes(data).ForEach(func(key, val gjson.Result) bool {
		if !val.IsObject() {
			return true
		}
		tv := TrendView{
			Metric:      key.String(),
			Direction:   val.Get("trend.direction").String(),
			Unit:        val.Get("trend.unit").String(),
			Seasonality: "Not detected",
			Anomalies:   len(val.Get("anomalies").Array()),
		}
		if tv.Direction == "" {
			tv.Direction = "unknown"
		}
		if r := val.Get("trend.rate"); r.Type == gjson.Number {
			f := r.Float()
			tv.Rate = &f
		}
		if c := val.Get("trend.confidence"); c.Type == gjson.Number {
			f := c.Float()
			tv.Confidence = &f
		}
		if val.Get("seasonality.detected").Bool() {
			tv.Seasonality = "Detected"
			if p := val.Get("seasonality.period").String(); p != "" {
				tv.Seasonality += " (" + p + ")"
			}
		}
		views = append(views, tv)
		return true
	})
	return views
}
