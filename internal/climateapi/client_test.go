package climateapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lox/ecovision/internal/filters"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/api/v1")
}

func TestToQuery(t *testing.T) {
	tests := []struct {
		name   string
		params []Param
		want   string
	}{
		{"empty", nil, ""},
		{"drops empty values", []Param{{"a", ""}, {"b", "1"}, {"c", ""}}, "b=1"},
		{"keeps insertion order", []Param{{"z", "1"}, {"a", "2"}, {"m", "3"}}, "z=1&a=2&m=3"},
		{"escapes", []Param{{"q", "a b&c"}}, "q=a+b%26c"},
	}
	for _, tt := range tests {
		if got := ToQuery(tt.params); got != tt.want {
			t.Errorf("%s: ToQuery = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGetClimateData_URL(t *testing.T) {
	var gotURI string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		w.Write([]byte(`{"data":[{"date":"2023-01-01","value":1.5,"quality":"good"}],"meta":{"page":1}}`))
	})

	f := filters.State{
		LocationID:       "3",
		StartDate:        "2023-01-01",
		EndDate:          "2023-06-30",
		Metric:           "",
		QualityThreshold: "good",
		AnalysisType:     filters.AnalysisRaw,
	}
	resp, err := c.GetClimateData(context.Background(), f)
	if err != nil {
		t.Fatalf("GetClimateData: %v", err)
	}

	want := "/api/v1/climate?location_id=3&start_date=2023-01-01&end_date=2023-06-30&quality_threshold=good&page=1&per_page=50"
	if gotURI != want {
		t.Errorf("request URI = %s\nwant %s", gotURI, want)
	}
	if !strings.Contains(string(resp.Data), `"quality":"good"`) {
		t.Errorf("Data = %s", resp.Data)
	}
	if string(resp.Meta) != `{"page":1}` {
		t.Errorf("Meta = %s", resp.Meta)
	}
}

func TestGetClimateData_Pagination(t *testing.T) {
	var gotQuery string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":[]}`))
	})

	if _, err := c.GetClimateData(context.Background(), filters.State{Page: 3, PerPage: 10}); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "page=3&per_page=10" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestSummaryAndTrends_NoPagination(t *testing.T) {
	var paths []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		w.Write([]byte(`{"data":{}}`))
	})

	f := filters.State{LocationID: "1", Metric: "temperature", Page: 2, PerPage: 20}
	if _, err := c.GetClimateSummary(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetClimateTrends(context.Background(), f); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"/api/v1/summary?location_id=1&metric=temperature",
		"/api/v1/trends?location_id=1&metric=temperature",
	}
	for i, p := range paths {
		if p != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, p, want[i])
		}
		if strings.Contains(p, "page") {
			t.Errorf("paths[%d] carries pagination: %s", i, p)
		}
	}
}

func TestReferenceLists(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("unexpected query %q on %s", r.URL.RawQuery, r.URL.Path)
		}
		switch r.URL.Path {
		case "/api/v1/locations":
			w.Write([]byte(`{"data":[{"id":1,"name":"Irvine","country":"USA"}]}`))
		case "/api/v1/metrics":
			w.Write([]byte(`{"data":[{"id":1,"name":"temperature","display_name":"Temperature","unit":"celsius"}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	locs, err := c.GetLocations(context.Background())
	if err != nil {
		t.Fatalf("GetLocations: %v", err)
	}
	if len(locs) != 1 || locs[0].Name != "Irvine" || locs[0].Country != "USA" {
		t.Errorf("locations = %+v", locs)
	}

	ms, err := c.GetMetrics(context.Background())
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if len(ms) != 1 || ms[0].Label() != "Temperature" || ms[0].Unit != "celsius" {
		t.Errorf("metrics = %+v", ms)
	}
}

func TestReferenceLists_MissingData(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	locs, err := c.GetLocations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != 0 {
		t.Errorf("locations = %+v, want none", locs)
	}
}

func TestErrors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/summary":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/api/v1/trends":
			w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	})

	_, err := c.GetClimateSummary(context.Background(), filters.State{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Endpoint != EndpointSummary {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if err.Error() != "fetch summary: unexpected status: 500: boom" {
		t.Errorf("Error() = %q", err.Error())
	}

	_, err = c.GetClimateTrends(context.Background(), filters.State{})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusOK {
		t.Errorf("decode failure err = %v", err)
	}

	_, err = c.GetLocations(context.Background())
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("404 err = %v", err)
	}
}

func TestErrorDetail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/locations":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Location not found"}`))
		default:
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`<html><body><p>Bad Gateway</p></body></html>`))
		}
	})

	_, err := c.GetLocations(context.Background())
	if err == nil || err.Error() != "fetch locations: unexpected status: 404: Location not found" {
		t.Errorf("json detail err = %v", err)
	}

	_, err = c.GetMetrics(context.Background())
	if err == nil || err.Error() != "fetch metrics: unexpected status: 502: Bad Gateway" {
		t.Errorf("html detail err = %v", err)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	_, err := c.GetMetrics(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport failure", apiErr.StatusCode)
	}
}

func TestNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := c.GetClimateData(context.Background(), filters.State{}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestRetries(t *testing.T) {
	var calls, badRequests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/climate":
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"data":[]}`))
		default:
			badRequests.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetries(3))
	c.retryInterval = time.Millisecond

	if _, err := c.GetClimateData(context.Background(), filters.State{}); err != nil {
		t.Fatalf("GetClimateData: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}

	// 4xx other than 429 is permanent.
	if _, err := c.GetMetrics(context.Background()); err == nil {
		t.Fatal("expected error for 400")
	}
	if n := badRequests.Load(); n != 1 {
		t.Errorf("400 retried: %d calls, want 1", n)
	}
}

func TestRequestPath(t *testing.T) {
	tests := []struct {
		state filters.State
		want  string
	}{
		{filters.Default(), "/climate?page=1&per_page=50"},
		{filters.State{AnalysisType: filters.AnalysisWeighted, Metric: "humidity"}, "/summary?metric=humidity"},
		{filters.State{AnalysisType: filters.AnalysisTrends}, "/trends"},
	}
	for _, tt := range tests {
		if got := RequestPath(tt.state); got != tt.want {
			t.Errorf("RequestPath(%+v) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
