package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 5 * time.Second}}
}

// Estimate queries OSRM /route between the points. The caller's context
// bounds the whole call; provider failure of any kind maps to ErrUnavailable.
func (o *OSRMClient) Estimate(ctx context.Context, from, to models.Coord) (Route, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		observability.RouteEstimateErrors.Inc()
		return Route{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		observability.RouteEstimateErrors.Inc()
		return Route{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.RouteEstimateErrors.Inc()
		return Route{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		observability.RouteEstimateErrors.Inc()
		return Route{}, fmt.Errorf("%w: osrm code %q", ErrUnavailable, out.Code)
	}
	observability.RouteEstimateDuration.Observe(time.Since(start).Seconds())

	r := out.Routes[0]
	return Route{
		DistanceKm: math.Round(r.Distance/1000.0*100) / 100,
		Duration:   FormatDuration(r.Duration),
	}, nil
}

// FormatDuration renders seconds as the human label downstream parsers
// expect: "30 sec", "5 min", "1 hour 5 min", "2 hours 10 min 30 sec".
func FormatDuration(seconds float64) string {
	s := int(seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("%d sec", s)
	case s < 3600:
		return fmt.Sprintf("%d min", s/60)
	default:
		hours := s / 3600
		minutes := (s % 3600) / 60
		secs := s % 60
		unit := "hour"
		if hours > 1 {
			unit = "hours"
		}
		out := fmt.Sprintf("%d %s %d min", hours, unit, minutes)
		if secs > 0 {
			out += fmt.Sprintf(" %d sec", secs)
		}
		return out
	}
}
