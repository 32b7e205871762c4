package usage

import (
	"sort"
	"time"
)

// EndpointBreakdown aggregates one endpoint's share of a report.
type EndpointBreakdown struct {
	Endpoint string
	Requests int64
	Units    int64
	Cents    int64
}

// Report summarizes a credential's usage over a period (value type).
type Report struct {
	Credential    string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TotalRequests int64
	TotalUnits    int64
	TotalCents    int64
	Endpoints     []EndpointBreakdown
}

// BuildReport aggregates records into per-endpoint breakdowns plus
// totals. Records outside the period or for other credentials are
// skipped. Breakdowns are sorted by endpoint key for determinism.
// This is a PURE function.
func BuildReport(records []Record, credential string, start, end time.Time) Report {
	report := Report{
		Credential:  credential,
		PeriodStart: start,
		PeriodEnd:   end,
	}

	byEndpoint := make(map[string]*EndpointBreakdown)
	for _, r := range records {
		if r.Credential != credential {
			continue
		}
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}

		b, ok := byEndpoint[r.Endpoint]
		if !ok {
			b = &EndpointBreakdown{Endpoint: r.Endpoint}
			byEndpoint[r.Endpoint] = b
		}
		b.Requests++
		b.Units += r.CostUnits
		b.Cents += r.CostCents

		report.TotalRequests++
		report.TotalUnits += r.CostUnits
		report.TotalCents += r.CostCents
	}

	report.Endpoints = make([]EndpointBreakdown, 0, len(byEndpoint))
	for _, b := range byEndpoint {
		report.Endpoints = append(report.Endpoints, *b)
	}
	sort.Slice(report.Endpoints, func(i, j int) bool {
		return report.Endpoints[i].Endpoint < report.Endpoints[j].Endpoint
	})

	return report
}

// PeriodBounds returns the start and end of the billing period
// containing t (calendar month).
// This is a PURE function.
func PeriodBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return
}
