package hafas

import (
	"context"
	"log"
	"time"

	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/transit"
)

// needsProbe reports whether the station's offset is still undetermined.
// Stations with a persisted offset or disabled shifting are never probed again.
func needsProbe(st transit.Station, localtime bool) bool {
	return !localtime && st.TimeOffset == nil && st.ShiftTime
}

// detectOffset compares the first timed departure against the requested hour.
// A mismatch whose zone equals the reference zone disables shifting for the
// station. Any other mismatch is stored as the station's offset. Either way
// the board is fetched once more and that result returned.
func (c *Client) detectOffset(ctx context.Context, q provider.DepartureQuery, data []departure) ([]departure, error) {
	for _, d := range data {
		when, err := provider.ParseTime(str(d.When), c.zone)
		if err != nil || when == nil {
			continue
		}
		offset := hourDelta(when.UTC().Hour(), q.When.UTC().Hour())
		if offset == 0 {
			return data, nil
		}
		st := q.Station
		w := window{station: st, duration: q.Duration, filter: q.Type}

		if sameOffset(*when, c.zone) {
			w.when, w.skipShift = q.When, true
			refetched, err := c.fetchDepartures(ctx, w)
			if err != nil {
				return nil, err
			}
			if err := c.store.SetStationShiftTime(ctx, st.ID, false); err != nil {
				return nil, err
			}
			c.metrics.StationCorrected(provider.CorrectionShiftDisabled)
			log.Printf("station %d: upstream shifts times, disabling shift", st.IBNR)
			return refetched, nil
		}

		w.when = q.When.Add(-time.Duration(offset) * time.Hour)
		refetched, err := c.fetchDepartures(ctx, w)
		if err != nil {
			return nil, err
		}
		if err := c.store.SetStationTimeOffset(ctx, st.ID, offset); err != nil {
			return nil, err
		}
		c.metrics.StationCorrected(provider.CorrectionOffset)
		log.Printf("station %d: detected time offset=%d", st.IBNR, offset)
		return refetched, nil
	}
	return data, nil
}

// hourDelta is got minus want on a 24h clock, folded into [-12, 12].
func hourDelta(got, want int) int {
	d := got - want
	switch {
	case d > 12:
		d -= 24
	case d < -12:
		d += 24
	}
	return d
}

// sameOffset reports whether t carries the UTC offset loc has at that instant.
func sameOffset(t time.Time, loc *time.Location) bool {
	_, got := t.Zone()
	_, want := t.In(loc).Zone()
	return got == want
}
