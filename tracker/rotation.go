package tracker

import (
	"context"
	"time"
)

// trackerState tracks one tracker's eligibility to be re-announced to.
type trackerState struct {
	client      *Client
	lastVisited time.Time
	interval    time.Duration
	visited     bool
}

// Manager announces to a set of trackers (flattened from a torrent's
// announce and announce-list fields) and unions their peers. Each tracker
// is only re-contacted once its own interval has elapsed, so a fast
// tracker doesn't get hammered at the slowest tracker's pace and a slow or
// dead tracker doesn't hold up the others.
type Manager struct {
	trackers []*trackerState
}

// NewManager builds a Manager over the given announce URLs, in order, with
// duplicates removed. Every tracker is eligible for its first announce;
// after that, defaultInterval is its re-announce interval until one of its
// responses reports a positive interval of its own.
func NewManager(urls []string, defaultInterval time.Duration) *Manager {
	seen := make(map[string]bool, len(urls))
	m := &Manager{}
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		m.trackers = append(m.trackers, &trackerState{
			client:   NewClient(u),
			interval: defaultInterval,
		})
	}
	return m
}

// eligible reports whether t is due for a re-announce at now.
func (t *trackerState) eligible(now time.Time) bool {
	if !t.visited {
		return true
	}
	return !now.Before(t.lastVisited.Add(t.interval))
}

// AnnounceAll announces to every eligible tracker, in order, and returns
// the union of peers across the successful responses exactly once each
// (a peer reachable through two trackers is not duplicated). A tracker
// that errors is skipped; its eligibility is left untouched so it is
// retried on the next call rather than backed off.
func (m *Manager) AnnounceAll(ctx context.Context, req AnnounceRequest, now time.Time) ([]Endpoint, []error) {
	var (
		peers  []Endpoint
		errs   []error
		unique = make(map[string]bool)
	)
	for _, t := range m.trackers {
		if !t.eligible(now) {
			continue
		}
		resp, err := t.client.Announce(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		t.visited = true
		t.lastVisited = now
		if resp.Interval > 0 {
			t.interval = resp.Interval
		}
		for _, p := range resp.Peers {
			key := p.String()
			if unique[key] {
				continue
			}
			unique[key] = true
			peers = append(peers, p)
		}
	}
	return peers, errs
}
