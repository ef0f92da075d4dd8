package worker

import (
	"context"
	"time"
)

// DefaultDNSRefreshInterval is how often cached origin lookups are refreshed.
const DefaultDNSRefreshInterval = 5 * time.Minute

// Refresher is the subset of *dnscache.Resolver the refresher drives.
type Refresher interface {
	Refresh(clearUnused bool)
}

// DNSRefresher periodically refreshes the origin DNS cache so the transport
// picks up address changes without a restart.
type DNSRefresher struct {
	resolver Refresher
	interval time.Duration
}

// NewDNSRefresher returns a refresher ticking every interval. A non-positive
// interval selects DefaultDNSRefreshInterval.
func NewDNSRefresher(resolver Refresher, interval time.Duration) *DNSRefresher {
	if interval <= 0 {
		interval = DefaultDNSRefreshInterval
	}
	return &DNSRefresher{resolver: resolver, interval: interval}
}

// Name implements Named.
func (d *DNSRefresher) Name() string { return "dns_refresh" }

// Run refreshes on every tick until ctx is done.
func (d *DNSRefresher) Run(ctx context.Context) error {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			d.resolver.Refresh(true)
		}
	}
}
