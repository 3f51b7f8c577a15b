package discovery

import "github.com/joshuafuller/beacon/internal/mcast"

// Option configures a Service at construction time.
type Option func(*config)

type config struct {
	flattenAdditionals              bool
	filterUnreachable               bool
	probeBeforeAdvertise            bool
	answersContainAdditionalRecords bool
	mcastOpts                       []mcast.Option
}

func defaultConfig() config {
	return config{
		flattenAdditionals:              false,
		filterUnreachable:               true,
		probeBeforeAdvertise:            false,
		answersContainAdditionalRecords: false,
	}
}

// WithFlattenAdditionals merges additional records into the answer
// section instead of keeping them separate. Default: false.
func WithFlattenAdditionals(enabled bool) Option {
	return func(c *config) { c.flattenAdditionals = enabled }
}

// WithReachabilityFilter controls whether answers are pruned to
// addresses reachable from the requester (RFC 6762 §6.2). Default: true.
func WithReachabilityFilter(enabled bool) Option {
	return func(c *config) { c.filterUnreachable = enabled }
}

// WithProbing enables an RFC 6762 §8.1 probe sequence before Advertise
// announces a profile, detecting name conflicts in advance. Off by
// default: spec-level advertise/announce semantics don't require it,
// but it's available for callers who want Bonjour-style conflict
// avoidance.
func WithProbing(enabled bool) Option {
	return func(c *config) { c.probeBeforeAdvertise = enabled }
}

// WithAdditionalRecords controls whether a resolved answer is enriched
// with SRV-target A/AAAA and PTR-target SRV/TXT additionals before it's
// sent. Default: false.
func WithAdditionalRecords(enabled bool) Option {
	return func(c *config) { c.answersContainAdditionalRecords = enabled }
}

// WithMulticastOptions passes options through to the underlying
// multicast service (discovery_interval, use_ipv4, use_ipv6,
// multicast_loopback, ignore_duplicate_messages).
func WithMulticastOptions(opts ...mcast.Option) Option {
	return func(c *config) { c.mcastOpts = append(c.mcastOpts, opts...) }
}
