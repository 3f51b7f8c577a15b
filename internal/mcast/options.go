package mcast

import "time"

// Option configures a Service at construction time, following the
// functional-options pattern.
type Option func(*config)

type config struct {
	discoveryInterval       time.Duration
	multicastLoopback       bool
	useIPv4                 bool
	useIPv6                 bool
	ignoreDuplicateMessages bool

	rateLimitThreshold  int
	rateLimitCooldown   time.Duration
	rateLimitMaxTracked int
}

func defaultConfig() config {
	return config{
		discoveryInterval:       2 * time.Minute,
		multicastLoopback:       true,
		useIPv4:                 true,
		useIPv6:                 true,
		ignoreDuplicateMessages: true,
		rateLimitThreshold:      0,
	}
}

// WithDiscoveryInterval sets how often the NIC monitor re-polls the
// interface list. Default: 2 minutes.
func WithDiscoveryInterval(d time.Duration) Option {
	return func(c *config) { c.discoveryInterval = d }
}

// WithMulticastLoopback controls whether sender sockets loop their own
// transmissions back to the local receiver. Default: true.
func WithMulticastLoopback(enabled bool) Option {
	return func(c *config) { c.multicastLoopback = enabled }
}

// WithIPv4 enables or disables the IPv4 plane. Default: true.
func WithIPv4(enabled bool) Option {
	return func(c *config) { c.useIPv4 = enabled }
}

// WithIPv6 enables or disables the IPv6 plane. Default: true.
func WithIPv6(enabled bool) Option {
	return func(c *config) { c.useIPv6 = enabled }
}

// WithDuplicateSuppression controls whether send_answer consults the
// recent-message cache. Default: true.
func WithDuplicateSuppression(enabled bool) Option {
	return func(c *config) { c.ignoreDuplicateMessages = enabled }
}

// WithQueryRateLimit drops queries from a source address once it sends
// more than threshold queries per second, for cooldown, tracking at
// most maxTracked distinct sources at a time. Disabled by default: a
// single slow multicast segment should never silently lose queries
// unless the operator has seen a reason to bound one.
func WithQueryRateLimit(threshold int, cooldown time.Duration, maxTracked int) Option {
	return func(c *config) {
		c.rateLimitThreshold = threshold
		c.rateLimitCooldown = cooldown
		c.rateLimitMaxTracked = maxTracked
	}
}
