package discovery

import (
	"net"
	"testing"
)

func TestReachableFrom_LoopbackRemoteAlwaysReachable(t *testing.T) {
	if !reachableFrom(net.IPv4(10, 0, 0, 5), nil, net.IPv4(127, 0, 0, 1), "") {
		t.Error("a loopback remote should always be treated as reachable")
	}
}

func TestReachableFrom_NilCandidateOrRemoteIsReachable(t *testing.T) {
	if !reachableFrom(nil, nil, net.IPv4(10, 0, 0, 1), "") {
		t.Error("a nil candidate address should not be filtered out")
	}
	if !reachableFrom(net.IPv4(10, 0, 0, 1), nil, nil, "") {
		t.Error("a nil remote address should not be filtered out")
	}
}

func TestReachableFrom_IPv4FallsBackToClassCCheck(t *testing.T) {
	cases := []struct {
		name      string
		candidate net.IP
		remote    net.IP
		want      bool
	}{
		{"same /24", net.IPv4(192, 168, 1, 5), net.IPv4(192, 168, 1, 200), true},
		{"different /24", net.IPv4(192, 168, 1, 5), net.IPv4(192, 168, 2, 200), false},
	}
	for _, c := range cases {
		if got := reachableFrom(c.candidate, nil, c.remote, ""); got != c.want {
			t.Errorf("%s: reachableFrom = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestReachableFrom_IPv6WithoutZoneIsReachable(t *testing.T) {
	candidate := net.ParseIP("fe80::1")
	remote := net.ParseIP("fe80::2")
	if !reachableFrom(candidate, nil, remote, "") {
		t.Error("an IPv6 remote with no scope id should not be filtered out")
	}
}
