package discovery

import "net"

// reachableFrom reports whether candidate is reachable from remote per
// the link-local reachability rule: they share an IPv4 subnet or IPv6
// scope id, or remote is a loopback address, in which case every
// candidate is treated as reachable.
func reachableFrom(candidate net.IP, local, remote net.IP, remoteZone string) bool {
	if candidate == nil || remote == nil {
		return true
	}

	if remote.IsLoopback() {
		return true
	}

	if c4, r4 := candidate.To4(), remote.To4(); c4 != nil && r4 != nil {
		if mask := subnetMaskFor(local); mask != nil {
			return c4.Mask(mask).Equal(r4.Mask(mask))
		}
		return sameIPv4Class(c4, r4)
	}

	if candidate.To4() == nil && remote.To4() == nil {
		if remoteZone == "" {
			return true
		}
		return interfaceHasAddress(remoteZone, candidate)
	}

	return false
}

// subnetMaskFor looks up the subnet mask of the local interface address
// matching local, if any local interface carries it.
func subnetMaskFor(local net.IP) net.IPMask {
	if local == nil {
		return nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.Equal(local) {
			return ipnet.Mask
		}
	}
	return nil
}

// sameIPv4Class is a fallback when the local interface's mask can't be
// looked up: treat addresses in the same /24 as reachable.
func sameIPv4Class(a, b net.IP) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}

// interfaceHasAddress reports whether the named interface carries ip
// among its addresses, used to validate an IPv6 scope id.
func interfaceHasAddress(ifaceName string, ip net.IP) bool {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return true
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return true
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if ok && ipnet.IP.Equal(ip) {
			return true
		}
	}
	return false
}
