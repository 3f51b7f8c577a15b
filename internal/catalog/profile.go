package catalog

import (
	"fmt"
	"net"
	"strings"

	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// ServiceProfile describes one DNS-SD service instance a caller wants to
// advertise (RFC 6763 §4). Domain defaults to "local" and HostName, if
// left empty, is derived from InstanceName and ServiceName.
type ServiceProfile struct {
	InstanceName string
	ServiceName  string // e.g. "_printer._tcp"
	Domain       string // defaults to "local"
	Port         uint16
	HostName     string
	Addresses    []net.IP
	TXT          map[string]string
	Subtypes     []string
}

func (p *ServiceProfile) domain() string {
	if p.Domain != "" {
		return p.Domain
	}
	return "local"
}

// QualifiedService returns "<service-name>.<domain>", e.g.
// "_printer._tcp.local".
func (p *ServiceProfile) QualifiedService() string {
	return p.ServiceName + "." + p.domain()
}

// FullyQualifiedInstance returns "<instance-name>.<qualified-service>".
func (p *ServiceProfile) FullyQualifiedInstance() string {
	return p.InstanceName + "." + p.QualifiedService()
}

// serviceLabel returns the first label of ServiceName with its leading
// underscore stripped and any further underscores mapped to hyphens
// (e.g. "_printer" -> "printer", "_my_svc" -> "my-svc").
func (p *ServiceProfile) serviceLabel() string {
	label := strings.SplitN(p.ServiceName, ".", 2)[0]
	label = strings.TrimPrefix(label, "_")
	return strings.ReplaceAll(label, "_", "-")
}

// EffectiveHostName returns HostName if set, else the default derivation
// "<instance-name>.<service-label>.<domain>".
func (p *ServiceProfile) EffectiveHostName() string {
	if p.HostName != "" {
		return p.HostName
	}
	return fmt.Sprintf("%s.%s.%s", p.InstanceName, p.serviceLabel(), p.domain())
}

// SubtypePTRName returns the owner name of the PTR record advertising
// subtype s for this profile: "<s>._sub.<qualified-service>".
func (p *ServiceProfile) SubtypePTRName(s string) string {
	return s + "._sub." + p.QualifiedService()
}

// Resources returns the canonical record bundle for this profile: one
// SRV pointing at the host name, one TXT (at least "txtvers=1"), and one
// A or AAAA per configured address.
func (p *ServiceProfile) Resources() []wire.RR {
	host := p.EffectiveHostName()
	instance := p.FullyQualifiedInstance()

	records := make([]wire.RR, 0, 2+len(p.Addresses))

	records = append(records, wire.RR{
		Name:       instance,
		Type:       protocol.TypeSRV,
		Class:      protocol.ClassIN,
		CacheFlush: true,
		TTL:        protocol.TTLHostAddr,
		Data:       wire.SRV{Priority: 0, Weight: 0, Port: p.Port, Target: host},
	})

	records = append(records, wire.RR{
		Name:       instance,
		Type:       protocol.TypeTXT,
		Class:      protocol.ClassIN,
		CacheFlush: true,
		TTL:        protocol.TTLShared,
		Data:       wire.TXT{Strings: p.txtStrings()},
	})

	for _, addr := range p.Addresses {
		if v4 := addr.To4(); v4 != nil {
			records = append(records, wire.RR{
				Name:       host,
				Type:       protocol.TypeA,
				Class:      protocol.ClassIN,
				CacheFlush: true,
				TTL:        protocol.TTLHostAddr,
				Data:       wire.A{Address: v4},
			})
			continue
		}
		records = append(records, wire.RR{
			Name:       host,
			Type:       protocol.TypeAAAA,
			Class:      protocol.ClassIN,
			CacheFlush: true,
			TTL:        protocol.TTLHostAddr,
			Data:       wire.AAAA{Address: addr},
		})
	}

	return records
}

func (p *ServiceProfile) txtStrings() []string {
	if len(p.TXT) == 0 {
		return []string{"txtvers=1"}
	}
	strs := make([]string, 0, len(p.TXT)+1)
	if _, ok := p.TXT["txtvers"]; !ok {
		strs = append(strs, "txtvers=1")
	}
	for k, v := range p.TXT {
		strs = append(strs, k+"="+v)
	}
	return strs
}
