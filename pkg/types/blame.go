package types

// BlameCode names the layer held responsible for an outage or degradation.
type BlameCode string

const (
	BlameNone             BlameCode = "NONE"
	BlameRouterDown       BlameCode = "ROUTER_DOWN"
	BlameRouterCritical   BlameCode = "ROUTER_CRITICAL"
	BlameRouterDegraded   BlameCode = "ROUTER_DEGRADED"
	BlameISPEquipment     BlameCode = "ISP_EQUIPMENT"
	BlameISPDNS           BlameCode = "ISP_DNS"
	BlameDegradedDNS      BlameCode = "DEGRADED_DNS"
	BlameISPRouting       BlameCode = "ISP_ROUTING"
	BlameDegradedInternet BlameCode = "DEGRADED_INTERNET"
	BlameDegradedQuality  BlameCode = "DEGRADED_QUALITY"
	BlameTransient        BlameCode = "TRANSIENT"
)

func (b BlameCode) String() string {
	return string(b)
}

// Status is the value published under the "status" state key after isolation.
func (b BlameCode) Status() string {
	return "OUTAGE_" + string(b)
}
