package registry

import (
	"github.com/arkadyv/diagent"
)

// Canonical tool names of the diagnostic sequence. The orchestrator embeds
// this ordering in the system prompt and hands it to the validator as the
// expected sequence.
const (
	ToolCheckAdapterStatus = "check_adapter_status"
	ToolGetIPConfig        = "get_ip_config"
	ToolPingGateway        = "ping_gateway"
	ToolResolveDNS         = "resolve_dns"
	ToolCheckInternet      = "check_internet"
)

// DiagnosticSequence is the expected evidence-gathering order: physical
// adapter first, then addressing, then the local gateway, then name
// resolution, then wide-area reachability.
func DiagnosticSequence() []string {
	return []string{
		ToolCheckAdapterStatus,
		ToolGetIPConfig,
		ToolPingGateway,
		ToolResolveDNS,
		ToolCheckInternet,
	}
}

// NetworkProbes supplies the I/O implementations for the diagnostic tools.
// SystemProbes provides host-backed defaults; tests and embedders inject
// their own.
type NetworkProbes struct {
	CheckAdapterStatus Handler
	GetIPConfig        Handler
	PingGateway        Handler
	ResolveDNS         Handler
	CheckInternet      Handler
}

// RegisterNetworkTools registers the five diagnostic tool definitions with
// the given probe handlers. Probes left nil are skipped, so callers can
// register a subset on platforms where a probe is unavailable.
func RegisterNetworkTools(r *InMemory, probes NetworkProbes) *InMemory {
	defs := []struct {
		def     diagent.ToolDefinition
		handler Handler
	}{
		{
			def: diagent.ToolDefinition{
				Name:        ToolCheckAdapterStatus,
				Description: "Check whether the network adapter is up, its link state, and its media type.",
				Parameters: []diagent.ParameterSpec{
					{
						Name:        "adapter",
						Type:        diagent.ParamString,
						Description: "Adapter name to inspect. Omit to inspect all adapters.",
					},
				},
				Examples: []string{`{"adapter": "Wi-Fi"}`},
			},
			handler: probes.CheckAdapterStatus,
		},
		{
			def: diagent.ToolDefinition{
				Name:        ToolGetIPConfig,
				Description: "Get IP configuration: address, subnet mask, default gateway, DHCP state, and DNS servers.",
				Parameters: []diagent.ParameterSpec{
					{
						Name:        "family",
						Type:        diagent.ParamString,
						Description: "Address family to report.",
						Enum:        []any{"ipv4", "ipv6", "all"},
						Default:     "all",
					},
				},
			},
			handler: probes.GetIPConfig,
		},
		{
			def: diagent.ToolDefinition{
				Name:        ToolPingGateway,
				Description: "Ping the default gateway to test local network reachability.",
				Parameters: []diagent.ParameterSpec{
					{
						Name:        "count",
						Type:        diagent.ParamNumber,
						Description: "Number of echo requests to send.",
						Default:     4,
					},
				},
			},
			handler: probes.PingGateway,
		},
		{
			def: diagent.ToolDefinition{
				Name:        ToolResolveDNS,
				Description: "Resolve a hostname to test DNS functionality.",
				Parameters: []diagent.ParameterSpec{
					{
						Name:        "hostname",
						Type:        diagent.ParamString,
						Description: "Hostname to resolve.",
						Required:    true,
					},
					{
						Name:        "record_type",
						Type:        diagent.ParamString,
						Description: "DNS record type to query.",
						Enum:        []any{"A", "AAAA", "CNAME", "MX", "TXT"},
						Default:     "A",
					},
				},
				Examples: []string{`{"hostname": "example.com", "record_type": "A"}`},
			},
			handler: probes.ResolveDNS,
		},
		{
			def: diagent.ToolDefinition{
				Name:        ToolCheckInternet,
				Description: "Test internet reachability by contacting a well-known external endpoint.",
				Parameters: []diagent.ParameterSpec{
					{
						Name:        "endpoint",
						Type:        diagent.ParamString,
						Description: "Endpoint to contact. Omit for the default probe target.",
					},
				},
			},
			handler: probes.CheckInternet,
		},
	}

	for _, d := range defs {
		if d.handler == nil {
			continue
		}
		r.Register(d.def, d.handler)
	}
	return r
}
