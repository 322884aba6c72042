package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// SystemProbes returns NetworkProbes backed by the host's network stack.
// They are best-effort portable: adapter and address probes read the
// interface table, and reachability probes use TCP and HTTP instead of raw
// ICMP, which needs elevated privileges on most platforms.
func SystemProbes() NetworkProbes {
	return NetworkProbes{
		CheckAdapterStatus: probeAdapterStatus,
		GetIPConfig:        probeIPConfig,
		PingGateway:        probePingGateway,
		ResolveDNS:         probeResolveDNS,
		CheckInternet:      probeCheckInternet,
	}
}

func probeAdapterStatus(ctx context.Context, args map[string]any) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}

	type adapter struct {
		Name  string `json:"name"`
		Up    bool   `json:"up"`
		Flags string `json:"flags"`
		MTU   int    `json:"mtu"`
	}
	var adapters []adapter
	anyUp := false
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		up := iface.Flags&net.FlagUp != 0
		anyUp = anyUp || up
		adapters = append(adapters, adapter{
			Name:  iface.Name,
			Up:    up,
			Flags: iface.Flags.String(),
			MTU:   iface.MTU,
		})
	}

	return marshalProbe(map[string]any{
		"adapters":    adapters,
		"any_link_up": anyUp,
	})
}

func probeIPConfig(ctx context.Context, args map[string]any) (string, error) {
	family := "all"
	if f, ok := args["family"].(string); ok && f != "" {
		family = f
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}

	configs := map[string][]string{}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			isV4 := ipNet.IP.To4() != nil
			if family == "ipv4" && !isV4 {
				continue
			}
			if family == "ipv6" && isV4 {
				continue
			}
			configs[iface.Name] = append(configs[iface.Name], ipNet.String())
		}
	}

	return marshalProbe(map[string]any{
		"family":     family,
		"interfaces": configs,
	})
}

// probePingGateway measures reachability of the default-route next hop. The
// gateway address is inferred as .1 of the local /24, which is right for
// the home and office networks this assistant targets; the probe is a TCP
// connect rather than ICMP echo.
func probePingGateway(ctx context.Context, args map[string]any) (string, error) {
	count := pingCount(args)

	gateway, err := inferGateway()
	if err != nil {
		return "", err
	}

	var sent, received int
	var total time.Duration
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		sent++
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(gateway, "80"))
		elapsed := time.Since(start)
		if err == nil {
			conn.Close()
			received++
			total += elapsed
		} else if isRefused(err) {
			// Connection refused still proves the host is alive.
			received++
			total += elapsed
		}
	}

	result := map[string]any{
		"gateway":  gateway,
		"sent":     sent,
		"received": received,
		"loss_pct": 100 * (sent - received) / sent,
	}
	if received > 0 {
		result["avg_rtt_ms"] = (total / time.Duration(received)).Milliseconds()
	}
	return marshalProbe(result)
}

func probeResolveDNS(ctx context.Context, args map[string]any) (string, error) {
	hostname, _ := args["hostname"].(string)
	if hostname == "" {
		return "", fmt.Errorf("hostname is required")
	}
	recordType := "A"
	if rt, ok := args["record_type"].(string); ok && rt != "" {
		recordType = strings.ToUpper(rt)
	}

	resolver := &net.Resolver{}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var records []string
	var err error
	switch recordType {
	case "A", "AAAA":
		var ips []net.IP
		ips, err = resolver.LookupIP(lookupCtx, ipNetwork(recordType), hostname)
		for _, ip := range ips {
			records = append(records, ip.String())
		}
	case "CNAME":
		var cname string
		cname, err = resolver.LookupCNAME(lookupCtx, hostname)
		if err == nil {
			records = append(records, cname)
		}
	case "MX":
		var mxs []*net.MX
		mxs, err = resolver.LookupMX(lookupCtx, hostname)
		for _, mx := range mxs {
			records = append(records, fmt.Sprintf("%s (pref %d)", mx.Host, mx.Pref))
		}
	case "TXT":
		records, err = resolver.LookupTXT(lookupCtx, hostname)
	default:
		return "", fmt.Errorf("unsupported record type %q", recordType)
	}
	if err != nil {
		return "", fmt.Errorf("resolving %s %s: %w", recordType, hostname, err)
	}

	return marshalProbe(map[string]any{
		"hostname":    hostname,
		"record_type": recordType,
		"records":     records,
	})
}

func probeCheckInternet(ctx context.Context, args map[string]any) (string, error) {
	// Two independent checks so a DNS outage is distinguishable from a
	// full connectivity loss.
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	conn, tcpErr := dialer.DialContext(ctx, "tcp", "1.1.1.1:443")
	if tcpErr == nil {
		conn.Close()
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://connectivity-check.ubuntu.com/", nil)
	resp, httpErr := client.Do(req)
	if httpErr == nil {
		resp.Body.Close()
	}

	result := map[string]any{
		"tcp_reachable":  tcpErr == nil,
		"http_reachable": httpErr == nil,
		"online":         tcpErr == nil || httpErr == nil,
	}
	if tcpErr != nil {
		result["tcp_error"] = tcpErr.Error()
	}
	if httpErr != nil {
		result["http_error"] = httpErr.Error()
	}
	return marshalProbe(result)
}

// pingCount extracts the requested probe count. Missing, non-numeric, and
// sub-1 values (a fractional count would truncate to zero probes) keep the
// default of 4.
func pingCount(args map[string]any) int {
	if c, ok := args["count"].(float64); ok && int(c) >= 1 {
		return int(c)
	}
	return 4
}

// inferGateway derives the default gateway as host .1 of the local
// interface's /24, discovered via a connected UDP socket. No packet is sent.
func inferGateway() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:53")
	if err != nil {
		return "", fmt.Errorf("no route to infer gateway from: %w", err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || local.IP.To4() == nil {
		return "", fmt.Errorf("could not determine local IPv4 address")
	}
	ip := local.IP.To4()
	return fmt.Sprintf("%d.%d.%d.1", ip[0], ip[1], ip[2]), nil
}

func ipNetwork(recordType string) string {
	if recordType == "AAAA" {
		return "ip6"
	}
	return "ip4"
}

func isRefused(err error) bool {
	return err != nil && strings.Contains(err.Error(), "connection refused")
}

func marshalProbe(v map[string]any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
