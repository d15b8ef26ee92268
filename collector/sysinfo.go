package collector

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// HostInfo describes the machine being watched.
type HostInfo struct {
	Hostname       string   `json:"hostname"`
	OS             string   `json:"os"`
	Platform       string   `json:"platform"`
	KernelVersion  string   `json:"kernel_version"`
	Virtualization string   `json:"virtualization"`
	UptimeSeconds  uint64   `json:"uptime_seconds"`
	IPs            []string `json:"ips,omitempty"`
}

// ReadHostInfo collects hostname, platform, virtualization and up to three
// host IP addresses.
func ReadHostInfo(ctx context.Context) (HostInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("host info: %w", err)
	}
	info := HostInfo{
		Hostname:       hi.Hostname,
		OS:             hi.OS,
		Platform:       strings.TrimSpace(hi.Platform + " " + hi.PlatformVersion),
		KernelVersion:  hi.KernelVersion,
		Virtualization: virtualization(hi.VirtualizationSystem, hi.VirtualizationRole),
		UptimeSeconds:  hi.Uptime,
		IPs:            collectIPs(),
	}
	return info, nil
}

func virtualization(system, role string) string {
	switch {
	case system == "":
		return "Bare Metal"
	case role == "host":
		return "Host (" + system + ")"
	default:
		return "Guest (" + system + ")"
	}
}

func collectIPs() []string {
	var ips []string
	ifaces, err := net.Interfaces()
	if err != nil {
		return ips
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}
			if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			ips = append(ips, ip.String())
			if len(ips) >= 3 {
				return ips
			}
		}
	}
	return ips
}

// isVirtualInterface reports container and overlay interfaces, which do not
// carry host addresses.
func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	for _, prefix := range []string{"docker", "veth", "br-", "cni", "flannel", "cali", "tunl", "weave"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
