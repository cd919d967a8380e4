package config

import (
	"fmt"
	"net"
)

// pickIP selects a usable non-loopback IPv4 address from the host's
// interfaces, preferring a private address unless mode is "public".
func pickIP(mode string) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			ip = ip.To4()
			if ip == nil {
				continue
			}

			if mode == "private" && isPrivateIP(ip) {
				return ip, nil
			}
			if mode == "public" && !isPrivateIP(ip) {
				return ip, nil
			}
		}
	}
	return nil, fmt.Errorf("no suitable %s interface found", mode)
}

func isPrivateIP(ip net.IP) bool {
	privateBlocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	}
	for _, block := range privateBlocks {
		_, cidr, _ := net.ParseCIDR(block)
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Listen binds a net.Listener for this node. If Host is unset, it picks
// a usable interface address (private unless addressingMode is
// "public"); otherwise it validates the configured Host against
// addressingMode before binding.
func (cfg *NodeConfig) Listen(addressingMode string) (net.Listener, error) {
	host := cfg.Host
	if host == "" {
		ip, err := pickIP(addressingMode)
		if err != nil {
			return nil, err
		}
		host = ip.String()
	} else {
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", host)
		}
		if addressingMode == "private" && !isPrivateIP(ip) {
			return nil, fmt.Errorf("host %s is not private but addressing mode=private", host)
		}
		if addressingMode == "public" && isPrivateIP(ip) {
			return nil, fmt.Errorf("host %s is private but addressing mode=public", host)
		}
	}
	bind := cfg.Bind
	if bind == "" {
		bind = host
	}
	addr := fmt.Sprintf("%s:%d", bind, cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return lis, nil
}
