// Package network enumerates local network interfaces for the io
// configuration surface: bind address pickers for inputs and broadcast
// address pickers for Art-Net outputs.
package network

import (
	"fmt"
	"net"
	"strings"
)

// InterfaceOption is one selectable interface address.
type InterfaceOption struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Broadcast     string `json:"broadcast"`
	Description   string `json:"description"`
	InterfaceType string `json:"interface_type"` // ethernet, wifi, other, localhost, global
}

// interfaceType guesses the medium from common interface naming patterns.
func interfaceType(ifaceName string) string {
	name := strings.ToLower(ifaceName)

	// en0 is typically WiFi on macOS.
	if name == "en0" {
		return "wifi"
	}
	if strings.HasPrefix(name, "wlan") ||
		strings.HasPrefix(name, "wl") ||
		strings.Contains(name, "wifi") ||
		strings.Contains(name, "wireless") {
		return "wifi"
	}
	if strings.HasPrefix(name, "eth") ||
		strings.HasPrefix(name, "en") {
		return "ethernet"
	}
	return "other"
}

func typeIcon(interfaceType string) string {
	switch interfaceType {
	case "wifi":
		return "📶"
	case "ethernet":
		return "🌐"
	case "localhost":
		return "🏠"
	case "global":
		return "🌍"
	default:
		return "📡"
	}
}

// broadcastFor computes the IPv4 directed broadcast address of a subnet.
func broadcastFor(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	if len(mask) == 16 {
		mask = mask[12:16]
	}
	if len(mask) != 4 {
		return nil
	}
	broadcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		broadcast[i] = ip4[i] | ^mask[i]
	}
	return broadcast
}

// Interfaces returns the usable IPv4 interface addresses, ethernet first,
// then wifi, then everything else, always ending with the localhost and
// global-broadcast fallbacks.
func Interfaces() ([]InterfaceOption, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate network interfaces: %w", err)
	}

	var ethernet, wifi, other []InterfaceOption
	for _, iface := range interfaces {
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
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			broadcast := broadcastFor(ip4, ipNet.Mask)
			if broadcast == nil || broadcast.String() == ip4.String() {
				continue
			}

			kind := interfaceType(iface.Name)
			option := InterfaceOption{
				Name:          iface.Name,
				Address:       ip4.String(),
				Broadcast:     broadcast.String(),
				Description:   fmt.Sprintf("%s %s (%s)", typeIcon(kind), iface.Name, broadcast),
				InterfaceType: kind,
			}
			switch kind {
			case "ethernet":
				ethernet = append(ethernet, option)
			case "wifi":
				wifi = append(wifi, option)
			default:
				other = append(other, option)
			}
		}
	}

	options := make([]InterfaceOption, 0, len(ethernet)+len(wifi)+len(other)+2)
	options = append(options, ethernet...)
	options = append(options, wifi...)
	options = append(options, other...)
	options = append(options, InterfaceOption{
		Name:          "localhost",
		Address:       "127.0.0.1",
		Broadcast:     "127.0.0.1",
		Description:   fmt.Sprintf("%s Localhost (for testing only)", typeIcon("localhost")),
		InterfaceType: "localhost",
	})
	options = append(options, InterfaceOption{
		Name:          "global-broadcast",
		Address:       "0.0.0.0",
		Broadcast:     "255.255.255.255",
		Description:   fmt.Sprintf("%s Global Broadcast (255.255.255.255)", typeIcon("global")),
		InterfaceType: "global",
	})
	return options, nil
}
