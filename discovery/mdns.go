// Package discovery advertises a running dtsflow distribution endpoint
// over mDNS and browses for other instances on the local network.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/hashicorp/mdns"
)

// Config holds discovery configuration for a single distribution
// endpoint.
type Config struct {
	ServiceName string
	Port        int
}

// serviceType is the mDNS service type dtsflow instances advertise and
// browse for.
const serviceType = "_dtsflow._tcp"

// Manager handles mDNS advertise/browse operations for one endpoint.
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered dtsflow distribution endpoint.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// NewManager creates a discovery Manager for config.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise publishes this endpoint's service record via mDNS. It
// returns once the service is registered; the mDNS server keeps running
// until Stop is called.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"proto=dts"},
	)
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("create mdns server: %w", err)
	}

	slog.Info("advertising mdns service", "name", m.config.ServiceName, "port", m.config.Port, "type", serviceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse starts a background loop searching for other dtsflow endpoints
// on the local network. Discovered endpoints are sent on the Servers
// channel.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				server := &ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				slog.Debug("discovered endpoint", "name", server.Name, "host", server.Host, "port", server.Port)

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		mdns.Query(&mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3,
			Entries: entries,
		})
		close(entries)
	}
}

// Servers returns the channel of discovered endpoints.
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop shuts down advertising and browsing.
func (m *Manager) Stop() {
	m.cancel()
}

func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
