// ABOUTME: mDNS service discovery for conference bridges
// ABOUTME: Servers advertise _confbridge._tcp, clients browse for it
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/logger"
)

const (
	// ServiceType is the DNS-SD service advertised by bridge servers.
	ServiceType = "_confbridge._tcp"

	// DefaultPath is the WebSocket path advertised in the TXT record.
	DefaultPath = "/bridge"

	browseTimeout = 3 * time.Second
)

// ErrNotFound is returned by Lookup when no server answered in time.
var ErrNotFound = errors.New("discovery: no bridge server found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	TLS         bool
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	log     *zap.Logger
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
	TLS  bool
}

// Addr returns host:port.
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
		log:     logger.Named("discovery"),
	}
}

// TXTRecords returns the TXT fields advertised for this server.
func (m *Manager) TXTRecords() []string {
	txt := []string{"path=" + m.config.Path}
	if m.config.TLS {
		txt = append(txt, "tls=1")
	}
	return txt
}

// Advertise announces this bridge until Stop is called.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.TXTRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising bridge",
		zap.String("name", m.config.ServiceName),
		zap.Int("port", m.config.Port),
		zap.String("service", ServiceType))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for bridge servers in the background, publishing them
// on Servers until Stop is called.
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for m.ctx.Err() == nil {
		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				info := entryToServer(entry)
				if info == nil {
					continue
				}
				m.log.Info("discovered bridge",
					zap.String("name", info.Name),
					zap.String("addr", info.Addr()))

				select {
				case m.servers <- info:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = browseTimeout
		params.Entries = entries
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			m.log.Warn("mdns query failed", zap.Error(err))
		}
		close(entries)
		<-done
	}
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// Lookup browses until the first server is found or ctx ends.
func Lookup(ctx context.Context) (*ServerInfo, error) {
	m := NewManager(Config{})
	defer m.Stop()
	m.Browse()

	select {
	case info := <-m.Servers():
		return info, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNotFound, ctx.Err())
	}
}

func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	info := &ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: DefaultPath,
	}
	applyTXT(info, entry.InfoFields)
	return info
}

func applyTXT(info *ServerInfo, fields []string) {
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			if value != "" {
				info.Path = value
			}
		case "tls":
			info.TLS = value == "1" || value == "true"
		}
	}
}

// getLocalIPs returns local IP addresses
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
