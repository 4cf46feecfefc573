package discovery

import (
	"context"
	"net"
	"strconv"
)

const (
	DefaultServiceType = "_noftp._tcp"
	DefaultDomain      = "local"

	// TXT record keys
	textVersion     = "version"
	textControlPort = "control_port"
)

// ServiceInfo describes one NoFTP receiver on the local network. Port is
// the bulk transfer port; ControlPort is zero when the receiver runs no
// session control channel.
type ServiceInfo struct {
	Name        string // instance name
	Type        string // service type, e.g. "_noftp._tcp"
	Domain      string // domain, e.g. "local"
	Addr        net.IP
	Port        int
	ControlPort int
	Version     string
}

// Address is the dialable host:port of the bulk transfer listener.
func (s ServiceInfo) Address() string {
	host := ""
	if s.Addr != nil {
		host = s.Addr.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// DiscoveryResult carries either a snapshot of the known services or an error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, serviceType string) <-chan DiscoveryResult
}

// FirstService waits until adapter reports at least one service and
// returns it.
func FirstService(ctx context.Context, adapter Adapter, serviceType string) (ServiceInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for res := range adapter.Discover(ctx, serviceType) {
		if res.Error != nil {
			return ServiceInfo{}, res.Error
		}
		if len(res.Services) > 0 {
			return res.Services[0], nil
		}
	}
	if err := ctx.Err(); err != nil {
		return ServiceInfo{}, err
	}
	return ServiceInfo{}, ErrNoService
}
