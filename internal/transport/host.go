package transport

import (
	"fmt"

	"github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ws "github.com/libp2p/go-libp2p/p2p/transport/websocket"
	multiaddr "github.com/multiformats/go-multiaddr"
)

// HostConfig carries the pieces of internal/config's resolved node
// configuration that govern libp2p host construction, decoupled from
// that package to avoid an import cycle (internal/config depends on
// pkg/node, not on internal/transport).
type HostConfig struct {
	Identity        p2pcrypto.PrivKey
	ListenAddresses []string

	EnableRelay        bool
	RelayAddrs         []string
	ForcePrivate       bool
	EnableNATPortMap   bool
	EnableHolePunching bool
}

// NewHost constructs the libp2p host a Reactor drives, grounded on the
// teacher's tcp+quic+websocket transport stack plus optional relay and
// hole-punching support for nodes behind NAT.
func NewHost(cfg HostConfig) (host.Host, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("transport: host identity is required")
	}

	opts := []libp2p.Option{
		libp2p.Identity(cfg.Identity),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.Transport(ws.New),
	}

	if len(cfg.ListenAddresses) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddresses...))
	}

	if cfg.EnableRelay {
		relays, err := parseRelayAddrs(cfg.RelayAddrs)
		if err != nil {
			return nil, fmt.Errorf("transport: parsing relay addresses: %w", err)
		}
		if len(relays) > 0 {
			opts = append(opts, libp2p.EnableAutoRelayWithStaticRelays(relays))
		}
		if cfg.EnableNATPortMap {
			opts = append(opts, libp2p.NATPortMap())
		}
		if cfg.EnableHolePunching {
			opts = append(opts, libp2p.EnableHolePunching())
		}
		if cfg.ForcePrivate {
			opts = append(opts, libp2p.ForceReachabilityPrivate())
		}
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: creating libp2p host: %w", err)
	}
	return h, nil
}

// parseRelayAddrs parses relay multiaddrs into peer.AddrInfo, merging
// addresses that belong to the same relay peer.
func parseRelayAddrs(addrs []string) ([]peer.AddrInfo, error) {
	var infos []peer.AddrInfo
	seen := make(map[peer.ID]bool)
	for _, s := range addrs {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid relay addr %s: %w", s, err)
		}
		ai, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			return nil, fmt.Errorf("cannot parse relay addr %s: %w", s, err)
		}
		if seen[ai.ID] {
			for i := range infos {
				if infos[i].ID == ai.ID {
					infos[i].Addrs = append(infos[i].Addrs, ai.Addrs...)
				}
			}
			continue
		}
		seen[ai.ID] = true
		infos = append(infos, *ai)
	}
	return infos, nil
}
