package registry

import (
	"context"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
)

// Standard advertisement for network MIDI (RTP-MIDI / Apple MIDI) sessions.
const (
	midiServiceType   = "_apple-midi._udp"
	midiServiceDomain = "local."
)

// browseNetwork runs one mDNS browse for network MIDI sessions and resolves
// each advertised instance to host:port. Entries that fail to resolve are
// simply absent from the result.
func browseNetwork(ctx context.Context, timeout time.Duration) ([]NetworkSession, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating mDNS resolver")
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(browseCtx, midiServiceType, midiServiceDomain, entries); err != nil {
		return nil, errors.Wrap(err, "browsing for network MIDI sessions")
	}

	var sessions []NetworkSession
	for entry := range entries {
		if entry == nil {
			continue
		}
		host := ""
		if len(entry.AddrIPv4) > 0 {
			host = entry.AddrIPv4[0].String()
		} else if entry.HostName != "" {
			host = entry.HostName
		}
		sessions = append(sessions, NetworkSession{
			Instance: entry.Instance,
			Host:     host,
			Port:     entry.Port,
		})
	}
	return sessions, nil
}
