package source

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
)

// HostNetworks reads per-interface counters through gopsutil.
type HostNetworks struct {
	IncludeLoopback bool
}

func (n *HostNetworks) Name() string { return "network" }

func (n *HostNetworks) Supported(ctx context.Context) bool {
	_, err := net.IOCountersWithContext(ctx, true)
	return err == nil
}

func (n *HostNetworks) SampleNetworks(ctx context.Context) ([]NetReading, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]NetReading, 0, len(counters))
	for _, st := range counters {
		kind := ClassifyInterface(st.Name)
		if kind == model.NetLoopback && !n.IncludeLoopback {
			continue
		}
		out = append(out, NetReading{
			Name: st.Name,
			Kind: kind,
			Counters: rate.Sample{
				Source: "net/" + st.Name,
				At:     now,
				Counters: map[string]uint64{
					CounterRxBytes:   st.BytesRecv,
					CounterTxBytes:   st.BytesSent,
					CounterRxPackets: st.PacketsRecv,
					CounterTxPackets: st.PacketsSent,
				},
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Checked in order, so longer prefixes sharing a stem come first.
var interfaceKinds = []struct {
	prefix string
	kind   model.NetKind
}{
	{"docker", model.NetDocker},
	{"br-", model.NetDocker},
	{"virbr", model.NetVirtual},
	{"veth", model.NetVirtual},
	{"vmnet", model.NetVirtual},
	{"vboxnet", model.NetVirtual},
	{"mpqemu", model.NetVirtual},
	{"br", model.NetBridge},
	{"bridge", model.NetBridge},
	{"tun", model.NetVPN},
	{"tap", model.NetVPN},
	{"utun", model.NetVPN},
	{"wg", model.NetVPN},
	{"ppp", model.NetVPN},
	{"tailscale", model.NetVPN},
	{"ww", model.NetWWAN},
	{"wl", model.NetWireless},
	{"ath", model.NetWireless},
	{"ib", model.NetInfiniBand},
	{"bnep", model.NetBluetooth},
	{"bt", model.NetBluetooth},
	{"en", model.NetWired},
	{"eth", model.NetWired},
	{"em", model.NetWired},
}

// ClassifyInterface guesses an interface's kind from its name.
func ClassifyInterface(name string) model.NetKind {
	lower := strings.ToLower(name)
	if lower == "lo" || strings.HasPrefix(lower, "lo0") || strings.HasPrefix(lower, "loopback") {
		return model.NetLoopback
	}
	for _, k := range interfaceKinds {
		if strings.HasPrefix(lower, k.prefix) {
			return k.kind
		}
	}
	return model.NetOther
}
