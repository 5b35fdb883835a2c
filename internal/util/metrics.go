package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const metricsNamespace = "tunrelay"

// RegisterMetrics exposes Stats through reg. The collectors read the atomic
// counters at scrape time, so nothing on the packet path touches Prometheus.
func RegisterMetrics(reg prometheus.Registerer) error {
	counter := func(name, help string, v func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v()) })
	}

	collectors := []prometheus.Collector{
		counter("peers_accepted_total", "Peers attached since start.", Stats.PeersAccepted.Load),
		counter("peers_closed_total", "Peers closed since start.", Stats.PeersClosed.Load),
		counter("sent_bytes_total", "Envelope bytes written to peers.", Stats.BytesSent.Load),
		counter("received_bytes_total", "Envelope bytes read from peers.", Stats.BytesRecv.Load),
		counter("tun_read_packets_total", "Packets read from the TUN device.", Stats.PacketsFromTUN.Load),
		counter("tun_written_packets_total", "Packets written to the TUN device.", Stats.PacketsToTUN.Load),
		counter("dropped_packets_total", "Packets or envelopes dropped on a per-packet error.", Stats.Dropped.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_peers",
			Help:      "Peers currently attached.",
		}, func() float64 { return float64(Stats.ActivePeers()) }),
	}

	var err error
	for _, c := range collectors {
		err = multierr.Append(err, reg.Register(c))
	}
	return err
}
