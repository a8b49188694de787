// Package metrics exposes the link and transport layer's running counters
// as a Prometheus Collector, so an operator can graph framing health
// (CRC failures, resyncs, unmatched responses) over the life of a long
// running observe process.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/gateway/transport"
)

const namespace = "taptap"

type linkDescs struct {
	bytesIn       *prometheus.Desc
	framesEmitted *prometheus.Desc
	crcFailures   *prometheus.Desc
	shortFrames   *prometheus.Desc
	resyncs       *prometheus.Desc
	escapeErrors  *prometheus.Desc
}

type transportDescs struct {
	unmatchedResponses *prometheus.Desc
}

// Collector reports a single link.Receiver's and transport.Receiver's
// counters on each scrape. It holds no mutable counters itself: Collect
// just reads whatever the two receivers have accumulated so far.
type Collector struct {
	mu        sync.Mutex
	link      *link.Receiver
	transport *transport.Receiver

	linkDescs      linkDescs
	transportDescs transportDescs
}

// NewCollector builds a Collector reporting linkReceiver's and
// transportReceiver's counters under constLabels (typically the link's
// source, e.g. {"source": "tcp://gateway:7160"}).
func NewCollector(linkReceiver *link.Receiver, transportReceiver *transport.Receiver, constLabels prometheus.Labels) *Collector {
	return &Collector{
		link:      linkReceiver,
		transport: transportReceiver,
		linkDescs: linkDescs{
			bytesIn:       prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", "bytes_in_total"), "Bytes read from the physical connection.", nil, constLabels),
			framesEmitted: prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", "frames_emitted_total"), "Frames that passed CRC and were delivered to the transport layer.", nil, constLabels),
			crcFailures:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", "crc_failures_total"), "Frames discarded for a CRC mismatch.", nil, constLabels),
			shortFrames:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", "short_frames_total"), "Frames discarded for being shorter than a minimum valid body.", nil, constLabels),
			resyncs:       prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", "resyncs_total"), "Times the receiver abandoned an in-progress body and hunted for a new preamble.", nil, constLabels),
			escapeErrors:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", "escape_errors_total"), "Escape bytes followed by an unrecognized byte.", nil, constLabels),
		},
		transportDescs: transportDescs{
			unmatchedResponses: prometheus.NewDesc(prometheus.BuildFQName(namespace, "transport", "unmatched_responses_total"), "Responses that arrived with no matching pending request.", nil, constLabels),
		},
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.linkDescs.bytesIn
	descs <- c.linkDescs.framesEmitted
	descs <- c.linkDescs.crcFailures
	descs <- c.linkDescs.shortFrames
	descs <- c.linkDescs.resyncs
	descs <- c.linkDescs.escapeErrors
	descs <- c.transportDescs.unmatchedResponses
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lc := c.link.Counters()
	metrics <- prometheus.MustNewConstMetric(c.linkDescs.bytesIn, prometheus.CounterValue, float64(lc.BytesIn))
	metrics <- prometheus.MustNewConstMetric(c.linkDescs.framesEmitted, prometheus.CounterValue, float64(lc.FramesEmitted))
	metrics <- prometheus.MustNewConstMetric(c.linkDescs.crcFailures, prometheus.CounterValue, float64(lc.CRCFailures))
	metrics <- prometheus.MustNewConstMetric(c.linkDescs.shortFrames, prometheus.CounterValue, float64(lc.ShortFrames))
	metrics <- prometheus.MustNewConstMetric(c.linkDescs.resyncs, prometheus.CounterValue, float64(lc.Resyncs))
	metrics <- prometheus.MustNewConstMetric(c.linkDescs.escapeErrors, prometheus.CounterValue, float64(lc.EscapeErrors))

	tc := c.transport.Counters()
	metrics <- prometheus.MustNewConstMetric(c.transportDescs.unmatchedResponses, prometheus.CounterValue, float64(tc.UnmatchedResponses))
}
