// Package metrics instruments the SDK with a private prometheus registry the
// embedding application can mount wherever it serves metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry         *prometheus.Registry
	auctionsTotal    *prometheus.CounterVec
	bidsReceived     prometheus.Counter
	bidRejections    *prometheus.CounterVec
	metaTxTotal      *prometheus.CounterVec
	auctionDuration  prometheus.Histogram
	transfersByState *prometheus.CounterVec
}

func NewRegistry() *Registry {
	auctions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transferkit_auctions_total",
		Help: "Auctions run, by outcome",
	}, []string{"result"})

	bids := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transferkit_bids_received_total",
		Help: "Bids received across all auctions",
	})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transferkit_bid_rejections_total",
		Help: "Bids rejected during validation, by reason",
	}, []string{"reason"})

	metaTx := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transferkit_metatx_total",
		Help: "Meta-tx fulfill attempts, by outcome",
	}, []string{"result"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "transferkit_auction_duration_seconds",
		Help:    "Wall time from auction open to resolution",
		Buckets: prometheus.DefBuckets,
	})

	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transferkit_transfer_transitions_total",
		Help: "Transfer state transitions observed by the orchestrator",
	}, []string{"status"})

	r := prometheus.NewRegistry()
	r.MustRegister(auctions, bids, rejections, metaTx, duration, transfers)

	return &Registry{
		registry:         r,
		auctionsTotal:    auctions,
		bidsReceived:     bids,
		bidRejections:    rejections,
		metaTxTotal:      metaTx,
		auctionDuration:  duration,
		transfersByState: transfers,
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) IncAuction(result string) {
	if r == nil {
		return
	}
	r.auctionsTotal.WithLabelValues(result).Inc()
}

func (r *Registry) IncBidReceived() {
	if r == nil {
		return
	}
	r.bidsReceived.Inc()
}

func (r *Registry) IncBidRejection(reason string) {
	if r == nil {
		return
	}
	r.bidRejections.WithLabelValues(reason).Inc()
}

func (r *Registry) IncMetaTx(result string) {
	if r == nil {
		return
	}
	r.metaTxTotal.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveAuctionDuration(seconds float64) {
	if r == nil {
		return
	}
	r.auctionDuration.Observe(seconds)
}

func (r *Registry) IncTransferTransition(status string) {
	if r == nil {
		return
	}
	r.transfersByState.WithLabelValues(status).Inc()
}
