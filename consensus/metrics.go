// Copyright 2019 The go-hetcons Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package consensus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters the observer core exports.
type Metrics struct {
	Decided   prometheus.Counter
	Restarts  prometheus.Counter
	Rejected  *prometheus.CounterVec
	Queued    prometheus.Gauge
	Proposals prometheus.Gauge
}

// NewMetrics creates the observer metrics on the registerer, a nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decided: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hetcons",
			Subsystem: "observer",
			Name:      "decided_proposals_total",
			Help:      "Number of proposals decided by this observer.",
		}),
		Restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hetcons",
			Subsystem: "observer",
			Name:      "restarts_total",
			Help:      "Number of restart 1a messages submitted.",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hetcons",
			Subsystem: "observer",
			Name:      "rejected_messages_total",
			Help:      "Number of phase messages rejected, by reason.",
		}, []string{"type", "reason"}),
		Queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hetcons",
			Subsystem: "observer",
			Name:      "queued_messages",
			Help:      "Number of 1b and 2b messages waiting for their 1a.",
		}),
		Proposals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hetcons",
			Subsystem: "observer",
			Name:      "proposals",
			Help:      "Number of proposal statuses held in memory.",
		}),
	}
}

// Name the rejection of err with a short label
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrStaleBallot):
		return "stale"
	case errors.Is(err, ErrConflictingProposal):
		return "conflict"
	case errors.Is(err, ErrInconsistentQuorum), errors.Is(err, ErrInconsistentSlots):
		return "inconsistent"
	case errors.Is(err, ErrUnresolvedReference):
		return "unresolved"
	case errors.Is(err, ErrVerification):
		return "verification"
	case errors.Is(err, ErrAttested):
		return "attested"
	case errors.Is(err, ErrSlotDecided):
		return "decided"
	case errors.Is(err, ErrInvalidSignature):
		return "signature"
	}
	return "other"
}
