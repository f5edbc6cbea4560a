package reward

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rewardsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "creatorpay",
	Subsystem: "reward",
	Name:      "views_total",
	Help:      "View submissions by outcome.",
}, []string{"outcome"})
