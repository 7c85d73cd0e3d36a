package profilesync

import "github.com/prometheus/client_golang/prometheus"

var activeSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "teachme",
	Name:      "children_subscriptions_active",
	Help:      "Live subscriptions to a parent's children.",
})

var changeNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "teachme",
	Name:      "children_change_notifications_total",
	Help:      "Change notifications published, by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(activeSubscriptions, changeNotifications)
}
