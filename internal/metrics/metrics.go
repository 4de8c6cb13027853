package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WalletOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Wallet operations by name and result",
		},
		[]string{"op", "result"},
	)

	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries appended, by transaction type",
		},
		[]string{"type"},
	)

	SettlementTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_transitions_total",
			Help: "Payment status transitions applied by the settlement coordinator",
		},
		[]string{"to"},
	)
)

// Observe records one wallet operation outcome.
func Observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	WalletOperations.WithLabelValues(op, result).Inc()
}
