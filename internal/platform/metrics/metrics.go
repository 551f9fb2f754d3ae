package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault engine.
type Metrics struct {
	UsersRegistered prometheus.Counter
	RecordsCreated  prometheus.Counter
	RecordsUpdated  prometheus.Counter
	RecordsDeleted  prometheus.Counter
	AccessGranted   prometheus.Counter
	AccessRevoked   prometheus.Counter
	AccessLogged    prometheus.Counter
	Denials         *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fhevault_users_registered_total",
			Help: "Total number of user profiles created.",
		}),
		RecordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fhevault_records_created_total",
			Help: "Total number of data records created.",
		}),
		RecordsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fhevault_records_updated_total",
			Help: "Total number of data record updates.",
		}),
		RecordsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fhevault_records_deleted_total",
			Help: "Total number of data records deleted.",
		}),
		AccessGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fhevault_access_granted_total",
			Help: "Total number of access grants.",
		}),
		AccessRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fhevault_access_revoked_total",
			Help: "Total number of access revocations.",
		}),
		AccessLogged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fhevault_access_logged_total",
			Help: "Total number of audit log appends.",
		}),
		Denials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fhevault_denials_total",
			Help: "Operations rejected, labelled by error code.",
		}, []string{"code"}),
	}
}

// Deny records a rejected operation under its error code.
func (m *Metrics) Deny(code string) {
	m.Denials.WithLabelValues(code).Inc()
}
