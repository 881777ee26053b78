package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync engine metrics. AccountConnected distinguishes a healthy account (1)
// from one stuck reconnecting (0) so operators can spot a permanently
// failing account despite the engine never giving up.
var (
	AccountConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "onebox_account_connected",
		Help: "Whether the account's IMAP session is currently established",
	}, []string{"account"})

	AccountReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onebox_account_reconnects_total",
		Help: "Number of reconnect attempts per account",
	}, []string{"account"})

	MessagesSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onebox_messages_synced_total",
		Help: "Messages normalized and handed to the ingestion pipeline",
	}, []string{"account"})

	FoldersDiscovered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "onebox_folders_discovered",
		Help: "Folders found in the last discovery pass",
	}, []string{"account"})

	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onebox_pipeline_step_errors_total",
		Help: "Ingestion pipeline step failures",
	}, []string{"step"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onebox_notifications_sent_total",
		Help: "Notification delivery attempts that succeeded",
	}, []string{"channel"})
)
