// metrics.go — Prometheus-метрики очереди ожидающих файлов.
package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pendingFiles — текущее количество файлов в очереди ожидания.
	pendingFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rg_queue_pending_files",
		Help: "Количество файлов, ожидающих решения оператора",
	})

	// filesProcessed — обработанные (одобренные) файлы за время жизни процесса.
	filesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rg_files_processed_total",
		Help: "Количество одобренных файлов",
	})

	// filesRejected — отклонённые файлы за время жизни процесса.
	filesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rg_files_rejected_total",
		Help: "Количество отклонённых файлов",
	})

	// snapshotReloads — полные перезагрузки snapshot после stale-reference.
	snapshotReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rg_snapshot_reloads_total",
		Help: "Количество отложенных перезагрузок snapshot после stale-reference",
	})
)
