package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 模板迁移结果标签。
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var (
	templateMigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "migration",
			Name:      "templates_total",
			Help:      "按结果统计的模板迁移次数。",
		},
		[]string{"outcome"},
	)

	migratedFieldsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "migration",
			Name:      "fields_created_total",
			Help:      "迁移创建的规范化字段总数。",
		},
	)

	fieldMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "fields",
			Name:      "mutations_total",
			Help:      "字段与字段值写操作次数。",
		},
		[]string{"operation", "result"},
	)
)

// RecordTemplateMigration 记录一次模板迁移结果。
func RecordTemplateMigration(outcome string, createdFields int) {
	templateMigrationsTotal.WithLabelValues(outcome).Inc()
	if createdFields > 0 {
		migratedFieldsTotal.Add(float64(createdFields))
	}
}

// RecordFieldMutation 记录一次字段写操作，err 非空时 result=error。
func RecordFieldMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fieldMutationsTotal.WithLabelValues(operation, result).Inc()
}
