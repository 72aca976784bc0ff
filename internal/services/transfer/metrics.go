package transfer

import "go.uber.org/zap"

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordTransfer(string, int64) {}
func (n *NoopMetricsCollector) RecordError(string, string)   {}
func (n *NoopMetricsCollector) RecordSweep(string, int)      {}

// LogMetricsCollector reports transfer outcomes as structured log entries.
type LogMetricsCollector struct {
	logger *zap.Logger
}

func NewLogMetricsCollector(logger *zap.Logger) *LogMetricsCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMetricsCollector{logger: logger.Named("metrics")}
}

func (m *LogMetricsCollector) RecordTransfer(status string, amount int64) {
	m.logger.Debug("transfer", zap.String("status", status), zap.Int64("amount", amount))
}

func (m *LogMetricsCollector) RecordError(operation, kind string) {
	m.logger.Debug("transfer error", zap.String("operation", operation), zap.String("kind", kind))
}

func (m *LogMetricsCollector) RecordSweep(mode string, processed int) {
	if processed > 0 {
		m.logger.Info("sweep", zap.String("mode", mode), zap.Int("processed", processed))
	}
}
