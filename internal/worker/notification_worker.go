package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/service"
)

// StartNotificationWorker subscribes the fan-out dispatcher to domain events.
// Dispatch runs inline with event publication; this hook exists so the wiring
// point stays stable if delivery later moves onto a queue.
func StartNotificationWorker(notifications *service.NotificationService, logger *zap.Logger) {
	notifications.RegisterHandlers()
	logger.Info("notification dispatcher subscribed")
}
