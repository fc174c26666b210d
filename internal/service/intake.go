package service

import (
	"time"

	"go.uber.org/zap"
)

// IntakeService resolves incoming intake detections to registered medications
// and routes them through the confirmation flow. Detections arrive either as
// a medication name or as a bottle hardware address.
type IntakeService struct {
	registry      *Registry
	confirmations *ConfirmationManager
	logger        *zap.Logger
}

// NewIntakeService creates an IntakeService.
func NewIntakeService(registry *Registry, confirmations *ConfirmationManager, logger *zap.Logger) *IntakeService {
	return &IntakeService{
		registry:      registry,
		confirmations: confirmations,
		logger:        logger,
	}
}

// Report handles a detected intake. The source is resolved first as a bottle
// address, then as a medication name. Unknown sources are dropped with a
// warning and ok=false. A resolvable detection starts the confirmation
// countdown; err is non-nil when another confirmation is already pending.
func (s *IntakeService) Report(source string, timeTaken time.Time) (medication string, ok bool, err error) {
	name, found := s.registry.MedicationByAddress(source)
	if !found {
		if _, registered := s.registry.Medication(source); registered {
			name = source
			found = true
		}
	}
	if !found {
		s.logger.Warn("intake from unknown source ignored",
			zap.String("source", source),
			zap.Time("time_taken", timeTaken),
		)
		return "", false, nil
	}

	if err := s.confirmations.Request(name, timeTaken); err != nil {
		return name, true, err
	}
	return name, true, nil
}
