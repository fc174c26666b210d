package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IntakeEvent is a detected or reported intake awaiting user confirmation.
type IntakeEvent struct {
	Medication string    `json:"medication"`
	TimeTaken  time.Time `json:"time_taken"`
}

// ConfirmationPrompter is the outbound boundary for asking the user to
// confirm a detected intake. Implementations surface the prompt however the
// front end can; a nil prompter means detections classify silently after the
// timeout.
type ConfirmationPrompter interface {
	PromptIntakeConfirmation(medication string, timeTaken time.Time)
}

// ConfirmationManager holds at most one pending intake detection at a time.
// A detection waits for the user to confirm or deny; if neither arrives
// before the timeout, the dose is assumed taken and classified as-is.
// A second detection while one is pending is rejected, not queued.
type ConfirmationManager struct {
	mu         sync.Mutex
	pending    *IntakeEvent
	timer      *time.Timer
	timeout    time.Duration
	classifier *Classifier
	prompter   ConfirmationPrompter
	logger     *zap.Logger
}

// NewConfirmationManager creates a ConfirmationManager. prompter may be nil.
func NewConfirmationManager(classifier *Classifier, timeout time.Duration, prompter ConfirmationPrompter, logger *zap.Logger) *ConfirmationManager {
	return &ConfirmationManager{
		timeout:    timeout,
		classifier: classifier,
		prompter:   prompter,
		logger:     logger,
	}
}

// Request registers a detection and starts the confirmation countdown.
// Returns an error if another detection is already pending.
func (m *ConfirmationManager) Request(medication string, timeTaken time.Time) error {
	m.mu.Lock()
	if m.pending != nil {
		pending := m.pending.Medication
		m.mu.Unlock()
		return fmt.Errorf("confirmation already pending for %s", pending)
	}
	m.pending = &IntakeEvent{Medication: medication, TimeTaken: timeTaken}
	m.timer = time.AfterFunc(m.timeout, m.expire)
	m.mu.Unlock()

	m.logger.Info("intake confirmation requested",
		zap.String("medication", medication),
		zap.Time("time_taken", timeTaken),
		zap.Duration("timeout", m.timeout),
	)

	if m.prompter != nil {
		m.prompter.PromptIntakeConfirmation(medication, timeTaken)
	}
	return nil
}

// Pending returns the outstanding detection, if any.
func (m *ConfirmationManager) Pending() (IntakeEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return IntakeEvent{}, false
	}
	return *m.pending, true
}

// Confirm resolves the pending detection as a real intake and classifies it.
func (m *ConfirmationManager) Confirm() error {
	event, err := m.take()
	if err != nil {
		return err
	}
	m.classifier.RecordIntake(event.Medication, event.TimeTaken)
	m.logger.Info("intake confirmed", zap.String("medication", event.Medication))
	return nil
}

// Deny discards the pending detection without writing any record.
func (m *ConfirmationManager) Deny() error {
	event, err := m.take()
	if err != nil {
		return err
	}
	m.logger.Info("intake denied", zap.String("medication", event.Medication))
	return nil
}

// Close cancels any pending confirmation without classifying it.
func (m *ConfirmationManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.pending = nil
	m.timer = nil
}

func (m *ConfirmationManager) take() (IntakeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return IntakeEvent{}, fmt.Errorf("no confirmation pending")
	}
	event := *m.pending
	m.timer.Stop()
	m.pending = nil
	m.timer = nil
	return event, nil
}

// expire fires when the confirmation window elapses: silence means taken.
func (m *ConfirmationManager) expire() {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return
	}
	event := *m.pending
	m.pending = nil
	m.timer = nil
	m.mu.Unlock()

	m.logger.Info("confirmation timed out, assuming dose taken",
		zap.String("medication", event.Medication),
	)
	m.classifier.RecordIntake(event.Medication, event.TimeTaken)
}
