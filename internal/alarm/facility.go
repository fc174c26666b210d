// Package alarm arms reminder triggers as recurring system alarms and
// surfaces desktop notifications when they fire.
package alarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
	"github.com/pillbox/adherence-backend/pkg/model"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Handler receives fired triggers. Reminder triggers and missed-window checks
// are routed separately so the caller can notify on one and reclassify on the
// other.
type Handler struct {
	OnReminder    func(model.Trigger)
	OnMissedCheck func(model.Trigger)
}

// CronFacility arms triggers as daily cron entries. Replace is wholesale:
// every previously armed entry is removed before the new set is added, so the
// armed state always mirrors exactly one trigger computation.
type CronFacility struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[uuid.UUID]cron.EntryID
	handler Handler
	logger  *zap.Logger
}

// NewCronFacility creates and starts a CronFacility.
func NewCronFacility(handler Handler, logger *zap.Logger) *CronFacility {
	f := &CronFacility{
		cron:    cron.New(),
		entries: make(map[uuid.UUID]cron.EntryID),
		handler: handler,
		logger:  logger,
	}
	f.cron.Start()
	return f
}

// Replace swaps the armed trigger set.
func (f *CronFacility) Replace(triggers []model.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, entryID := range f.entries {
		f.cron.Remove(entryID)
		delete(f.entries, id)
	}

	for _, trigger := range triggers {
		trigger := trigger
		spec := fmt.Sprintf("%d %d * * *", trigger.FireAt.Minute, trigger.FireAt.Hour)
		entryID, err := f.cron.AddFunc(spec, func() { f.fire(trigger) })
		if err != nil {
			return fmt.Errorf("failed to arm trigger %s: %w", trigger.ID, err)
		}
		f.entries[trigger.ID] = entryID
	}

	f.logger.Debug("alarm entries replaced", zap.Int("count", len(triggers)))
	return nil
}

// Stop halts the underlying cron scheduler. Already-running callbacks finish.
func (f *CronFacility) Stop() {
	f.cron.Stop()
}

func (f *CronFacility) fire(trigger model.Trigger) {
	if trigger.MissedCheck {
		if f.handler.OnMissedCheck != nil {
			f.handler.OnMissedCheck(trigger)
		}
		return
	}
	if f.handler.OnReminder != nil {
		f.handler.OnReminder(trigger)
	}
}

// DesktopNotifier sends local desktop notifications. The format is applied to
// the medication name and dosage in milligrams.
type DesktopNotifier struct {
	title  string
	format string
	logger *zap.Logger
}

// NewDesktopNotifier creates a DesktopNotifier with the given body format,
// e.g. "Time to take %s (%d mg)".
func NewDesktopNotifier(title, format string, logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{title: title, format: format, logger: logger}
}

// NotifyReminder shows a dose reminder for the medication.
func (n *DesktopNotifier) NotifyReminder(med model.Medication) {
	body := fmt.Sprintf(n.format, med.Name, med.Dosage)
	if err := beeep.Notify(n.title, body, ""); err != nil {
		n.logger.Warn("failed to send reminder notification",
			zap.String("medication", med.Name),
			zap.Error(err),
		)
	}
}

// PromptIntakeConfirmation surfaces a confirmation prompt for a detected
// intake. Satisfies the confirmation flow's prompter boundary.
func (n *DesktopNotifier) PromptIntakeConfirmation(medication string, timeTaken time.Time) {
	body := fmt.Sprintf("Did you just take %s at %s?", medication, timeTaken.Format("15:04"))
	if err := beeep.Notify(n.title, body, ""); err != nil {
		n.logger.Warn("failed to send confirmation prompt",
			zap.String("medication", medication),
			zap.Error(err),
		)
	}
}
