package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// Registry holds the medication list together with each medication's
// schedule, dosage and bottle-address mapping. Medication identity is the
// name and is immutable once registered; schedule and dosage are mutable.
// Every mutation notifies subscribers so dependent components (the reminder
// scheduler, store materialization) can recompute.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	medications map[string]*model.Medication
	schedules   map[string]model.Schedule
	addresses   map[string]string

	persister   *store.Persister
	logger      *zap.Logger
	subscribers []func()
}

// NewRegistry creates an empty Registry.
func NewRegistry(persister *store.Persister, logger *zap.Logger) *Registry {
	return &Registry{
		medications: make(map[string]*model.Medication),
		schedules:   make(map[string]model.Schedule),
		addresses:   make(map[string]string),
		persister:   persister,
		logger:      logger,
	}
}

// Subscribe registers a callback invoked after every registry mutation.
// Callbacks run outside the registry lock.
func (r *Registry) Subscribe(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Registry) notify() {
	r.mu.RLock()
	subscribers := make([]func(), len(r.subscribers))
	copy(subscribers, r.subscribers)
	r.mu.RUnlock()

	for _, fn := range subscribers {
		fn()
	}
}

// AddMedication registers a new medication. The name must be unique.
func (r *Registry) AddMedication(med model.Medication) error {
	if med.Name == "" {
		return fmt.Errorf("medication name is required")
	}
	if med.Dosage < 0 {
		return fmt.Errorf("medication dosage must not be negative")
	}

	r.mu.Lock()
	if _, exists := r.medications[med.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("medication already registered: %s", med.Name)
	}
	now := time.Now()
	med.CreatedAt = now
	med.UpdatedAt = now
	r.medications[med.Name] = &med
	r.order = append(r.order, med.Name)
	if _, ok := r.schedules[med.Name]; !ok {
		r.schedules[med.Name] = model.Schedule{}
	}
	r.mu.Unlock()

	r.logger.Info("medication added",
		zap.String("name", med.Name),
		zap.Int("dosage_mg", med.Dosage),
	)

	r.persist()
	r.notify()
	return nil
}

// RemoveMedication unregisters a medication along with its schedule and any
// bottle addresses pointing at it.
func (r *Registry) RemoveMedication(name string) error {
	r.mu.Lock()
	if _, exists := r.medications[name]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("medication not found: %s", name)
	}
	delete(r.medications, name)
	delete(r.schedules, name)
	for addr, med := range r.addresses {
		if med == name {
			delete(r.addresses, addr)
		}
	}
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info("medication removed", zap.String("name", name))

	r.persist()
	r.notify()
	return nil
}

// ListMedications returns all medications in registration order.
func (r *Registry) ListMedications() []model.Medication {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Medication, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.medications[name])
	}
	return out
}

// Medication looks up a medication by name.
func (r *Registry) Medication(name string) (model.Medication, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	med, ok := r.medications[name]
	if !ok {
		return model.Medication{}, false
	}
	return *med, true
}

// ScheduleFor returns the two-slot schedule for a medication.
func (r *Registry) ScheduleFor(name string) (model.Schedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.schedules[name]
	return schedule, ok
}

// Schedules returns a copy of the full schedule mapping.
func (r *Registry) Schedules() map[string]model.Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.Schedule, len(r.schedules))
	for name, schedule := range r.schedules {
		out[name] = schedule
	}
	return out
}

// SetSchedule replaces a medication's two-slot schedule.
func (r *Registry) SetSchedule(name string, schedule model.Schedule) error {
	r.mu.Lock()
	med, exists := r.medications[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("medication not found: %s", name)
	}
	r.schedules[name] = schedule
	med.UpdatedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("schedule updated", zap.String("name", name))

	r.persist()
	r.notify()
	return nil
}

// SetDosage updates a medication's dosage in milligrams.
func (r *Registry) SetDosage(name string, dosageMg int) error {
	if dosageMg < 0 {
		return fmt.Errorf("medication dosage must not be negative")
	}

	r.mu.Lock()
	med, exists := r.medications[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("medication not found: %s", name)
	}
	med.Dosage = dosageMg
	med.UpdatedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("dosage updated",
		zap.String("name", name),
		zap.Int("dosage_mg", dosageMg),
	)

	r.persist()
	r.notify()
	return nil
}

// SetAddress maps a bottle sensor address to a medication, so detection
// events carrying that address resolve to the right medication.
func (r *Registry) SetAddress(address, name string) error {
	r.mu.Lock()
	if _, exists := r.medications[name]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("medication not found: %s", name)
	}
	r.addresses[address] = name
	r.mu.Unlock()

	r.persist()
	return nil
}

// MedicationByAddress resolves a bottle sensor address to a medication name.
func (r *Registry) MedicationByAddress(address string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.addresses[address]
	return name, ok
}

// ReplaceAll swaps the medication list and schedule mapping wholesale, used
// by bulk sync. Addresses pointing at medications that no longer exist are
// dropped.
func (r *Registry) ReplaceAll(medications []model.Medication, schedules map[string]model.Schedule) {
	r.mu.Lock()
	r.medications = make(map[string]*model.Medication, len(medications))
	r.order = r.order[:0]
	for i := range medications {
		med := medications[i]
		r.medications[med.Name] = &med
		r.order = append(r.order, med.Name)
	}
	r.schedules = make(map[string]model.Schedule, len(schedules))
	for name, schedule := range schedules {
		r.schedules[name] = schedule
	}
	for addr, med := range r.addresses {
		if _, ok := r.medications[med]; !ok {
			delete(r.addresses, addr)
		}
	}
	count := len(r.order)
	r.mu.Unlock()

	r.logger.Info("registry replaced", zap.Int("medications", count))

	r.persist()
	r.notify()
}

func (r *Registry) persist() {
	r.mu.RLock()
	medications := make([]model.Medication, 0, len(r.order))
	for _, name := range r.order {
		medications = append(medications, *r.medications[name])
	}
	schedules := make(map[string]model.Schedule, len(r.schedules))
	for name, schedule := range r.schedules {
		schedules[name] = schedule
	}
	addresses := make(map[string]string, len(r.addresses))
	for addr, name := range r.addresses {
		addresses[addr] = name
	}
	r.mu.RUnlock()

	r.persister.SaveAsync(store.SnapshotMedications, medications)
	r.persister.SaveAsync(store.SnapshotSchedule, schedules)
	r.persister.SaveAsync(store.SnapshotAddresses, addresses)
}

// Restore loads the persisted registry snapshots, if any.
func (r *Registry) Restore(ctx context.Context) error {
	var medications []model.Medication
	found, err := r.persister.Load(ctx, store.SnapshotMedications, &medications)
	if err != nil {
		return fmt.Errorf("failed to restore medications: %w", err)
	}
	if !found {
		return nil
	}

	schedules := make(map[string]model.Schedule)
	if _, err := r.persister.Load(ctx, store.SnapshotSchedule, &schedules); err != nil {
		return fmt.Errorf("failed to restore schedule: %w", err)
	}
	addresses := make(map[string]string)
	if _, err := r.persister.Load(ctx, store.SnapshotAddresses, &addresses); err != nil {
		return fmt.Errorf("failed to restore addresses: %w", err)
	}

	r.mu.Lock()
	r.medications = make(map[string]*model.Medication, len(medications))
	r.order = r.order[:0]
	for i := range medications {
		med := medications[i]
		r.medications[med.Name] = &med
		r.order = append(r.order, med.Name)
	}
	r.schedules = schedules
	r.addresses = addresses
	count := len(r.order)
	r.mu.Unlock()

	r.logger.Info("registry restored", zap.Int("medications", count))
	return nil
}
