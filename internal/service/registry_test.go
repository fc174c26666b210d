package service

import (
	"testing"

	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMedication_Validation(t *testing.T) {
	registry := newTestRegistry(t)

	assert.Error(t, registry.AddMedication(model.Medication{}), "name is required")
	assert.Error(t, registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: -1}), "negative dosage is rejected")

	require.NoError(t, registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: 100}))
	assert.Error(t, registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: 100}), "duplicate names are rejected")
}

func TestListMedications_RegistrationOrder(t *testing.T) {
	registry := newTestRegistry(t)

	for _, name := range []string{"Zidovudine", "Abacavir", "Metformin"} {
		require.NoError(t, registry.AddMedication(model.Medication{Name: name}))
	}

	medications := registry.ListMedications()
	require.Len(t, medications, 3)
	assert.Equal(t, "Zidovudine", medications[0].Name)
	assert.Equal(t, "Abacavir", medications[1].Name)
	assert.Equal(t, "Metformin", medications[2].Name)
}

func TestRemoveMedication_CleansUp(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	require.NoError(t, registry.SetAddress("00:1A:7D:DA:71:11", "Ritonavir"))

	require.NoError(t, registry.RemoveMedication("Ritonavir"))

	_, ok := registry.Medication("Ritonavir")
	assert.False(t, ok)
	_, ok = registry.ScheduleFor("Ritonavir")
	assert.False(t, ok)
	_, ok = registry.MedicationByAddress("00:1A:7D:DA:71:11")
	assert.False(t, ok, "addresses pointing at the removed medication are dropped")

	assert.Error(t, registry.RemoveMedication("Ritonavir"))
}

func TestSetSchedule(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: 100}))

	morning := dates.Clock{Hour: 7, Minute: 0}
	require.NoError(t, registry.SetSchedule("Ritonavir", model.Schedule{&morning, nil}))

	schedule, ok := registry.ScheduleFor("Ritonavir")
	require.True(t, ok)
	assert.Equal(t, "07:00", schedule[model.SlotMorning].String())
	assert.Nil(t, schedule[model.SlotEvening])

	assert.Error(t, registry.SetSchedule("Nope", model.Schedule{}))
}

func TestSetDosage(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: 100}))

	require.NoError(t, registry.SetDosage("Ritonavir", 200))
	med, _ := registry.Medication("Ritonavir")
	assert.Equal(t, 200, med.Dosage)

	assert.Error(t, registry.SetDosage("Ritonavir", -5))
	assert.Error(t, registry.SetDosage("Nope", 100))
}

func TestAddresses(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: 100}))
	require.NoError(t, registry.AddMedication(model.Medication{Name: "Truvada", Dosage: 200}))

	require.NoError(t, registry.SetAddress("00:1A:7D:DA:71:11", "Ritonavir"))

	name, ok := registry.MedicationByAddress("00:1A:7D:DA:71:11")
	require.True(t, ok)
	assert.Equal(t, "Ritonavir", name)

	// Rebinding the address moves it
	require.NoError(t, registry.SetAddress("00:1A:7D:DA:71:11", "Truvada"))
	name, _ = registry.MedicationByAddress("00:1A:7D:DA:71:11")
	assert.Equal(t, "Truvada", name)

	assert.Error(t, registry.SetAddress("00:1A:7D:DA:71:12", "Nope"))
}

func TestSubscribe_FiresOnMutation(t *testing.T) {
	registry := newTestRegistry(t)

	calls := 0
	registry.Subscribe(func() { calls++ })

	require.NoError(t, registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: 100}))
	assert.Equal(t, 1, calls)

	morning := dates.Clock{Hour: 7, Minute: 0}
	require.NoError(t, registry.SetSchedule("Ritonavir", model.Schedule{&morning, nil}))
	assert.Equal(t, 2, calls)

	require.NoError(t, registry.RemoveMedication("Ritonavir"))
	assert.Equal(t, 3, calls)
}
