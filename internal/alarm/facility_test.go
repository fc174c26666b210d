package alarm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testTrigger(name string, missed bool, at dates.Clock) model.Trigger {
	return model.Trigger{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		Medication:  name,
		MissedCheck: missed,
		FireAt:      at,
		NextFire:    at.On(dates.DayOf(time.Now()), time.Local),
	}
}

func TestCronFacility_ReplaceIsWholesale(t *testing.T) {
	facility := NewCronFacility(Handler{}, zap.NewNop())
	defer facility.Stop()

	first := []model.Trigger{
		testTrigger("Ritonavir", false, dates.Clock{Hour: 7, Minute: 0}),
		testTrigger("Truvada", false, dates.Clock{Hour: 8, Minute: 0}),
	}
	require.NoError(t, facility.Replace(first))
	assert.Len(t, facility.entries, 2)

	second := []model.Trigger{
		testTrigger("Lisinopril", false, dates.Clock{Hour: 21, Minute: 0}),
	}
	require.NoError(t, facility.Replace(second))
	assert.Len(t, facility.entries, 1, "previously armed entries are removed")
	_, ok := facility.entries[second[0].ID]
	assert.True(t, ok)

	require.NoError(t, facility.Replace(nil))
	assert.Empty(t, facility.entries)
}

func TestCronFacility_FireRoutesMissedChecksSeparately(t *testing.T) {
	var reminders, missedChecks []string
	facility := NewCronFacility(Handler{
		OnReminder:    func(tr model.Trigger) { reminders = append(reminders, tr.Medication) },
		OnMissedCheck: func(tr model.Trigger) { missedChecks = append(missedChecks, tr.Medication) },
	}, zap.NewNop())
	defer facility.Stop()

	facility.fire(testTrigger("Ritonavir", false, dates.Clock{Hour: 7, Minute: 0}))
	facility.fire(testTrigger("Ritonavir", true, dates.Clock{Hour: 10, Minute: 55}))

	assert.Equal(t, []string{"Ritonavir"}, reminders)
	assert.Equal(t, []string{"Ritonavir"}, missedChecks)
}

func TestCronFacility_FireWithoutReminderHandlerStillChecksMissed(t *testing.T) {
	var missedChecks int
	facility := NewCronFacility(Handler{
		OnMissedCheck: func(model.Trigger) { missedChecks++ },
	}, zap.NewNop())
	defer facility.Stop()

	facility.fire(testTrigger("Ritonavir", false, dates.Clock{Hour: 7, Minute: 0}))
	facility.fire(testTrigger("Ritonavir", true, dates.Clock{Hour: 10, Minute: 55}))

	assert.Equal(t, 1, missedChecks)
}
