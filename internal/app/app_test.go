package app

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling-billing/internal/appointment"
	"github.com/hackgods/clinic-scheduling-billing/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:                 "test",
		StorageDriver:       config.StorageMemory,
		LockTTL:             time.Second,
		ClinicOpen:          "09:00",
		ClinicClose:         "17:00",
		SlotInterval:        30 * time.Minute,
		ClinicTimezone:      time.UTC,
		GatewayApprovalRate: 1,
	}
}

func TestNewWithMemoryStorage(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	assert.Nil(t, a.Redis)
	assert.Empty(t, a.Checks())
	assert.Len(t, a.Appointments.Slots(), 16)

	appt, err := a.Appointments.Book(context.Background(), appointment.BookRequest{
		PatientID:       "p1",
		DoctorID:        "d1",
		DepartmentID:    "cardiology",
		AppointmentDate: time.Now().UTC().AddDate(0, 0, 1),
		TimeSlot:        "10:00",
		Reason:          "Checkup",
	})
	require.NoError(t, err)

	bill, err := a.Billing.CalculateBill(context.Background(), appt.ID, 5000, "p1")
	require.NoError(t, err)
	assert.False(t, bill.Insured)
	assert.Equal(t, int64(5000), bill.PatientPortion)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewWithRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	checks := a.Checks()
	require.Len(t, checks, 1)
	assert.Equal(t, "redis", checks[0].Name)
	assert.False(t, checks[0].Critical)
	assert.NoError(t, checks[0].Ping(context.Background()))
}

func TestNewRejectsBadClinicHours(t *testing.T) {
	cfg := memoryConfig()
	cfg.ClinicClose = "08:00"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
