package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling-billing/internal/app"
	"github.com/hackgods/clinic-scheduling-billing/internal/appointment"
	"github.com/hackgods/clinic-scheduling-billing/internal/config"
	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
	"github.com/hackgods/clinic-scheduling-billing/internal/insurance"
	"github.com/hackgods/clinic-scheduling-billing/internal/logging"
)

var departments = []string{
	"dermatology",
	"cardiology",
	"general-practice",
	"orthopedics",
	"endocrinology",
	"neurology",
	"pediatrics",
	"psychiatry",
	"ophthalmology",
	"ent",
}

var reasons = []string{
	"Annual checkup",
	"Follow-up visit",
	"Persistent headache",
	"Skin rash",
	"Blood pressure review",
	"Vaccination",
	"Knee pain",
	"Prescription renewal",
}

var providers = []string{"Acme Health", "Northwind Mutual", "BlueRiver Care", "Contoso Assurance"}

type seedOptions struct {
	Doctors      int
	Patients     int
	Appointments int
	Days         int
	InsuredRatio float64
	Seed         uint64
}

type seedReport struct {
	Policies  int
	Booked    int
	Conflicts int
}

func main() {
	opts := seedOptions{}

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed insurance policies and appointments through the clinic engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := run(ctx, a, opts, logger)
			if err != nil {
				return err
			}
			logger.Info().
				Int("policies", report.Policies).
				Int("booked", report.Booked).
				Int("conflicts", report.Conflicts).
				Msg("seed complete")
			return nil
		},
	}

	rootCmd.Flags().IntVar(&opts.Doctors, "doctors", 20, "number of doctors")
	rootCmd.Flags().IntVar(&opts.Patients, "patients", 500, "number of patients")
	rootCmd.Flags().IntVar(&opts.Appointments, "appointments", 1000, "booking attempts")
	rootCmd.Flags().IntVar(&opts.Days, "days", 14, "days ahead to spread bookings over")
	rootCmd.Flags().Float64Var(&opts.InsuredRatio, "insured-ratio", 0.6, "share of patients with an active policy")
	rootCmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed, 0 picks one")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, opts seedOptions, logger zerolog.Logger) (seedReport, error) {
	if opts.Doctors <= 0 || opts.Patients <= 0 || opts.Days <= 0 {
		return seedReport{}, fmt.Errorf("doctors, patients and days must be positive")
	}

	faker := gofakeit.New(opts.Seed)
	var report seedReport

	doctors := make([]string, opts.Doctors)
	doctorDept := make(map[string]string, opts.Doctors)
	for i := range doctors {
		doctors[i] = "dr-" + uuid.NewString()
		doctorDept[doctors[i]] = faker.RandomString(departments)
	}

	patients := make([]string, opts.Patients)
	for i := range patients {
		patients[i] = "pat-" + uuid.NewString()
	}

	logger.Info().Int("patients", opts.Patients).Msg("seeding policies")
	today := time.Now().UTC()
	for _, patientID := range patients {
		if faker.Float64Range(0, 1) >= opts.InsuredRatio {
			continue
		}
		if _, err := a.Policies.CreatePolicy(ctx, fakePolicy(faker, patientID, today)); err != nil {
			return report, fmt.Errorf("create policy: %w", err)
		}
		report.Policies++
	}

	logger.Info().Int("attempts", opts.Appointments).Msg("seeding appointments")
	slots := a.Appointments.Slots()
	tomorrow := today.AddDate(0, 0, 1)
	for i := 0; i < opts.Appointments; i++ {
		doctorID := doctors[faker.Number(0, len(doctors)-1)]
		_, err := a.Appointments.Book(ctx, appointment.BookRequest{
			PatientID:       patients[faker.Number(0, len(patients)-1)],
			DoctorID:        doctorID,
			DepartmentID:    doctorDept[doctorID],
			AppointmentDate: tomorrow.AddDate(0, 0, faker.Number(0, opts.Days-1)),
			TimeSlot:        slots[faker.Number(0, len(slots)-1)],
			Reason:          faker.RandomString(reasons),
		})
		switch {
		case err == nil:
			report.Booked++
		case domainerr.IsConflict(err):
			report.Conflicts++
		default:
			return report, fmt.Errorf("book appointment: %w", err)
		}

		if (i+1)%250 == 0 {
			logger.Info().Int("attempts", i+1).Int("booked", report.Booked).Msg("seeding progress")
		}
	}

	return report, nil
}

func fakePolicy(faker *gofakeit.Faker, patientID string, today time.Time) *insurance.Policy {
	coverage := []float64{50, 60, 70, 80, 90, 100}
	start := today.AddDate(0, -faker.Number(1, 24), 0)
	return &insurance.Policy{
		ID:                 uuid.NewString(),
		PatientID:          patientID,
		PolicyNumber:       fmt.Sprintf("POL-%s-%s", faker.LetterN(3), faker.DigitN(8)),
		Provider:           faker.RandomString(providers),
		CoveragePercentage: coverage[faker.Number(0, len(coverage)-1)],
		MaxCoverage:        int64(faker.Number(50, 500)) * 10000,
		StartDate:          start,
		EndDate:            start.AddDate(faker.Number(1, 3), 0, 0),
		Status:             insurance.PolicyActive,
	}
}
