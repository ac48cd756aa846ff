package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling-billing/internal/logging"
)

type SimConfig struct {
	APIBaseURL  string
	Doctors     int
	Days        int
	SlotsPerDay int
	Contenders  int // concurrent bookings fired at each slot
	Parallel    int // slots raced at once
}

type target struct {
	DoctorID string
	Date     string
	Slot     string
}

type slotResult struct {
	target
	Winners   int
	Conflicts int
	Errors    int
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	logger  zerolog.Logger
	booking OperationMetrics
	runID   string
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info")).With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Str("api", cfg.APIBaseURL).
		Int("doctors", cfg.Doctors).
		Int("days", cfg.Days).
		Int("slots_per_day", cfg.SlotsPerDay).
		Int("contenders", cfg.Contenders).
		Msg("simulator starting")

	sim := NewSimulator(cfg, &http.Client{Timeout: 10 * time.Second}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	results, err := sim.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}

	if violations := sim.PrintReport(os.Stdout, results); violations > 0 {
		logger.Error().Int("slots", violations).Msg("double booking detected")
		os.Exit(1)
	}
}

func NewSimulator(cfg SimConfig, client *http.Client, logger zerolog.Logger) *Simulator {
	return &Simulator{
		config: cfg,
		client: client,
		logger: logger,
		runID:  uuid.NewString()[:8],
	}
}

// Run races Contenders bookings at every target slot and reports how many of
// each succeeded.
func (s *Simulator) Run(ctx context.Context) ([]slotResult, error) {
	targets, err := s.targets(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("slots", len(targets)).Msg("racing slots")

	results := make([]slotResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallel)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = s.race(gctx, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info().Msg("simulation complete")
	return results, nil
}

// targets asks the API for each doctor's free slots so every target starts
// out bookable.
func (s *Simulator) targets(ctx context.Context) ([]target, error) {
	var out []target
	start := time.Now().UTC().AddDate(0, 0, 1)
	for d := 0; d < s.config.Doctors; d++ {
		doctorID := fmt.Sprintf("sim-%s-dr-%d", s.runID, d)
		for day := 0; day < s.config.Days; day++ {
			date := start.AddDate(0, 0, day).Format("2006-01-02")
			slots, err := s.availableSlots(ctx, doctorID, date)
			if err != nil {
				return nil, err
			}
			if len(slots) > s.config.SlotsPerDay {
				slots = slots[:s.config.SlotsPerDay]
			}
			for _, slot := range slots {
				out = append(out, target{DoctorID: doctorID, Date: date, Slot: slot})
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no bookable slots returned by %s", s.config.APIBaseURL)
	}
	return out, nil
}

func (s *Simulator) availableSlots(ctx context.Context, doctorID, date string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/doctors/%s/available-slots?date=%s",
		s.config.APIBaseURL, url.PathEscape(doctorID), url.QueryEscape(date))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("available slots: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("available slots: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode available slots: %w", err)
	}
	return payload.Slots, nil
}

func (s *Simulator) race(ctx context.Context, t target) slotResult {
	res := slotResult{target: t}
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
	)

	for i := 0; i < s.config.Contenders; i++ {
		wg.Add(1)
		go func(patient int) {
			defer wg.Done()
			<-start

			began := time.Now()
			status, err := s.book(ctx, t, fmt.Sprintf("sim-%s-pat-%d", s.runID, patient))
			latency := time.Since(began)

			ok := err == nil && status == http.StatusCreated
			conflict := err == nil && status == http.StatusConflict
			s.booking.Record(latency, ok, conflict)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case ok:
				res.Winners++
			case conflict:
				res.Conflicts++
			default:
				res.Errors++
			}
		}(i)
	}

	close(start)
	wg.Wait()
	return res
}

func (s *Simulator) book(ctx context.Context, t target, patientID string) (int, error) {
	body, err := json.Marshal(map[string]string{
		"patient_id":       patientID,
		"doctor_id":        t.DoctorID,
		"department_id":    "simulation",
		"appointment_date": t.Date,
		"time_slot":        t.Slot,
		"reason":           "load simulation",
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// PrintReport writes the summary and returns the number of slots with more
// than one winner.
func (s *Simulator) PrintReport(w io.Writer, results []slotResult) int {
	var winners, conflicts, errs, unclaimed, violations int
	for _, r := range results {
		winners += r.Winners
		conflicts += r.Conflicts
		errs += r.Errors
		if r.Winners == 0 {
			unclaimed++
		}
		if r.Winners > 1 {
			violations++
			fmt.Fprintf(w, "DOUBLE BOOKED doctor=%s date=%s slot=%s winners=%d\n", r.DoctorID, r.Date, r.Slot, r.Winners)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "SAME-SLOT BOOKING RACE")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "slots raced:        %d\n", len(results))
	fmt.Fprintf(w, "contenders per slot: %d\n", s.config.Contenders)
	fmt.Fprintf(w, "winners:            %d\n", winners)
	fmt.Fprintf(w, "conflicts (409):    %d\n", conflicts)
	fmt.Fprintf(w, "errors:             %d\n", errs)
	fmt.Fprintf(w, "unclaimed slots:    %d\n", unclaimed)
	fmt.Fprintf(w, "double-booked:      %d\n", violations)

	avg, min, max, p50, p95 := s.booking.Stats()
	fmt.Fprintf(w, "latency avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)
	return violations
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Doctors:     getInt("SIM_DOCTORS", 5),
		Days:        getInt("SIM_DAYS", 3),
		SlotsPerDay: getInt("SIM_SLOTS_PER_DAY", 16),
		Contenders:  getInt("SIM_CONTENDERS", 10),
		Parallel:    getInt("SIM_PARALLEL", 8),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Doctors <= 0 || cfg.Days <= 0 || cfg.SlotsPerDay <= 0 {
		return fmt.Errorf("SIM_DOCTORS, SIM_DAYS and SIM_SLOTS_PER_DAY must be > 0")
	}
	if cfg.Contenders < 2 {
		return fmt.Errorf("SIM_CONTENDERS must be at least 2")
	}
	if cfg.Parallel <= 0 {
		return fmt.Errorf("SIM_PARALLEL must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
