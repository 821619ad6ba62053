package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	PaymentRatio  float64
	ReadRatio     float64
	DoctorLimit   int
	PatientLimit  int
	HotSlots      int
	PostgresDSN   string
	JWTSecret     string
	WebhookSecret string
	Currency      string
}

// target is a bookable slot discovered through the availability API.
type target struct {
	DoctorID  uuid.UUID
	Date      string
	SlotStart time.Time
}

type booking struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Total     int64
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID
	Targets  []target

	mu       sync.RWMutex
	bookings []booking
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking  OperationMetrics
	Payment  OperationMetrics
	ReadByID OperationMetrics
	List     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulator config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("payment", cfg.PaymentRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.pool, err = loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	if err := sim.discoverSlots(ctx); err != nil {
		logger.Fatal().Err(err).Msg("discover slots")
	}
	logger.Info().
		Int("doctors", len(sim.pool.Doctors)).
		Int("patients", len(sim.pool.Patients)).
		Int("hot_slots", len(sim.pool.Targets)).
		Msg("data pool loaded")

	sim.Run()
	sim.PrintReport()

	dupes, err := countDoubleBookings(context.Background(), pgPool)
	if err != nil {
		logger.Error().Err(err).Msg("double-booking check failed")
		os.Exit(1)
	}
	if dupes > 0 {
		logger.Error().Int("slots", dupes).Msg("double bookings detected")
		os.Exit(1)
	}
	logger.Info().Msg("no double bookings detected")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 20),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.6),
		PaymentRatio:  getFloat("SIM_PAYMENT_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:   getInt("SIM_DOCTOR_LIMIT", 20),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		HotSlots:      getInt("SIM_HOT_SLOTS", 50),
		PostgresDSN:   base.PostgresDSN,
		JWTSecret:     base.JWTSecret,
		WebhookSecret: base.PaymentWebhookSecret,
		Currency:      base.Currency,
	}

	total := cfg.BookingRatio + cfg.PaymentRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.PaymentRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	var err error
	if dp.Doctors, err = loadIDs(ctx, pool, `SELECT id FROM doctors ORDER BY created_at LIMIT $1`, cfg.DoctorLimit); err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	if dp.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}
	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	return dp, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// discoverSlots collects a small set of open slots so that workers contend
// for the same ones.
func (s *Simulator) discoverSlots(ctx context.Context) error {
	for _, doctorID := range s.pool.Doctors {
		if len(s.pool.Targets) >= s.config.HotSlots {
			break
		}

		var dates struct {
			Dates []string `json:"dates"`
		}
		path := fmt.Sprintf("/doctors/%s/availability/dates", doctorID)
		if status, err := s.do(ctx, http.MethodGet, path, uuid.Nil, auth.RoleAdmin, nil, &dates); err != nil || status != http.StatusOK {
			s.log.Warn().Err(err).Int("status", status).Str("doctor_id", doctorID.String()).Msg("fetch dates")
			continue
		}
		if len(dates.Dates) < 2 {
			continue
		}

		// Skip today so slots do not start mid-run.
		date := dates.Dates[1]
		var slots struct {
			Slots []struct {
				Start time.Time `json:"start"`
			} `json:"slots"`
		}
		path = fmt.Sprintf("/doctors/%s/availability/slots?date=%s", doctorID, url.QueryEscape(date))
		if status, err := s.do(ctx, http.MethodGet, path, uuid.Nil, auth.RoleAdmin, nil, &slots); err != nil || status != http.StatusOK {
			s.log.Warn().Err(err).Int("status", status).Str("doctor_id", doctorID.String()).Msg("fetch slots")
			continue
		}

		for _, sl := range slots.Slots {
			if len(s.pool.Targets) >= s.config.HotSlots {
				break
			}
			s.pool.Targets = append(s.pool.Targets, target{DoctorID: doctorID, Date: date, SlotStart: sl.Start})
		}
	}

	if len(s.pool.Targets) == 0 {
		return fmt.Errorf("no open slots found")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.PaymentRatio:
			s.doPayment(ctx, rng)
		case rng.Intn(2) == 0:
			s.doReadByID(ctx, rng)
		default:
			s.doListByPatient(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	consultation := "Video"
	if rng.Intn(3) == 0 {
		consultation = "Voice"
	}
	body := map[string]string{
		"doctor_id":         t.DoctorID.String(),
		"date":              t.Date,
		"slot_start":        t.SlotStart.Format(time.RFC3339),
		"consultation_type": consultation,
		"symptoms":          "simulated load",
	}

	var resp struct {
		ID          uuid.UUID `json:"id"`
		TotalAmount int64     `json:"total_amount"`
	}
	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/appointments", patientID, auth.RolePatient, body, &resp)
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated && resp.ID != uuid.Nil {
		s.pool.AddBooking(booking{ID: resp.ID, PatientID: patientID, Total: resp.TotalAmount})
	}
}

func (s *Simulator) doPayment(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	body := map[string]any{
		"reference":      "sim-" + uuid.NewString(),
		"appointment_id": b.ID.String(),
		"amount":         b.Total,
		"currency":       s.config.Currency,
		"status":         "success",
	}

	start := time.Now()
	status, err := s.doWebhook(ctx, "/payments/confirm", body)
	s.metrics.Payment.Record(time.Since(start), status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.do(ctx, http.MethodGet, "/appointments/"+b.ID.String(), b.PatientID, auth.RolePatient, nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), status, err)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	path := fmt.Sprintf("/appointments?patient_id=%s&limit=20&offset=0", patientID)
	status, err := s.do(ctx, http.MethodGet, path, patientID, auth.RolePatient, nil, nil)
	s.metrics.List.Record(time.Since(start), status, err)
}

// do sends an authenticated request as the given user. With a JWT secret
// configured a token is minted; otherwise the dev identity headers are used.
func (s *Simulator) do(ctx context.Context, method, path string, userID uuid.UUID, role string, body, out any) (int, error) {
	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}

	if s.config.JWTSecret != "" {
		token, err := auth.IssueToken([]byte(s.config.JWTSecret), userID, role, time.Hour)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		if userID != uuid.Nil {
			req.Header.Set("X-User-ID", userID.String())
		}
		req.Header.Set("X-User-Role", role)
	}

	return s.send(req, out)
}

func (s *Simulator) doWebhook(ctx context.Context, path string, body any) (int, error) {
	req, err := s.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.config.WebhookSecret)
	return s.send(req, nil)
}

func (s *Simulator) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *Simulator) send(req *http.Request, out any) (int, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// countDoubleBookings returns the number of doctor slots holding more than
// one active appointment. Anything above zero is a bug.
func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT doctor_id, slot_start
			FROM appointments
			WHERE status IN ('Scheduled', 'In Progress')
			GROUP BY doctor_id, slot_start
			HAVING count(*) > 1
		) d
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Payment confirm", &s.metrics.Payment)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by patient", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
