package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/db"
	"github.com/saifyeddes/GestionClinic-sub000/internal/logging"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
)

// SimConfig is read from SIM_* variables; the connection and signing fields
// come from the shared service config.
type SimConfig struct {
	APIBaseURL   string        `envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	Duration     time.Duration `envconfig:"DURATION" default:"30s"`
	Workers      int           `envconfig:"WORKERS" default:"10"`
	CreateRatio  float64       `envconfig:"CREATE_RATIO" default:"0.3"`
	StatusRatio  float64       `envconfig:"STATUS_RATIO" default:"0.3"`
	PaymentRatio float64       `envconfig:"PAYMENT_RATIO" default:"0.1"`
	ReadRatio    float64       `envconfig:"READ_RATIO" default:"0.3"`
	VerifyFanout int           `envconfig:"VERIFY_FANOUT" default:"4"`
	AccountLimit int           `envconfig:"ACCOUNT_LIMIT" default:"2000"`

	PostgresDSN   string        `ignored:"true"`
	JWTSecret     string        `ignored:"true"`
	JWTIssuer     string        `ignored:"true"`
	TokenTTL      time.Duration `ignored:"true"`
	WebhookSecret string        `ignored:"true"`
}

// actor is a seeded account with a pre-minted bearer token.
type actor struct {
	account auth.Account
	token   string
}

type DataPool struct {
	Staff    []actor
	Doctors  []actor
	Patients []actor

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func pick(rng *rand.Rand, actors []actor) actor {
	return actors[rng.Intn(len(actors))]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	latencies []time.Duration
	mu        sync.Mutex
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeRejected
	outcomeError
)

// classify maps a response status onto the report buckets. 409 means a lost
// race or an illegal transition; 4xx otherwise is an authorization refusal.
func classify(status int, err error) outcome {
	switch {
	case err != nil:
		return outcomeError
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status == http.StatusConflict:
		return outcomeConflict
	case status >= 400 && status < 500:
		return outcomeRejected
	}
	return outcomeError
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeRejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	percentile := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}

	return sum / time.Duration(len(latencies)), percentile(50), percentile(95), percentile(99)
}

type Metrics struct {
	Create   OperationMetrics
	Status   OperationMetrics
	Checkout OperationMetrics
	Verify   OperationMetrics
	Webhook  OperationMetrics
	Read     OperationMetrics
	ListOwn  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("invalid config")
	}

	logger := logging.New("dev", "info", "simulate")
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("create", cfg.CreateRatio).
		Float64("status", cfg.StatusRatio).
		Float64("payment", cfg.PaymentRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("staff", len(dataPool.Staff)).
		Int("doctors", len(dataPool.Doctors)).
		Int("patients", len(dataPool.Patients)).
		Msg("loaded accounts")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	var cfg SimConfig
	if err := envconfig.Process("SIM", &cfg); err != nil {
		return SimConfig{}, fmt.Errorf("process SIM env: %w", err)
	}
	cfg.PostgresDSN = baseCfg.PostgresDSN
	cfg.JWTSecret = baseCfg.JWTSecret
	cfg.JWTIssuer = baseCfg.JWTIssuer
	cfg.TokenTTL = baseCfg.TokenTTL
	cfg.WebhookSecret = baseCfg.WebhookSecret

	if err := cfg.normalize(); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

// normalize rejects unusable run settings and scales the operation ratios so
// they sum to one.
func (c *SimConfig) normalize() error {
	if c.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if c.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	for name, r := range map[string]float64{
		"SIM_CREATE_RATIO":  c.CreateRatio,
		"SIM_STATUS_RATIO":  c.StatusRatio,
		"SIM_PAYMENT_RATIO": c.PaymentRatio,
		"SIM_READ_RATIO":    c.ReadRatio,
	} {
		if r < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if c.VerifyFanout < 1 {
		c.VerifyFanout = 1
	}

	total := c.CreateRatio + c.StatusRatio + c.PaymentRatio + c.ReadRatio
	if total == 0 {
		return errors.New("at least one SIM_*_RATIO must be > 0")
	}
	c.CreateRatio /= total
	c.StatusRatio /= total
	c.PaymentRatio /= total
	c.ReadRatio /= total
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id, email, role, patient_id, doctor_id
		FROM accounts
		WHERE active
		ORDER BY CASE role WHEN 'PATIENT' THEN 1 ELSE 0 END
		LIMIT $1
	`, cfg.AccountLimit)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a    auth.Account
			role string
		)
		if err := rows.Scan(&a.ID, &a.Email, &role, &a.PatientID, &a.DoctorID); err != nil {
			return nil, err
		}
		a.Role = auth.Role(role)
		a.Active = true

		token, err := verifier.Issue(a.ID, a.Role, a.Email, cfg.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		act := actor{account: a, token: token}

		switch a.Role {
		case auth.RoleAdmin, auth.RoleReceptionist:
			dataPool.Staff = append(dataPool.Staff, act)
		case auth.RoleDoctor:
			if a.DoctorID != nil {
				dataPool.Doctors = append(dataPool.Doctors, act)
			}
		case auth.RolePatient:
			if a.PatientID != nil {
				dataPool.Patients = append(dataPool.Patients, act)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Staff) == 0 || len(dataPool.Doctors) == 0 || len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("need staff, doctor and patient accounts; run the seed first")
	}

	return dataPool, nil
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
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.CreateRatio:
			s.doCreate(ctx, rng)
		case r < s.config.CreateRatio+s.config.StatusRatio:
			s.doStatus(ctx, rng)
		case r < s.config.CreateRatio+s.config.StatusRatio+s.config.PaymentRatio:
			s.doPayment(ctx, rng)
		default:
			if rng.Intn(2) == 0 {
				s.doRead(ctx, rng)
			} else {
				s.doListOwn(ctx, rng)
			}
		}
	}
}

// call sends one authenticated JSON request and decodes a 2xx body into out.
func (s *Simulator) call(ctx context.Context, token, method, path string, in, out any) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) doCreate(ctx context.Context, rng *rand.Rand) {
	staff := pick(rng, s.pool.Staff)
	doctor := pick(rng, s.pool.Doctors)
	patient := pick(rng, s.pool.Patients)

	in := map[string]any{
		"doctor_id":        doctor.account.DoctorID.String(),
		"patient_id":       patient.account.PatientID.String(),
		"scheduled_at":     time.Now().Add(time.Duration(rng.Intn(14*24)) * time.Hour).UTC(),
		"duration_minutes": 15 * (1 + rng.Intn(4)),
	}
	var out struct {
		ID uuid.UUID `json:"id"`
	}

	start := time.Now()
	status, err := s.call(ctx, staff.token, http.MethodPost, "/appointments", in, &out)
	o := classify(status, err)
	if o == outcomeSuccess && out.ID != uuid.Nil {
		s.pool.AddAppointment(out.ID)
	}
	s.metrics.Create.Record(time.Since(start), o)
}

var targets = []appointment.Status{
	appointment.StatusConfirmed,
	appointment.StatusInProgress,
	appointment.StatusCompleted,
	appointment.StatusCancelled,
	appointment.StatusNoShow,
}

// doStatus fires the same transition from two staff members at once, so one of
// them should lose with a 409.
func (s *Simulator) doStatus(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	in := map[string]string{"status": string(targets[rng.Intn(len(targets))])}
	first, second := pick(rng, s.pool.Staff), pick(rng, s.pool.Staff)

	var wg sync.WaitGroup
	for _, a := range []actor{first, second} {
		wg.Add(1)
		go func(a actor) {
			defer wg.Done()
			start := time.Now()
			status, err := s.call(ctx, a.token, http.MethodPatch, "/appointments/"+id.String()+"/status", in, nil)
			s.metrics.Status.Record(time.Since(start), classify(status, err))
		}(a)
	}
	wg.Wait()
}

// doPayment opens a checkout, then verifies it several times concurrently while
// an unpaid webhook for the same session arrives.
func (s *Simulator) doPayment(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	staff := pick(rng, s.pool.Staff)

	var intent struct {
		SessionID string `json:"session_id"`
	}
	start := time.Now()
	status, err := s.call(ctx, staff.token, http.MethodPost, "/appointments/"+id.String()+"/checkout", map[string]any{
		"amount":      int64(50000 + rng.Intn(100000)),
		"payer_email": "payer@clinic.local",
	}, &intent)
	o := classify(status, err)
	s.metrics.Checkout.Record(time.Since(start), o)
	if o != outcomeSuccess {
		return
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[string]int)
	)
	for i := 0; i < s.config.VerifyFanout; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var res struct {
				Outcome string `json:"outcome"`
			}
			start := time.Now()
			status, err := s.call(ctx, staff.token, http.MethodGet, "/payments/"+intent.SessionID+"/verify", nil, &res)
			s.metrics.Verify.Record(time.Since(start), classify(status, err))
			if err == nil && status == http.StatusOK {
				mu.Lock()
				outcomes[res.Outcome]++
				mu.Unlock()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		status, err := s.webhook(ctx, intent.SessionID, false)
		s.metrics.Webhook.Record(time.Since(start), classify(status, err))
	}()
	wg.Wait()

	if outcomes["reconciled"] > 1 {
		s.logger.Error().Str("session_id", intent.SessionID).Interface("outcomes", outcomes).Msg("payment reconciled more than once")
	}
}

// webhook posts a provider notification signed with the shared secret.
func (s *Simulator) webhook(ctx context.Context, sessionID string, paid bool) (int, error) {
	body, err := json.Marshal(map[string]any{"session_id": sessionID, "paid": paid})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/webhooks/payments", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", payment.Sign([]byte(s.config.WebhookSecret), body))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.call(ctx, pick(rng, s.pool.Staff).token, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	s.metrics.Read.Record(time.Since(start), classify(status, err))
}

// doListOwn lists as a patient or doctor; the server narrows the result to
// their own appointments.
func (s *Simulator) doListOwn(ctx context.Context, rng *rand.Rand) {
	a := pick(rng, s.pool.Patients)
	if rng.Intn(2) == 0 {
		a = pick(rng, s.pool.Doctors)
	}
	start := time.Now()
	status, err := s.call(ctx, a.token, http.MethodGet, "/appointments?limit=20", nil, nil)
	s.metrics.ListOwn.Record(time.Since(start), classify(status, err))
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Create", &s.metrics.Create)
	printOperationReport("Status change", &s.metrics.Status)
	printOperationReport("Checkout", &s.metrics.Checkout)
	printOperationReport("Verify payment", &s.metrics.Verify)
	printOperationReport("Webhook", &s.metrics.Webhook)
	printOperationReport("Read by ID", &s.metrics.Read)
	printOperationReport("List own", &s.metrics.ListOwn)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}
