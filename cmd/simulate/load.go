package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
}

type booked struct {
	slotID  string
	tokenID string
}

type DataPool struct {
	Slots  []allocation.SlotInfo
	mu     sync.Mutex
	tokens []booked
}

func (dp *DataPool) AddToken(slotID, tokenID string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.tokens = append(dp.tokens, booked{slotID: slotID, tokenID: tokenID})
}

func (dp *DataPool) RandomToken(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.tokens) == 0 {
		return booked{}, false
	}
	return dp.tokens[rng.Intn(len(dp.tokens))], true
}

// TakeToken removes a random token so it is cancelled at most once.
func (dp *DataPool) TakeToken(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.tokens) == 0 {
		return booked{}, false
	}
	i := rng.Intn(len(dp.tokens))
	b := dp.tokens[i]
	dp.tokens[i] = dp.tokens[len(dp.tokens)-1]
	dp.tokens = dp.tokens[:len(dp.tokens)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Queued    int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeQueued
	outcomeConflict
	outcomeError
)

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeQueued:
		atomic.AddInt64(&om.Queued, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
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

type Metrics struct {
	Booking     OperationMetrics
	Cancel      OperationMetrics
	TokenStatus OperationMetrics
	SlotStatus  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func loadCmd() *cobra.Command {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
	}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Drive a running api-server with concurrent bookings, cancellations and reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg = normalizeRatios(cfg)
			if err := validateConfig(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := logging.New("opd-simulate", "dev", getEnv("LOG_LEVEL", "info"))
			logger.Info().
				Dur("duration", cfg.Duration).
				Int("workers", cfg.Workers).
				Float64("booking", cfg.BookingRatio).
				Float64("cancel", cfg.CancelRatio).
				Float64("read", cfg.ReadRatio).
				Msg("simulator starting")

			client := &http.Client{Timeout: 10 * time.Second}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			dataPool, err := loadDataPool(ctx, client, cfg.APIBaseURL)
			cancel()
			if err != nil {
				return fmt.Errorf("load data pool: %w", err)
			}
			logger.Info().Int("slots", len(dataPool.Slots)).Msg("loaded slots")

			sim := &Simulator{config: cfg, pool: dataPool, client: client, log: logger}
			sim.Run(cmd.Context())
			sim.PrintReport(cmd.OutOrStdout())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.APIBaseURL, "base-url", cfg.APIBaseURL, "api-server base URL")
	f.DurationVar(&cfg.Duration, "duration", cfg.Duration, "how long to run")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent workers")
	f.Float64Var(&cfg.BookingRatio, "booking-ratio", cfg.BookingRatio, "share of booking requests")
	f.Float64Var(&cfg.CancelRatio, "cancel-ratio", cfg.CancelRatio, "share of cancel requests")
	f.Float64Var(&cfg.ReadRatio, "read-ratio", cfg.ReadRatio, "share of status reads")
	return cmd
}

func normalizeRatios(cfg SimConfig) SimConfig {
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	return nil
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// loadDataPool lists every doctor and collects the ids of their slots.
func loadDataPool(ctx context.Context, client *http.Client, baseURL string) (*DataPool, error) {
	var doctors struct {
		Doctors []struct {
			ID string `json:"id"`
		} `json:"doctors"`
	}
	if err := getData(ctx, client, baseURL+"/api/v1/doctors", &doctors); err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	dp := &DataPool{}
	for _, d := range doctors.Doctors {
		var slots struct {
			Slots []allocation.SlotInfo `json:"slots"`
		}
		if err := getData(ctx, client, baseURL+"/api/v1/slots/doctor/"+d.ID, &slots); err != nil {
			return nil, fmt.Errorf("list slots of %s: %w", d.ID, err)
		}
		dp.Slots = append(dp.Slots, slots.Slots...)
	}

	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded, run seed first")
	}
	return dp, nil
}

func getData(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, dst)
}

func (s *Simulator) Run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

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

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case rng.Intn(2) == 0:
				s.doTokenStatus(ctx, rng)
			default:
				s.doSlotStatus(ctx, rng)
			}
		}
	}
}

func (s *Simulator) post(ctx context.Context, path string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *Simulator) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	return s.do(req)
}

func (s *Simulator) do(req *http.Request) (int, []byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))].ID
	tokenID := uuid.NewString()
	priorities := allocation.Priorities()

	path := "/api/v1/tokens/book"
	body := map[string]string{
		"slotId":    slotID,
		"tokenId":   tokenID,
		"patientId": gofakeit.Numerify("P######"),
	}
	// roughly one arrival in twenty is an emergency
	if rng.Intn(20) == 0 {
		path = "/api/v1/tokens/emergency"
	} else {
		body["priority"] = string(priorities[rng.Intn(len(priorities))])
	}

	start := time.Now()
	code, _, err := s.post(ctx, path, body)
	latency := time.Since(start)

	o := classify(code, err)
	if o == outcomeSuccess || o == outcomeQueued {
		s.pool.AddToken(slotID, tokenID)
	}
	s.metrics.Booking.Record(latency, o)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeToken(rng)
	if !ok {
		return
	}

	start := time.Now()
	code, _, err := s.post(ctx, "/api/v1/tokens/cancel", map[string]string{
		"slotId":  b.slotID,
		"tokenId": b.tokenID,
	})
	s.metrics.Cancel.Record(time.Since(start), classify(code, err))
}

func (s *Simulator) doTokenStatus(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}

	start := time.Now()
	code, _, err := s.get(ctx, "/api/v1/tokens/"+b.tokenID+"/status")
	s.metrics.TokenStatus.Record(time.Since(start), classify(code, err))
}

func (s *Simulator) doSlotStatus(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	code, _, err := s.get(ctx, "/api/v1/slots/"+slot.DoctorID+"/"+slot.StartTime+"/status")
	s.metrics.SlotStatus.Record(time.Since(start), classify(code, err))
}

func classify(code int, err error) outcome {
	switch {
	case err != nil:
		return outcomeError
	case code == http.StatusOK:
		return outcomeSuccess
	case code == http.StatusAccepted:
		return outcomeQueued
	case code == http.StatusConflict:
		return outcomeConflict
	default:
		return outcomeError
	}
}

func (s *Simulator) PrintReport(out io.Writer) {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(out, "SIMULATION REPORT")
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Duration: %s\n", s.config.Duration)
	fmt.Fprintf(out, "Workers: %d\n", s.config.Workers)
	fmt.Fprintln(out)

	printOperationReport(out, "Booking", &s.metrics.Booking)
	printOperationReport(out, "Cancel", &s.metrics.Cancel)
	printOperationReport(out, "Token status", &s.metrics.TokenStatus)
	printOperationReport(out, "Slot status", &s.metrics.SlotStatus)
}

func printOperationReport(out io.Writer, name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	queued := atomic.LoadInt64(&om.Queued)
	conflict := atomic.LoadInt64(&om.Conflict)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Fprintf(out, "%s:\n", name)
	fmt.Fprintf(out, "  Total: %d\n", total)
	fmt.Fprintf(out, "  Success: %d (%.1f%%)\n", success, pct(success))
	if queued > 0 {
		fmt.Fprintf(out, "  Queued: %d (%.1f%%)\n", queued, pct(queued))
	}
	if conflict > 0 {
		fmt.Fprintf(out, "  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if errs > 0 {
		fmt.Fprintf(out, "  Errors: %d (%.1f%%)\n", errs, pct(errs))
	}
	fmt.Fprintf(out, "  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Fprintln(out)
}
