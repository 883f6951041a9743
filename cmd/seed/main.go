package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-token-allocation/internal/logging"
)

type seedConfig struct {
	baseURL   string
	doctors   int
	firstHour int
	lastHour  int
	capacity  int
}

func main() {
	cfg := seedConfig{}
	flag.StringVar(&cfg.baseURL, "base-url", envOr("SIM_API_BASE_URL", "http://localhost:8080"), "api-server base URL")
	flag.IntVar(&cfg.doctors, "doctors", 10, "doctors to create")
	flag.IntVar(&cfg.firstHour, "from", 9, "first slot hour")
	flag.IntVar(&cfg.lastHour, "to", 12, "hour the last slot ends")
	flag.IntVar(&cfg.capacity, "capacity", 5, "tokens per slot")
	flag.Parse()

	logger := logging.New("opd-seed", "dev", envOr("LOG_LEVEL", "info"))
	logger.Info().Str("base_url", cfg.baseURL).Int("doctors", cfg.doctors).Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s := &seeder{client: &http.Client{Timeout: 10 * time.Second}, baseURL: cfg.baseURL, log: logger}
	if err := s.seed(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}

	logger.Info().Msg("seed complete")
}

type seeder struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

func (s *seeder) seed(ctx context.Context, cfg seedConfig) error {
	if cfg.lastHour <= cfg.firstHour {
		return fmt.Errorf("--to must be after --from")
	}

	for i := 0; i < cfg.doctors; i++ {
		doctorID := fmt.Sprintf("DOC%03d", i+1)
		name := "Dr. " + gofakeit.LastName()

		if err := s.post(ctx, "/api/v1/doctors", map[string]any{"id": doctorID, "name": name}); err != nil {
			return fmt.Errorf("create doctor %s: %w", doctorID, err)
		}

		for hour := cfg.firstHour; hour < cfg.lastHour; hour++ {
			slot := map[string]any{
				"id":        fmt.Sprintf("%s-%d", doctorID, hour),
				"doctorId":  doctorID,
				"startTime": fmt.Sprintf("%d:00", hour),
				"endTime":   fmt.Sprintf("%d:00", hour+1),
				"capacity":  cfg.capacity,
			}
			if err := s.post(ctx, "/api/v1/slots", slot); err != nil {
				return fmt.Errorf("create slot %s: %w", slot["id"], err)
			}
		}
		s.log.Info().Str("doctor_id", doctorID).Str("name", name).Int("slots", cfg.lastHour-cfg.firstHour).Msg("doctor seeded")
	}
	return nil
}

func (s *seeder) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		// already seeded
		return nil
	default:
		var env struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, env.Message)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
