package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/doctor"
	"github.com/hackgods/opd-token-allocation/internal/logging"
	"github.com/hackgods/opd-token-allocation/internal/opd"
)

const scenarioSlot = "DOC001-9"

type scenarioBooking struct {
	tokenID   string
	patientID string
	priority  allocation.Priority
}

// one morning at the OPD: capacity 5, two late arrivals queue up
var scenarioBookings = []scenarioBooking{
	{"T001", "P001", allocation.PriorityOnline},
	{"T002", "P002", allocation.PriorityWalkIn},
	{"T003", "P003", allocation.PriorityPaid},
	{"T004", "P004", allocation.PriorityFollowUp},
	{"T005", "P005", allocation.PriorityWalkIn},
	{"T006", "P006", allocation.PriorityOnline},
	{"T007", "P007", allocation.PriorityPaid},
}

func scenarioCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Replay the reference OPD day in process and print the final slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New("opd-simulate", "dev", logLevel)
			svc := opd.NewService(allocation.NewEngine(), doctor.NewRegistry(), opd.WithLogger(logger))
			_, err := runScenario(cmd.Context(), svc, os.Stdout, logger)
			return err
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level")
	return cmd
}

// runScenario provisions three doctors with three hourly slots each, books,
// cancels, inserts an emergency and delays the first slot, then reports it.
func runScenario(ctx context.Context, svc *opd.Service, out io.Writer, logger zerolog.Logger) (allocation.SlotStatus, error) {
	doctors := []struct{ id, name string }{
		{"DOC001", "Dr. Smith"},
		{"DOC002", "Dr. Johnson"},
		{"DOC003", "Dr. Lee"},
	}
	for _, d := range doctors {
		if _, err := svc.CreateDoctor(ctx, d.id, d.name); err != nil {
			return allocation.SlotStatus{}, fmt.Errorf("create doctor %s: %w", d.id, err)
		}
		for hour := 9; hour < 12; hour++ {
			_, err := svc.CreateSlot(ctx, opd.SlotInput{
				ID:        fmt.Sprintf("%s-%d", d.id, hour),
				DoctorID:  d.id,
				StartTime: fmt.Sprintf("%d:00", hour),
				EndTime:   fmt.Sprintf("%d:00", hour+1),
				Capacity:  5,
			})
			if err != nil {
				return allocation.SlotStatus{}, fmt.Errorf("create slot for %s: %w", d.id, err)
			}
		}
	}

	for _, b := range scenarioBookings {
		res, err := svc.BookToken(ctx, opd.BookInput{
			SlotID:    scenarioSlot,
			TokenID:   b.tokenID,
			PatientID: b.patientID,
			Priority:  b.priority,
		})
		if err != nil {
			logger.Error().Err(err).Str("token_id", b.tokenID).Msg("booking failed")
			continue
		}
		logger.Debug().Str("token_id", b.tokenID).Bool("accepted", res.Accepted).Int("position", res.Position).Msg("booking result")
	}

	for _, id := range []string{"T003", "T001"} {
		if _, err := svc.CancelToken(ctx, scenarioSlot, id); err != nil {
			logger.Error().Err(err).Str("token_id", id).Msg("cancellation failed")
		}
	}

	if _, err := svc.InsertEmergency(ctx, scenarioSlot, "T999", "P999"); err != nil {
		logger.Error().Err(err).Msg("emergency insertion failed")
	}

	if _, err := svc.DelaySlot(ctx, scenarioSlot, 30); err != nil {
		logger.Error().Err(err).Msg("delay failed")
	}

	st, err := svc.Engine().SlotStatus(scenarioSlot)
	if err != nil {
		return allocation.SlotStatus{}, err
	}
	printSlotStatus(out, st)
	return st, nil
}

func printSlotStatus(out io.Writer, st allocation.SlotStatus) {
	fmt.Fprintln(out, "\n=== FINAL SLOT STATUS ===")
	fmt.Fprintf(out, "Slot ID: %s\n", st.SlotID)
	fmt.Fprintf(out, "Doctor ID: %s\n", st.DoctorID)
	fmt.Fprintf(out, "Window: %s-%s\n", st.StartTime, st.EndTime)
	fmt.Fprintf(out, "Capacity: %d\n", st.Capacity)
	fmt.Fprintf(out, "Available Capacity: %d\n", st.AvailableCapacity)

	fmt.Fprintln(out, "\n--- BOOKED TOKENS ---")
	printTokens(out, st.Tokens)
	fmt.Fprintln(out, "\n--- WAITING LIST ---")
	printTokens(out, st.WaitingList)
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 25))
}

func printTokens(out io.Writer, tokens []allocation.Token) {
	for i, t := range tokens {
		fmt.Fprintf(out, "%d. Token: %s, Patient: %s, Priority: %s, Status: %s\n",
			i+1, t.ID, t.PatientID, t.Priority, t.Status)
	}
}
