package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

var operator = appointment.Actor{Subject: "clinicctl", Email: "clinicctl@clinic.local", Name: "clinicctl", Role: appointment.RoleStaff}

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Clinic scheduling operator tool",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session opens the configured store quietly and builds a scheduling service.
type session struct {
	svc     *scheduling.Service
	backend *bootstrap.Backend
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	tz, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	backend, err := bootstrap.OpenStore(ctx, cfg, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	svc := scheduling.NewService(backend.Store, availability.DefaultCatalog(tz), cfg.Policy(tz))
	return &session{svc: svc, backend: backend}, nil
}

func (s *session) Close() { s.backend.Close() }

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List the slots of a location on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("location")
			rawDate, _ := cmd.Flags().GetString("date")
			date, err := availability.ParseDate(rawDate)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			loc, err := s.svc.Catalog().Location(location)
			if err != nil {
				return err
			}
			free, err := s.svc.AvailableSlots(cmd.Context(), loc.ID, date)
			if err != nil {
				return err
			}
			isFree := make(map[int]bool, len(free))
			for _, m := range free {
				isFree[m] = true
			}

			all := s.svc.Catalog().SlotsFor(loc.ID, date)
			fmt.Printf("%s, %s %s: %d slots, %d free\n", loc.Label, date.Weekday(), availability.FormatDate(date), len(all), len(free))
			for _, m := range all {
				state := "taken"
				if isFree[m] {
					state = "free"
				}
				fmt.Printf("  %s  %s\n", availability.FormatClock(m), state)
			}
			return nil
		},
	}
	cmd.Flags().String("location", "rosario", "Location id")
	cmd.Flags().String("date", time.Now().Format(availability.DateLayout), "Date (YYYY-MM-DD)")
	return cmd
}

func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Print a month grid with active appointments per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")
			location, _ := cmd.Flags().GetString("location")
			if month < 1 || month > 12 {
				return fmt.Errorf("--month must be 1-12")
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.svc.Snapshot(cmd.Context(), operator)
			if err != nil {
				return err
			}
			var locs []string
			if location != "" {
				locs = []string{location}
			}
			m := calendar.NewProjector(s.svc.Catalog()).Month(snap, year, time.Month(month), locs...)

			fmt.Printf("%s %d\n", m.Month, m.Year)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "Sun\tMon\tTue\tWed\tThu\tFri\tSat\t")
			for _, week := range m.Weeks {
				cells := make([]string, len(week))
				for i, c := range week {
					switch {
					case !c.InMonth:
						cells[i] = "."
					case c.TotalSlots == 0:
						cells[i] = fmt.Sprintf("%2d -", c.Date.Day())
					default:
						cells[i] = fmt.Sprintf("%2d %d/%d", c.Date.Day(), c.OccupiedSlots, c.TotalSlots)
					}
				}
				fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
			}
			return w.Flush()
		},
	}
	now := time.Now()
	cmd.Flags().Int("year", now.Year(), "Year")
	cmd.Flags().Int("month", int(now.Month()), "Month (1-12)")
	cmd.Flags().String("location", "", "Restrict to one location id")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if email == "" {
				return fmt.Errorf("--email is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}

			actor := appointment.Actor{Subject: email, Email: email, Name: name, Role: appointment.RoleClient}
			if role == string(appointment.RoleStaff) {
				actor.Role = appointment.RoleStaff
			}
			token, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, ttl).Issue(actor)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Subject email")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("role", string(appointment.RoleClient), "client or staff")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to TOKEN_TTL)")
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Record that a partial reschedule was fixed by hand",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("appointment")
			note, _ := cmd.Flags().GetString("note")
			if id == "" {
				return fmt.Errorf("--appointment is required")
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			auditor, ok := s.backend.Store.(appointment.Auditor)
			if !ok {
				return errors.New("store backend keeps no audit log")
			}
			if _, err := s.svc.Appointment(cmd.Context(), operator, id); err != nil {
				return err
			}
			payload, _ := json.Marshal(map[string]string{"note": note, "by": operator.Subject})
			if err := auditor.InsertEvent(cmd.Context(), appointment.EventLog{
				EventType:     appointment.EventReconciled,
				AppointmentID: id,
				Payload:       payload,
				CreatedAt:     time.Now().UTC(),
			}); err != nil {
				return err
			}
			fmt.Printf("appointment %s marked reconciled\n", id)
			return nil
		},
	}
	cmd.Flags().String("appointment", "", "Source appointment id of the partial reschedule")
	cmd.Flags().String("note", "", "What was done")
	return cmd
}
