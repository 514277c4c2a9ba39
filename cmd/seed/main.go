package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-scheduling/internal/store/memstore"
)

var seeder = appointment.Actor{Subject: "seed", Email: "seed@clinic.local", Name: "Seed", Role: appointment.RoleStaff}

var notes = []string{
	"",
	"primera consulta",
	"control post tratamiento",
	"trae estudios previos",
	"piel sensible",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLog := logging.New("prod", "info", "seed")
		fatalLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Str("store", cfg.StoreBackend).Msg("seed starting")

	tz, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("clinic timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	backend, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer backend.Close()

	if catalog, ok := backend.Store.(bootstrap.ServiceCatalog); ok {
		if err := catalog.UpsertServices(ctx, memstore.DefaultServices()); err != nil {
			logger.Fatal().Err(err).Msg("seed services")
		}
		logger.Info().Int("count", len(memstore.DefaultServices())).Msg("services seeded")
	}

	gofakeit.Seed(time.Now().UnixNano())

	svc := scheduling.NewService(backend.Store, availability.DefaultCatalog(tz), cfg.Policy(tz),
		scheduling.WithLogger(logger.Level(zerolog.WarnLevel)))

	count := getInt("SEED_APPOINTMENTS", 200)
	days := getInt("SEED_DAYS", 30)
	created, conflicts := seedAppointments(ctx, svc, count, days, logger)

	logger.Info().Int("created", created).Int("conflicts", conflicts).Msg("seed complete")
}

// seedAppointments books count appointments on random free slots within the
// next days, confirming roughly a third of them. Free slots come from a local
// snapshot that every booking is applied to, so the store is listed once.
func seedAppointments(ctx context.Context, svc *scheduling.Service, count, days int, logger zerolog.Logger) (created, conflicts int) {
	services, err := svc.Services(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list services")
	}
	snap, err := svc.Snapshot(ctx, seeder)
	if err != nil {
		logger.Fatal().Err(err).Msg("load appointments")
	}
	record := func(a appointment.Appointment) {
		next, ok := snap.Apply(snap.Generation, a)
		if !ok {
			logger.Fatal().Uint64("generation", snap.Generation).Msg("stale snapshot")
		}
		snap = next
	}

	catalog := svc.Catalog()
	locations := catalog.Locations()
	today := catalog.Today(svc.Now())

	for attempt := 0; created < count && attempt < count*5; attempt++ {
		loc := locations[gofakeit.Number(0, len(locations)-1)]
		date := today.AddDate(0, 0, gofakeit.Number(1, days))

		free := scheduling.FreeSlots(catalog.SlotsFor(loc.ID, date), snap.On(loc.ID, date), loc.ID, date)
		if len(free) == 0 {
			continue
		}

		a, err := svc.Create(ctx, seeder, scheduling.BookingRequest{
			LocationID:  loc.ID,
			ServiceID:   services[gofakeit.Number(0, len(services)-1)].ID,
			Date:        date,
			StartMinute: free[gofakeit.Number(0, len(free)-1)],
			Patient: appointment.Contact{
				Name:  gofakeit.Name(),
				Email: gofakeit.Email(),
				Phone: gofakeit.Phone(),
			},
			Notes: gofakeit.RandomString(notes),
		})
		switch {
		case errors.Is(err, appointment.ErrSlotUnavailable), errors.Is(err, appointment.ErrInvalidSlot):
			// Longer services may not fit the slot picked or may overlap a neighbour.
			conflicts++
			continue
		case err != nil:
			logger.Fatal().Err(err).Msg("create appointment")
		}
		created++
		record(*a)

		if a.Status == appointment.StatusPending && gofakeit.Number(0, 2) == 0 {
			confirmed, err := svc.Confirm(ctx, seeder, *a)
			if err != nil {
				logger.Warn().Err(err).Str("appointment_id", a.ID).Msg("confirm seeded appointment")
			} else {
				record(*confirmed)
			}
		}
		if created%50 == 0 {
			logger.Info().Int("created", created).Int("target", count).Msg("appointments seeded")
		}
	}
	return created, conflicts
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
