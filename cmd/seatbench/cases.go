// README: Bench cases: concurrent accept race, over-release cap, and reserve/release churn with audits.
package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"carpool/internal/infra"
	"carpool/internal/modules/seat"
	"carpool/internal/types"
)

type Runner struct {
	cfg    Config
	db     *pgxpool.Pool
	ledger *seat.Ledger
	log    logrus.FieldLogger
	rides  []types.ID
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Runner, error) {
	db, err := infra.NewDB(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.ApplyMigration {
		if err := infra.ApplyMigrationFile(ctx, db, cfg.MigrationPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migration: %w", err)
		}
	}
	return &Runner{cfg: cfg, db: db, ledger: seat.NewLedger(log), log: log}, nil
}

func (r *Runner) Close() {
	if !r.cfg.Keep && len(r.rides) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ids := make([]string, len(r.rides))
		for i, id := range r.rides {
			ids[i] = string(id)
		}
		if _, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE ride_id = ANY($1)`, ids); err != nil {
			r.log.WithError(err).Warn("cleanup bookings")
		}
		if _, err := r.db.Exec(ctx, `DELETE FROM rides WHERE id = ANY($1)`, ids); err != nil {
			r.log.WithError(err).Warn("cleanup rides")
		}
	}
	r.db.Close()
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		res.Latency = time.Since(start).Round(time.Millisecond)
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency)
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "accept race: one seat each", Run: func(ctx context.Context, r *Runner) Result {
			return r.acceptRace(ctx, 1)
		}},
		{Name: "accept race: two seats each", Run: func(ctx context.Context, r *Runner) Result {
			return r.acceptRace(ctx, 2)
		}},
		{Name: "release is capped at total", Run: func(ctx context.Context, r *Runner) Result {
			return r.overRelease(ctx)
		}},
		{Name: "reserve/release churn", Run: func(ctx context.Context, r *Runner) Result {
			return r.churn(ctx)
		}},
	}
}

func (r *Runner) scratchRide(ctx context.Context) (types.ID, error) {
	id := types.NewID()
	_, err := r.db.Exec(ctx, `
		INSERT INTO rides (id, driver_id, origin_address, origin_lat, origin_lng,
		                   destination_address, destination_lat, destination_lng,
		                   departure_time, total_seats, available_seats, price_per_seat, currency, status)
		VALUES ($1, 'seatbench', 'bench origin', 31.5, 74.3, 'bench destination', 31.4, 74.4,
		        NOW() + INTERVAL '1 day', $2, $2, 0, 'PKR', 'open')`,
		string(id), r.cfg.Seats)
	if err != nil {
		return "", fmt.Errorf("insert scratch ride: %w", err)
	}
	r.rides = append(r.rides, id)
	return id, nil
}

// accept mirrors the booking accept path: the seat-holding row and the
// reservation commit or roll back together.
func (r *Runner) accept(ctx context.Context, rideID types.ID, passenger string, seats int) error {
	return infra.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := r.ledger.Reserve(ctx, tx, rideID, seats); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, ride_id, passenger_id, seats_booked, amount, currency, status)
			VALUES ($1, $2, $3, $4, 0, 'PKR', 'accepted')`,
			string(types.NewID()), string(rideID), passenger, seats)
		return err
	})
}

func (r *Runner) acceptRace(ctx context.Context, seats int) Result {
	rideID, err := r.scratchRide(ctx)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	var won, lost, failed atomic.Int64
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := r.accept(ctx, rideID, fmt.Sprintf("bench_p%d", i), seats)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, seat.ErrInsufficientSeats), errors.Is(err, seat.ErrRideNotBookable):
				lost.Add(1)
			default:
				failed.Add(1)
				r.log.WithError(err).Warn("accept failed")
			}
		}(i)
	}
	close(start)
	wg.Wait()

	want := min(int64(r.cfg.Concurrency), int64(r.cfg.Seats/seats))
	note := fmt.Sprintf("won=%d lost=%d errors=%d", won.Load(), lost.Load(), failed.Load())
	if failed.Load() > 0 || won.Load() != want {
		return Result{Status: "FAIL", Note: note + fmt.Sprintf(" want won=%d", want)}
	}
	return r.auditResult(ctx, rideID, note)
}

func (r *Runner) overRelease(ctx context.Context) Result {
	rideID, err := r.scratchRide(ctx)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if _, err := r.ledger.Reserve(ctx, r.db, rideID, 1); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	c, err := r.ledger.Release(ctx, r.db, rideID, r.cfg.Seats+5)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if c.Available != c.Total || c.Status != seat.StatusOpen {
		return Result{Status: "FAIL", Note: fmt.Sprintf("available=%d total=%d status=%s", c.Available, c.Total, c.Status)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("available=%d", c.Available)}
}

// churn runs accept/cancel cycles until the duration elapses and then
// checks the ride against its bookings.
func (r *Runner) churn(ctx context.Context) Result {
	rideID, err := r.scratchRide(ctx)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	end := time.Now().Add(r.cfg.Duration)
	var ops, conflicts, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			passenger := fmt.Sprintf("churn_p%d", i)
			for time.Now().Before(end) && ctx.Err() == nil {
				err := r.accept(ctx, rideID, passenger, 1)
				if errors.Is(err, seat.ErrInsufficientSeats) {
					conflicts.Add(1)
					continue
				}
				if err != nil {
					failed.Add(1)
					continue
				}
				if err := r.cancel(ctx, rideID, passenger); err != nil {
					failed.Add(1)
					continue
				}
				ops.Add(2)
			}
		}(i)
	}
	wg.Wait()

	rate := float64(ops.Load()) / r.cfg.Duration.Seconds()
	note := fmt.Sprintf("ops/s=%.1f conflicts=%d errors=%d", rate, conflicts.Load(), failed.Load())
	if failed.Load() > 0 {
		return Result{Status: "FAIL", Note: note}
	}
	return r.auditResult(ctx, rideID, note)
}

func (r *Runner) cancel(ctx context.Context, rideID types.ID, passenger string) error {
	return infra.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var seats int
		err := tx.QueryRow(ctx, `
			UPDATE bookings SET status = 'cancelled', cancelled_at = NOW()
			WHERE ride_id = $1 AND passenger_id = $2 AND status = 'accepted'
			RETURNING seats_booked`,
			string(rideID), passenger).Scan(&seats)
		if err != nil {
			return err
		}
		_, err = r.ledger.Release(ctx, tx, rideID, seats)
		return err
	})
}

func (r *Runner) auditResult(ctx context.Context, rideID types.ID, note string) Result {
	a, err := r.ledger.Audit(ctx, r.db, rideID)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	note += fmt.Sprintf(" total=%d available=%d held=%d", a.Total, a.Available, a.Held)
	if !a.Consistent() {
		return Result{Status: "FAIL", Note: "capacity invariant broken: " + note}
	}
	return Result{Status: "PASS", Note: note}
}
