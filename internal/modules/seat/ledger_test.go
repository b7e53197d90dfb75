// README: Concurrency tests for the seat ledger (run with -race against CARPOOL_TEST_DSN).
package seat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/infra"
	"carpool/internal/infra/pgtest"
	"carpool/internal/types"
)

func newTestLedger() *Ledger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return NewLedger(log)
}

func insertRide(t *testing.T, db *pgxpool.Pool, seats int) types.ID {
	t.Helper()
	id := types.NewID()
	_, err := db.Exec(context.Background(), `
		INSERT INTO rides (id, driver_id, origin_address, origin_lat, origin_lng,
		                   destination_address, destination_lat, destination_lng,
		                   departure_time, total_seats, available_seats, price_per_seat, currency, status)
		VALUES ($1, 'driver_1', 'Liberty Market', 31.5102, 74.3441, 'DHA Phase 5', 31.4697, 74.4085,
		        $2, $3, $3, 50000, 'PKR', 'open')`,
		string(id), time.Now().Add(2*time.Hour), seats)
	require.NoError(t, err)
	return id
}

func TestLedger_ConcurrentReserveNoOversell(t *testing.T) {
	db := pgtest.Setup(t)
	ledger := newTestLedger()
	ctx := context.Background()
	rideID := insertRide(t, db, 2)

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ledger.Reserve(ctx, db, rideID, 2)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientSeats)
	}
	assert.Equal(t, 1, success)

	c, err := ledger.Get(ctx, db, rideID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Available)
	assert.Equal(t, StatusFull, c.Status)
}

func TestLedger_ManySingleSeatReservers(t *testing.T) {
	db := pgtest.Setup(t)
	ledger := newTestLedger()
	ctx := context.Background()
	rideID := insertRide(t, db, 4)

	const attempts = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, db, rideID, 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, success)
	c, err := ledger.Get(ctx, db, rideID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Available)
}

func TestLedger_ReserveRollsBackWithTx(t *testing.T) {
	db := pgtest.Setup(t)
	ledger := newTestLedger()
	ctx := context.Background()
	rideID := insertRide(t, db, 3)

	err := infra.InTx(ctx, db, func(tx pgx.Tx) error {
		if _, err := ledger.Reserve(ctx, tx, rideID, 2); err != nil {
			return err
		}
		return ErrRideNotBookable
	})
	require.ErrorIs(t, err, ErrRideNotBookable)

	c, err := ledger.Get(ctx, db, rideID)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Available)
}

func TestLedger_ReleaseReopensAndCaps(t *testing.T) {
	db := pgtest.Setup(t)
	ledger := newTestLedger()
	ctx := context.Background()
	rideID := insertRide(t, db, 2)

	_, err := ledger.Reserve(ctx, db, rideID, 2)
	require.NoError(t, err)

	c, err := ledger.Release(ctx, db, rideID, 1)
	require.NoError(t, err)
	assert.Equal(t, Capacity{Total: 2, Available: 1, Status: StatusOpen}, c)

	c, err = ledger.Release(ctx, db, rideID, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Available)
}

func TestLedger_ReserveUnknownRide(t *testing.T) {
	db := pgtest.Setup(t)
	_, err := newTestLedger().Reserve(context.Background(), db, types.NewID(), 1)
	assert.ErrorIs(t, err, ErrRideNotFound)
}
