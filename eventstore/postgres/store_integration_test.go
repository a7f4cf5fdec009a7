//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/arkflow-dev/reactor/eventstore"
	"github.com/arkflow-dev/reactor/eventstore/postgres"
	"github.com/arkflow-dev/reactor/ids"
)

// Gated behind the integration build tag so a plain `go test ./...` never
// needs Docker, matching the teacher's environment-gated heavy test style
// (pkg/dcb/tests/setup_test.go spins up its own testcontainers Postgres per
// suite run).

const schema = `
CREATE TABLE events (
    stream_id  TEXT   NOT NULL,
    version    BIGINT NOT NULL,
    event_type TEXT   NOT NULL,
    data       BYTEA  NOT NULL,
    metadata   JSONB  NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (stream_id, version)
);
CREATE TABLE snapshots (
    stream_id TEXT PRIMARY KEY,
    version   BIGINT NOT NULL,
    state     BYTEA  NOT NULL,
    saved_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var (
	pool  *pgxpool.Pool
	store *postgres.Store
)

var _ = BeforeSuite(func() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16.10",
		tcpostgres.WithDatabase("reactor"),
		tcpostgres.WithUsername("reactor"),
		tcpostgres.WithPassword("reactor"),
	)
	Expect(err).NotTo(HaveOccurred())

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	pool, err = pgxpool.New(ctx, dsn)
	Expect(err).NotTo(HaveOccurred())

	_, err = pool.Exec(ctx, schema)
	Expect(err).NotTo(HaveOccurred())

	store, err = postgres.New(pool)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
})

var _ = Describe("postgres.Store", func() {
	BeforeEach(func() {
		_, err := pool.Exec(context.Background(), "TRUNCATE TABLE events, snapshots")
		Expect(err).NotTo(HaveOccurred())
	})

	It("appends starting at version 1 for a new stream", func() {
		ctx := context.Background()
		v, err := store.AppendEvents(ctx, ids.New("order-1"), nil, []eventstore.SerializedEvent{
			{EventType: "OrderPlaced.v1", Data: []byte(`{}`)},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(ids.Version(1)))

		loaded, err := store.LoadEvents(ctx, ids.New("order-1"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(HaveLen(1))
		Expect(loaded[0].Version).To(Equal(ids.Version(1)))
	})

	It("rejects a mismatched expected version with ConcurrencyConflictError", func() {
		ctx := context.Background()
		stream := ids.New("order-2")
		_, err := store.AppendEvents(ctx, stream, nil, []eventstore.SerializedEvent{
			{EventType: "OrderPlaced.v1", Data: []byte(`{}`)},
		})
		Expect(err).NotTo(HaveOccurred())

		bad := ids.Version(5)
		_, err = store.AppendEvents(ctx, stream, &bad, []eventstore.SerializedEvent{
			{EventType: "OrderCancelled.v1", Data: []byte(`{}`)},
		})
		Expect(eventstore.IsConcurrencyConflict(err)).To(BeTrue())
	})

	It("round-trips a snapshot", func() {
		ctx := context.Background()
		stream := ids.New("order-3")
		Expect(store.SaveSnapshot(ctx, stream, 4, []byte(`{"total":4}`))).To(Succeed())

		v, state, ok, err := store.LoadSnapshot(ctx, stream)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(ids.Version(4)))
		Expect(state).To(MatchJSON(`{"total":4}`))
	})
})

func TestPostgresStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "postgres.Store Integration Suite")
}
