// Command eventsourcingd is a demo server exposing the orders example over
// HTTP: POST /orders places an order and waits synchronously for
// OrderPlaced|ValidationFailed (spec §4.8's SendAndWaitFor pattern), GET
// /orders/{id} returns the order held in the store's current state.
// Configuration is read from
// environment variables with inline defaults, grounded on the teacher's
// internal/web-app/main.go (DB_HOST/DB_PORT/... with fallbacks, a
// retry-connect loop against Postgres, net/http with no framework).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkflow-dev/reactor/eventstore/postgres"
	"github.com/arkflow-dev/reactor/examples/orders"
	"github.com/arkflow-dev/reactor/ids"
	"github.com/arkflow-dev/reactor/resilience"
	"github.com/arkflow-dev/reactor/store"
)

type config struct {
	dbHost     string
	dbPort     string
	dbUser     string
	dbPassword string
	dbName     string
	httpAddr   string
}

func loadConfig() config {
	return config{
		dbHost:     envOr("DB_HOST", "localhost"),
		dbPort:     envOr("DB_PORT", "5432"),
		dbUser:     envOr("DB_USER", "reactor"),
		dbPassword: envOr("DB_PASSWORD", "reactor"),
		dbName:     envOr("DB_NAME", "reactor"),
		httpAddr:   envOr("HTTP_ADDR", ":8080"),
	}
}

func (c config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.dbUser, c.dbPassword, c.dbHost, c.dbPort, c.dbName)
}

func connectWithRetry(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	policy := resilience.DefaultRetryPolicy()
	policy.MaxRetries = 30
	policy.InitialDelay = 500 * time.Millisecond
	policy.MaxDelay = 5 * time.Second

	return resilience.RetryValue(ctx, policy, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
}

type server struct {
	store *store.Store[orders.State, orders.Action, orders.Environment]
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	coordinator := resilience.NewShutdownCoordinator(30 * time.Second)

	if err := initTelemetry(ctx, "eventsourcingd", coordinator); err != nil {
		log.Printf("telemetry disabled: %v", err)
	}

	pool, err := connectWithRetry(ctx, cfg.dsn())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	coordinator.Register(resilience.ShutdownHandlerFunc{
		HandlerName: "db-pool",
		Fn: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})

	es, err := postgres.New(pool)
	if err != nil {
		log.Fatalf("failed to create event store: %v", err)
	}

	env := orders.Environment{Store: es}
	s := store.New[orders.State, orders.Action, orders.Environment](orders.NewState(), orders.New(), env)
	coordinator.Register(resilience.ShutdownHandlerFunc{
		HandlerName: "order-store",
		Fn:          s.Shutdown,
	})

	srv := &server{store: s}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", srv.handlePlaceOrder)
	mux.HandleFunc("GET /orders/{id}", srv.handleGetOrder)

	httpServer := &http.Server{Addr: cfg.httpAddr, Handler: mux}
	coordinator.Register(resilience.ShutdownHandlerFunc{
		HandlerName: "http-server",
		Fn:          httpServer.Shutdown,
	})

	go func() {
		log.Printf("eventsourcingd listening on %s", cfg.httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	waitForSignal()
	log.Println("shutdown initiated")
	if err := coordinator.Shutdown(context.Background()); err != nil {
		log.Printf("shutdown completed with errors: %v", err)
		os.Exit(1)
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

type placeOrderRequest struct {
	OrderID string `json:"order_id"`
	Items   []struct {
		SKU       string `json:"sku"`
		Name      string `json:"name"`
		Quantity  int    `json:"quantity"`
		UnitCents int    `json:"unit_cents"`
	} `json:"items"`
}

func (s *server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]orders.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = orders.LineItem{SKU: item.SKU, Name: item.Name, Quantity: item.Quantity, UnitCents: item.UnitCents}
	}

	result, err := s.store.SendAndWaitFor(
		orders.Action{PlaceOrder: &orders.PlaceOrder{OrderID: ids.New(req.OrderID), Items: items}},
		func(a orders.Action) bool { return a.OrderPlaced != nil || a.ValidationFailed != nil },
		10*time.Second,
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	if result.ValidationFailed != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(result.ValidationFailed)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result.OrderPlaced)
}

func (s *server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state := s.store.State()
	order, ok := state.Orders[ids.New(id)]
	if !ok {
		http.NotFound(w, r)
		return
	}
	json.NewEncoder(w).Encode(order)
}
