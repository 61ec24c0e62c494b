//go:build e2e
// +build e2e

// Package e2e runs the chat service against real PostgreSQL and RabbitMQ
// containers. Two instances share the database and the relay exchange, so
// the suite also covers cross-instance delivery.
package e2e

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clubing-chat/internal/config"
	"clubing-chat/internal/handler"
	"clubing-chat/internal/messaging"
	"clubing-chat/internal/observability"
	"clubing-chat/internal/repository/postgres"
	"clubing-chat/internal/server"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testJWTSecret = "e2e-secret-that-is-long-enough-for-hs256"

// instance is one running chat server.
type instance struct {
	app     *server.App
	relay   *messaging.Relay
	baseURL string
	wsURL   string
}

var (
	testDB      *sql.DB
	nodeA       *instance
	nodeB       *instance
	testContext context.Context
	cancelFunc  context.CancelFunc
	clubCounter atomic.Int64
)

// TestMain sets up the E2E test environment
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	testContext = ctx
	cancelFunc = cancel

	observability.InitLogger("warn", "text")

	cleanup, err := setupTestEnvironment(ctx)
	if err != nil {
		log.Fatalf("failed to setup test environment: %v", err)
	}

	code := m.Run()

	cleanup()
	cancel()

	os.Exit(code)
}

// setupTestEnvironment starts PostgreSQL, RabbitMQ, and two chat servers
func setupTestEnvironment(ctx context.Context) (func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	pgCleanup, connStr, err := startPostgres(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL: %w", err)
	}
	cleanups = append(cleanups, pgCleanup)

	testDB, err = config.NewPostgresConnection(connStr)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanups = append(cleanups, func() { testDB.Close() })

	if err := postgres.Migrate(ctx, testDB); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	rmqCleanup, rmqURL, err := startRabbitMQ(ctx)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to start RabbitMQ: %w", err)
	}
	cleanups = append(cleanups, rmqCleanup)

	for _, node := range []**instance{&nodeA, &nodeB} {
		inst, instCleanup, err := startInstance(ctx, rmqURL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to start chat server: %w", err)
		}
		cleanups = append(cleanups, instCleanup)
		*node = inst
	}

	return cleanup, nil
}

// startInstance runs one chat server with its own relay connection.
func startInstance(ctx context.Context, rmqURL string) (*instance, func(), error) {
	rmqCtx, rmqCancel := context.WithTimeout(ctx, 30*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, rmqURL, 10, time.Second)
	rmqCancel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	instCtx, instCancel := context.WithCancel(context.Background())
	relay := messaging.NewRelay(rmq)

	app := server.New(instCtx, server.Options{
		Config: &config.Config{
			Environment:         "test",
			JWTSecret:           testJWTSecret,
			HistoryDefaultLimit: 30,
			HistoryMaxLimit:     100,
			OperationTimeout:    5 * time.Second,
			WSMessagesPerSecond: 100,
			WSBurst:             100,
			OpenAPISpecPath:     "../../artifacts/openapi.yaml",
		},
		Stores: server.Stores{
			Rooms:    postgres.NewRoomRepository(testDB),
			Messages: postgres.NewMessageRepository(testDB),
			Clubs:    postgres.NewClubDirectory(testDB),
		},
		Relay:       relay,
		ReadyChecks: []handler.HealthCheck{handler.DatabaseCheck(testDB), handler.RabbitMQCheck(rmq)},
	})

	go app.Hub.Run(instCtx)
	go relay.Run(instCtx)
	if err := messaging.NewConsumer(rmq, relay.Origin(), app.Hub).Start(instCtx); err != nil {
		instCancel()
		rmq.Close()
		return nil, nil, fmt.Errorf("failed to start relay consumer: %w", err)
	}

	srv := httptest.NewServer(app.Handler)
	if err := waitForHealthy(srv.URL); err != nil {
		srv.Close()
		instCancel()
		rmq.Close()
		return nil, nil, err
	}

	inst := &instance{
		app:     app,
		relay:   relay,
		baseURL: srv.URL,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
	cleanup := func() {
		instCancel()
		srv.Close()
		rmq.Close()
	}
	return inst, cleanup, nil
}

func waitForHealthy(baseURL string) error {
	maxRetries := 20
	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(baseURL + "/health/ready")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			log.Printf("readiness attempt %d failed with status %d", i+1, resp.StatusCode)
		} else {
			log.Printf("readiness attempt %d failed: %v", i+1, err)
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server did not become ready after %d attempts", maxRetries)
}

// streamContainerLogs starts a goroutine that streams container logs to stdout with a prefix
func streamContainerLogs(ctx context.Context, container testcontainers.Container, prefix string) {
	go func() {
		reader, err := container.Logs(ctx)
		if err != nil {
			log.Printf("[%s] failed to get logs: %v", prefix, err)
			return
		}
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			log.Printf("[%s] %s", prefix, scanner.Text())
		}

		if err := scanner.Err(); err != nil && err != io.EOF {
			log.Printf("[%s] log reader error: %v", prefix, err)
		}
	}()
}

// startPostgres starts a PostgreSQL container for testing
func startPostgres(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "clubing",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}

	// Stream container logs
	streamContainerLogs(ctx, container, "PostgreSQL")

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/clubing?sslmode=disable", host, port.Port())

	// Wait for PostgreSQL to be fully ready
	time.Sleep(2 * time.Second)

	cleanup := func() {
		container.Terminate(ctx)
	}

	return cleanup, connStr, nil
}

// startRabbitMQ starts a RabbitMQ container for testing
func startRabbitMQ(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-management-alpine",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}

	// Stream container logs
	streamContainerLogs(ctx, container, "RabbitMQ")

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())

	// Wait for RabbitMQ to be fully ready
	time.Sleep(2 * time.Second)

	cleanup := func() {
		container.Terminate(ctx)
	}

	return cleanup, url, nil
}

