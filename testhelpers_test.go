//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bloodlink/service-delivery/internal/application"
	"github.com/bloodlink/service-delivery/internal/config"
	"github.com/bloodlink/service-delivery/internal/database"
	"github.com/bloodlink/service-delivery/internal/domain/route"
	"github.com/bloodlink/service-delivery/internal/events"
	"github.com/bloodlink/service-delivery/internal/osrm"
	"github.com/bloodlink/service-delivery/internal/realtime"
	"github.com/bloodlink/service-delivery/internal/repository"
	"github.com/bloodlink/service-delivery/internal/routecache"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	Redis        *redis.Client
	KafkaBrokers []string
	Cleanup      func()
}

// deliveryStack holds wired-up delivery service components.
type deliveryStack struct {
	Deliveries  *application.DeliveryService
	Tracking    *application.TrackingService
	Consumer    *events.CourierLocationConsumer
	RouterCalls *atomic.Int64
	Cleanup     func()
}

// setupContainers starts PostgreSQL, Redis and Kafka testcontainers and migrates the schema.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "test_delivery",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbCfg := config.DatabaseConfig{
		Host:     pgHost,
		Port:     pgPort.Int(),
		User:     "test",
		Password: "test",
		Name:     "test_delivery",
		SSLMode:  "disable",
	}

	var db *gorm.DB
	require.Eventually(t, func() bool {
		db, err = database.Connect(dbCfg, log)
		return err == nil
	}, 30*time.Second, time.Second, "PostgreSQL not ready for connections")
	require.NoError(t, database.RunMigrations(dbCfg.URL(), log))

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)
	redisClient, err := routecache.NewRedisClient(ctx, routecache.RedisConfig{
		Addr: net.JoinHostPort(redisHost, redisPort.Port()),
	})
	require.NoError(t, err)

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")
	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, events.TopicDeliveryEvents, events.TopicCourierLocations)

	cleanup := func() {
		_ = redisClient.Close()
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		Redis:        redisClient,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// newRoutingStub serves a straight-line route between the two requested coordinates.
func newRoutingStub(calls *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var lon1, lat1, lon2, lat2 float64
		_, err := fmt.Sscanf(r.URL.Path, "/route/v1/driving/%f,%f;%f,%f", &lon1, &lat1, &lon2, &lat2)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"code":"Ok","routes":[{"distance":4200,"duration":480,"geometry":{"type":"LineString","coordinates":[[%s,%s],[%s,%s]]}}]}`,
			ftoa(lon1), ftoa(lat1), ftoa(lon2), ftoa(lat2))
	}))
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// setupDeliveryStack wires up the full delivery service stack against the containers.
func setupDeliveryStack(t *testing.T, infra *testInfra) *deliveryStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	calls := &atomic.Int64{}
	router := newRoutingStub(calls)

	client := osrm.NewClient(osrm.Config{BaseURL: router.URL, Timeout: 5 * time.Second}, logger)
	fetcher := routecache.NewCachingFetcher(client, routecache.NewRedisStore(infra.Redis),
		routecache.DefaultTTL, routecache.DefaultPrecision, logger)

	producer := events.NewProducer(infra.KafkaBrokers, logger)
	hub := realtime.NewHub(logger)
	deliveryRepo := repository.NewGormDeliveryRepository(infra.DB)
	snapshotRepo := repository.NewGormRouteSnapshotRepository(infra.DB)

	tracking := application.NewTrackingService(fetcher, deliveryRepo, snapshotRepo, producer, hub,
		application.TrackingConfig{}, logger)
	deliveries := application.NewDeliveryService(deliveryRepo, tracking, producer, "", logger)

	groupID := fmt.Sprintf("test-delivery-%s", uuid.New().String()[:8])
	consumer := events.NewCourierLocationConsumer(infra.KafkaBrokers, groupID, events.TopicCourierLocations, tracking, logger)

	return &deliveryStack{
		Deliveries:  deliveries,
		Tracking:    tracking,
		Consumer:    consumer,
		RouterCalls: calls,
		Cleanup: func() {
			_ = consumer.Close()
			tracking.Shutdown()
			hub.Close()
			_ = producer.Close()
			router.Close()
		},
	}
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, subject string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := events.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := events.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")
	ce.WithSubject(subject)

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForRouteSnapshot polls the route_snapshots table until a row for the delivery exists.
func waitForRouteSnapshot(t *testing.T, db *gorm.DB, deliveryID uuid.UUID, timeout time.Duration) repository.RouteSnapshotModel {
	t.Helper()
	var result repository.RouteSnapshotModel
	require.Eventually(t, func() bool {
		return db.Where("delivery_id = ?", deliveryID).First(&result).Error == nil
	}, timeout, 200*time.Millisecond, "route snapshot for %s was not stored", deliveryID)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) *events.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := events.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}

func evtWaypoint(e events.CourierLocationReportedEvent) route.Waypoint {
	return route.Waypoint{Latitude: e.Latitude, Longitude: e.Longitude}
}
