package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/graphsync/internal/consistency"
	"github.com/OFFIS-RIT/graphsync/internal/queue"
	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/ai"
	oai "github.com/OFFIS-RIT/graphsync/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/graphsync/pkg/ai/openai"
	"github.com/OFFIS-RIT/graphsync/pkg/leaselock"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/logger/console"
	pgstore "github.com/OFFIS-RIT/graphsync/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	aiClient := newAIClient()

	// Init pgx client, the database may still be starting next to the worker
	databaseURL := util.GetEnv("DATABASE_URL")
	_, err := util.RetryWithBackoff(ctx, 5, 2*time.Second, func(context.Context) (struct{}, error) {
		return struct{}{}, pgstore.Migrate(databaseURL)
	})
	if err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}
	pgConn, err := util.RetryWithBackoff(ctx, 5, 2*time.Second, func(ctx context.Context) (*pgxpool.Pool, error) {
		return pgstore.Connect(ctx, databaseURL)
	})
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	statuses := consistency.NewPgStatusStore(pgConn)
	leases := leaselock.New(pgConn, leaselock.Options{
		TTL:        util.GetEnvDuration("LEASE_TTL", 5*time.Minute),
		RenewEvery: util.GetEnvDuration("LEASE_RENEW_EVERY", 0),
	})
	registry := consistency.NewRegistry(newDriverFactory(driverDeps{
		opener:   pgstore.NewOpener(pgConn),
		statuses: statuses,
		leases:   leases,
		aiClient: aiClient,
	}))
	defer registry.StopAll()

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	for _, name := range util.GetEnvList("GRAPH_NAMES") {
		if _, _, err := registry.Start(ctx, name); err != nil {
			logger.Error("Failed to start driver", "graph", name, "err", err)
		}
	}
	if err := queue.RecoverGraphs(ctx, ch, statuses); err != nil {
		logger.Error("Failed to recover graphs", "err", err)
	}

	go reportAIMetrics(ctx, aiClient, util.GetEnvDuration("AI_METRICS_INTERVAL", 5*time.Minute))

	// prefetch=1 keeps driver start and stop requests strictly ordered
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()
	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.SyncQueue,
		queue.SyncQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.SyncQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.SyncQueue)
	consume(ctx, registry, consumerCh, msgs)
	logger.Info("Shutdown signal received, stopping drivers...")
}

func consume(ctx context.Context, registry *consistency.Registry, ch *amqp.Channel, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.SyncQueue)
				return
			}
			startTime := time.Now()
			if err := queue.ProcessSyncMessage(ctx, registry, msg.Body); err != nil {
				logger.Error("Error processing message", "queue", queue.SyncQueue, "err", err)
				queue.HandleProcessingError(ch, msg, queue.SyncQueue)
				continue
			}
			if err := msg.Ack(false); err != nil {
				logger.Error("Failed to ack message", "err", err)
			}
			logger.Debug("Message processed successfully", "duration", time.Since(startTime))
		}
	}
}

func newAIClient() ai.GraphAIClient {
	var aiClient ai.GraphAIClient

	switch adapter := util.GetEnvString("AI_ADAPTER", "openai"); adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			Dimensions:      util.GetEnvInt("AI_EMBED_DIMENSIONS", 0),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			Timeout:               util.GetEnvDuration("AI_TIMEOUT", 0),
			MaxConcurrentRequests: int64(util.GetEnvInt("AI_MAX_CONCURRENT_REQUESTS", 0)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	case "openai":
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			Dimensions:      util.GetEnvInt("AI_EMBED_DIMENSIONS", 0),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			Timeout:                 util.GetEnvDuration("AI_TIMEOUT", 0),
			MaxConcurrentEmbeddings: int64(util.GetEnvInt("AI_MAX_CONCURRENT_EMBEDDINGS", 0)),
		})
	default:
		logger.Fatal("Unknown AI adapter", "adapter", adapter)
	}

	return ai.NewRateLimitedClient(
		aiClient,
		util.GetEnvNumeric("AI_REQUESTS_PER_SECOND", 0),
		util.GetEnvInt("AI_REQUESTS_BURST", 1),
	)
}

func reportAIMetrics(ctx context.Context, client ai.GraphAIClient, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics := client.GetMetrics()
			if metrics.Requests == 0 {
				continue
			}
			logger.Info(
				"AI Metrics",
				"requests", metrics.Requests,
				"input_tokens", metrics.InputTokens,
				"output_tokens", metrics.OutputTokens,
				"total_tokens", metrics.TotalTokens,
				"tokens_per_second", metrics.TokenPerSecond,
				"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
			)
			client.ResetMetrics()
		}
	}
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
