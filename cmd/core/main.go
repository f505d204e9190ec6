package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sensorgrid/iot-core/internal/catalog"
	"github.com/sensorgrid/iot-core/internal/commandqueue"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/realtime"
	"github.com/sensorgrid/iot-core/internal/service_registry"
	"github.com/sensorgrid/iot-core/internal/services"
	"github.com/sensorgrid/iot-core/internal/telemetry"
	"github.com/sensorgrid/iot-core/internal/utils"
	"github.com/sensorgrid/iot-core/pkg/adminapi"
	"github.com/sensorgrid/iot-core/pkg/file"
	"github.com/sensorgrid/iot-core/pkg/jwt"
	"github.com/sensorgrid/iot-core/pkg/mqtt"
)

func main() {
	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler and load configuration
	fileClient := file.NewFileService()
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyDefaults(config)

	// Generate a unique MQTT client ID by appending a UUID
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	logger.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT client ID")

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient, logger)
	err = mqttClient.Initialize(config.MQTT.Broker, config.MQTT.ClientID, config.MQTT.CACertificate,
		config.MQTT.Username, config.MQTT.Password)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	// Administrative API client and realtime token verifier
	adminAPI := adminapi.NewHTTPClient(config.AdminAPI.BaseURL, config.AdminAPI.ServiceKey, logger)
	verifier, err := jwt.NewVerifier(config.Realtime.JWTSecretFile, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load realtime JWT secret")
	}

	// Core components
	hub := realtime.NewHub(logger)
	transformer := telemetry.NewTransformer(logger)
	cataloger := catalog.NewCataloger(adminAPI, logger)
	dispatchQueue := utils.NewDispatchQueue(config.Ingestion.MaxConcurrentForwards, logger)
	queue := commandqueue.NewQueue(logger)
	publisher := services.NewMQTTCommandPublisher(config.Commands.CommandTopicPrefix, config.MQTT.QOS,
		mqttClient, logger)

	ingestionService := services.NewIngestionService(config.Ingestion.Topic, config.MQTT.QOS,
		time.Duration(config.Ingestion.ShutdownDrainTimeout)*time.Second, mqttClient, transformer,
		cataloger, adminAPI, hub, dispatchQueue, logger)
	ackService := services.NewAckService(config.Commands.AckTopic, config.MQTT.QOS, mqttClient,
		adminAPI, queue, hub, logger)
	dispatchService := services.NewCommandDispatchService(config.Commands.QueueTopic, config.MQTT.QOS,
		time.Duration(config.Commands.DispatchInterval)*time.Second, mqttClient, queue, publisher, logger)
	statsService := services.NewStatsService(time.Duration(config.Realtime.StatsInterval)*time.Second,
		queue, dispatchQueue, publisher, hub, cataloger, logger)
	hub.SetStatsProvider(func() interface{} { return statsService.Snapshot() })

	// Register services; stop order is the reverse, so ingestion stops
	// (and drains) before the command side shuts down.
	registry := service_registry.NewServiceRegistry(logger)
	registry.RegisterService("command_dispatch", dispatchService)
	registry.RegisterService("ack", ackService)
	registry.RegisterService("ingestion", ingestionService)
	registry.RegisterService("stats", statsService)

	if err := registry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// HTTP surface: realtime upgrade plus introspection
	router := mux.NewRouter()
	router.HandleFunc("/realtime", realtime.Handler(hub, verifier, logger))
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsService.Snapshot())
	})
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if !mqttClient.IsConnected() {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"running":          dispatchService.Running(),
			"broker_connected": mqttClient.IsConnected(),
		})
	})

	server := &http.Server{Addr: config.HTTP.Address, Handler: router}
	go func() {
		logger.Info().Str("address", config.HTTP.Address).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := registry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Service shutdown reported failures")
	}
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	mqttClient.Disconnect(250)
}

// applyDefaults fills unset configuration values.
func applyDefaults(config *utils.Config) {
	if config.HTTP.Address == "" {
		config.HTTP.Address = ":8080"
	}
	if config.Ingestion.Topic == "" {
		config.Ingestion.Topic = "devices/+/telemetry"
	}
	if config.Ingestion.MaxConcurrentForwards == 0 {
		config.Ingestion.MaxConcurrentForwards = constants.DefaultMaxConcurrentForwards
	}
	if config.Commands.QueueTopic == "" {
		config.Commands.QueueTopic = "platform/commands/queue"
	}
	if config.Commands.AckTopic == "" {
		config.Commands.AckTopic = "devices/+/commands/ack"
	}
	if config.Commands.CommandTopicPrefix == "" {
		config.Commands.CommandTopicPrefix = "devices"
	}
}
