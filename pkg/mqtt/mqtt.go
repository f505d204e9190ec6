package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/pkg/file"
)

// Client defines the interface for the shared broker connection.
type Client interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error
	Unsubscribe(topics ...string) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Service provides methods for MQTT operations over one paho connection.
type Service struct {
	client     mqttLib.Client
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewMqttService creates a new Service instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *Service {
	return &Service{
		fileClient: fileClient,
		logger:     logger.With().Str("component", "mqtt").Logger(),
	}
}

// Initialize sets up the MQTT client and starts the connection. Reconnects
// are handled by the transport with a bounded backoff; application code
// never retries connection-level failures itself. An empty caCertPath skips
// TLS for local development brokers.
func (s *Service) Initialize(broker, clientID, caCertPath, username, password string) error {
	opts := mqttLib.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetOrderMatters(false)

	if caCertPath != "" {
		caCert, err := s.fileClient.ReadFileRaw(caCertPath)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("failed to append CA certificate")
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: caCertPool})
	}

	opts.SetConnectionLostHandler(func(_ mqttLib.Client, err error) {
		s.logger.Warn().Err(err).Msg("Broker connection lost, reconnecting")
	})
	opts.SetOnConnectHandler(func(_ mqttLib.Client) {
		s.logger.Info().Str("broker", broker).Msg("Connected to broker")
	})

	s.client = mqttLib.NewClient(opts)
	return s.Connect()
}

// Connect connects to the MQTT broker.
func (s *Service) Connect() error {
	token := s.client.Connect()
	token.Wait()
	return token.Error()
}

// Publish sends a message to the specified topic.
func (s *Service) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := s.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Subscribe subscribes to the specified topic with a message handler.
func (s *Service) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	token := s.client.Subscribe(topic, qos, callback)
	token.Wait()
	return token.Error()
}

// Unsubscribe unsubscribes from the specified topics.
func (s *Service) Unsubscribe(topics ...string) error {
	token := s.client.Unsubscribe(topics...)
	token.Wait()
	return token.Error()
}

// IsConnected reports whether the broker connection is currently up.
func (s *Service) IsConnected() bool {
	return s.client != nil && s.client.IsConnected()
}

// Disconnect gracefully disconnects the MQTT client.
func (s *Service) Disconnect(quiesce uint) {
	if s.client != nil {
		s.client.Disconnect(quiesce)
	}
}
