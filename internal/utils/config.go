package utils

import (
	"github.com/sensorgrid/iot-core/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate
		Username      string `yaml:"username"`       // Service username for broker auth
		Password      string `yaml:"password"`       // Service password for broker auth
		QOS           int    `yaml:"qos"`            // MQTT QoS level for all subscriptions
	} `yaml:"mqtt"`

	HTTP struct {
		Address string `yaml:"address"` // Listen address for the realtime/introspection server
	} `yaml:"http"`

	AdminAPI struct {
		BaseURL    string `yaml:"base_url"`    // Administrative API base URL
		ServiceKey string `yaml:"service_key"` // Service credential sent on every call
	} `yaml:"admin_api"`

	Ingestion struct {
		Topic                 string `yaml:"topic"`                   // Telemetry subscription topic filter
		MaxConcurrentForwards int    `yaml:"max_concurrent_forwards"` // Cap on in-flight forwards to the admin API
		ShutdownDrainTimeout  int    `yaml:"shutdown_drain_timeout"`  // Bound on draining in-flight forwards at shutdown (in seconds)
	} `yaml:"ingestion"`

	Commands struct {
		QueueTopic         string `yaml:"queue_topic"`          // Administrative command enqueue topic
		AckTopic           string `yaml:"ack_topic"`            // Device acknowledgment topic filter
		CommandTopicPrefix string `yaml:"command_topic_prefix"` // Prefix for per-device outbound command topics
		DispatchInterval   int    `yaml:"dispatch_interval"`    // Delay between dispatch loop iterations (in seconds)
	} `yaml:"commands"`

	Realtime struct {
		JWTSecretFile string `yaml:"jwt_secret_file"` // Path to the HMAC secret for bearer tokens
		StatsInterval int    `yaml:"stats_interval"`  // Interval between system stats broadcasts (in seconds)
	} `yaml:"realtime"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
