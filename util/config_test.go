package util

import (
	"os"
	"testing"
	"time"
)

func TestConfigConstants(t *testing.T) {
	if Name != "warbler" {
		t.Errorf("Expected Name 'warbler', got '%s'", Name)
	}

	if ConfigFileName != "config.yaml" {
		t.Errorf("Expected ConfigFileName 'config.yaml', got '%s'", ConfigFileName)
	}
}

func TestReadConfWithYaml(t *testing.T) {
	// Create a test config file
	yamlContent := `
conf:
  host: 127.0.0.1
  httpPort: 9999
  domain: example.com
  username: blog
  dataDir: /tmp/warbler-test
  requireSignatures: true
  autoAcceptFollows: true
  freshnessWindowSec: 300
  requestTimeoutSec: 30
  reclaimAfterSec: 900
  workerIntervalSec: 10
`
	err := os.WriteFile("config.yaml", []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	defer os.Remove("config.yaml")

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if config.Conf.Host != "127.0.0.1" {
		t.Errorf("Expected Host '127.0.0.1', got '%s'", config.Conf.Host)
	}

	if config.Conf.HttpPort != 9999 {
		t.Errorf("Expected HttpPort 9999, got %d", config.Conf.HttpPort)
	}

	if config.Conf.Domain != "example.com" {
		t.Errorf("Expected Domain 'example.com', got '%s'", config.Conf.Domain)
	}

	if config.Conf.Username != "blog" {
		t.Errorf("Expected Username 'blog', got '%s'", config.Conf.Username)
	}

	if !config.Conf.RequireSignatures {
		t.Error("Expected RequireSignatures to be true")
	}

	if !config.Conf.AutoAcceptFollows {
		t.Error("Expected AutoAcceptFollows to be true")
	}
}

func TestReadConfWithEnvOverrides(t *testing.T) {
	// Create a test config file
	yamlContent := `
conf:
  host: 127.0.0.1
  httpPort: 9999
  domain: example.com
  username: blog
  requireSignatures: false
  autoAcceptFollows: false
`
	err := os.WriteFile("config.yaml", []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	defer os.Remove("config.yaml")

	// Set environment variables
	os.Setenv("WARBLER_HOST", "192.168.1.1")
	os.Setenv("WARBLER_HTTPPORT", "8080")
	os.Setenv("WARBLER_DOMAIN", "test.example.com")
	os.Setenv("WARBLER_USERNAME", "feed")
	os.Setenv("WARBLER_REQUIRE_SIGNATURES", "true")
	os.Setenv("WARBLER_AUTO_ACCEPT_FOLLOWS", "true")

	defer func() {
		os.Unsetenv("WARBLER_HOST")
		os.Unsetenv("WARBLER_HTTPPORT")
		os.Unsetenv("WARBLER_DOMAIN")
		os.Unsetenv("WARBLER_USERNAME")
		os.Unsetenv("WARBLER_REQUIRE_SIGNATURES")
		os.Unsetenv("WARBLER_AUTO_ACCEPT_FOLLOWS")
	}()

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	// Environment variables should override YAML values
	if config.Conf.Host != "192.168.1.1" {
		t.Errorf("Expected Host '192.168.1.1' from env, got '%s'", config.Conf.Host)
	}

	if config.Conf.HttpPort != 8080 {
		t.Errorf("Expected HttpPort 8080 from env, got %d", config.Conf.HttpPort)
	}

	if config.Conf.Domain != "test.example.com" {
		t.Errorf("Expected Domain 'test.example.com' from env, got '%s'", config.Conf.Domain)
	}

	if config.Conf.Username != "feed" {
		t.Errorf("Expected Username 'feed' from env, got '%s'", config.Conf.Username)
	}

	if !config.Conf.RequireSignatures {
		t.Error("Expected RequireSignatures to be true from env")
	}

	if !config.Conf.AutoAcceptFollows {
		t.Error("Expected AutoAcceptFollows to be true from env")
	}
}

func TestReadConfInvalidPortEnv(t *testing.T) {
	yamlContent := `
conf:
  httpPort: 9999
`
	err := os.WriteFile("config.yaml", []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	defer os.Remove("config.yaml")

	os.Setenv("WARBLER_HTTPPORT", "not-a-port")
	defer os.Unsetenv("WARBLER_HTTPPORT")

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	// Invalid override is ignored, YAML value wins
	if config.Conf.HttpPort != 9999 {
		t.Errorf("Expected HttpPort 9999, got %d", config.Conf.HttpPort)
	}
}

func TestActorURIAndKeyId(t *testing.T) {
	config := &AppConfig{}
	config.Conf.Domain = "example.com"

	if got := config.ActorURI(); got != "https://example.com/activitypub/actor" {
		t.Errorf("Unexpected actor URI: %s", got)
	}

	if got := config.KeyId(); got != "https://example.com/activitypub/actor#main-key" {
		t.Errorf("Unexpected key id: %s", got)
	}
}

func TestDurationGetters(t *testing.T) {
	config := &AppConfig{}
	config.Conf.FreshnessWindowSec = 300
	config.Conf.RequestTimeoutSec = 30
	config.Conf.ReclaimAfterSec = 900
	config.Conf.WorkerIntervalSec = 10

	if got := config.FreshnessWindow(); got != 5*time.Minute {
		t.Errorf("Expected 5m freshness window, got %v", got)
	}
	if got := config.RequestTimeout(); got != 30*time.Second {
		t.Errorf("Expected 30s request timeout, got %v", got)
	}
	if got := config.ReclaimAfter(); got != 15*time.Minute {
		t.Errorf("Expected 15m reclaim threshold, got %v", got)
	}
	if got := config.WorkerInterval(); got != 10*time.Second {
		t.Errorf("Expected 10s worker interval, got %v", got)
	}
}
