package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "csv", c.Dataset.Source)
	assert.Equal(t, 40000, c.Dataset.MaxRows)
	assert.Equal(t, 10*time.Minute, c.Dataset.CacheTTL)
	assert.Equal(t, "models/model.bundle", c.Model.ArtifactPath)
	assert.Equal(t, 200, c.Model.Training.Rounds)
	assert.Equal(t, 0.1, c.Model.Training.LearningRate)
	assert.Equal(t, "binary:logistic", c.Model.Training.Objective)
	assert.Equal(t, time.Second, c.Simulation.Interval)
	assert.Equal(t, "info", c.Logger.Level)
	assert.False(t, c.Kafka.Enabled)
}

func TestParseOverridesAndValidation(t *testing.T) {
	c, err := Parse([]byte("dataset:\n  max_rows: 0\nmodel:\n  training:\n    rounds: 50\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Dataset.MaxRows)
	assert.Equal(t, 50, c.Model.Training.Rounds)
	assert.Equal(t, 6, c.Model.Training.MaxDepth, "untouched fields keep defaults")

	_, err = Parse([]byte("dataset:\n  source: parquet\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("dataset:\n  source: clickhouse\n"))
	assert.ErrorContains(t, err, "clickhouse.host")

	_, err = Parse([]byte("kafka:\n  enabled: true\n"))
	assert.ErrorContains(t, err, "kafka.brokers")

	_, err = Parse([]byte("model:\n  training:\n    objective: multi:softmax\n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	env := map[string]string{
		"ALLOW_ORIGIN":            "http://localhost:3000",
		"DATASET_PATH":            "/data/bosch.csv",
		"MODEL_PATH":              "/models/m.bundle",
		"REDIS_ADDR":              "redis:6379",
		"KAFKA_BROKERS":           "k1:9092, k2:9092,",
		"LINEGUARD_PORT":          "9090",
		"LINEGUARD_KAFKA_ENABLED": "false",
	}
	require.NoError(t, c.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "http://localhost:3000", c.Server.AllowOrigin)
	assert.Equal(t, "/data/bosch.csv", c.Dataset.Path)
	assert.Equal(t, "/models/m.bundle", c.Model.ArtifactPath)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.False(t, c.Kafka.Enabled, "explicit flag wins over broker presence")
	assert.Equal(t, 9090, c.Server.Port)

	bad := map[string]string{"LINEGUARD_PORT": "eighty"}
	assert.Error(t, c.applyEnv(func(k string) string { return bad[k] }))
}

func TestLoadRepositoryConfig(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("config/config.yaml not present")
	}
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lineguard.events", c.Kafka.Events.Topic)
	assert.Equal(t, 5000, c.Simulation.MaxRows)
	assert.Equal(t, 100, c.Kafka.Producer.BatchSize)
	assert.Equal(t, 10*time.Second, c.Kafka.Producer.WriteTimeout)
	assert.False(t, c.Kafka.Producer.Async)
}
