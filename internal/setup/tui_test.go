package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/folio/config"
)

func TestAnswersConfigTmp(t *testing.T) {
	a := defaultAnswers()
	a.Brokers = "k1:9092, k2:9092"

	cfg := a.ConfigTmp()
	assert.Equal(t, "data", cfg.Storage.Dir)
	assert.Equal(t, []string{"0 10 * * 1-5", "0 15 * * 1-5", "30 17 * * 1-5"}, cfg.Sync.Schedules)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	var back config.ConfigTmp
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)

	a.Driver = config.DriverPostgres
	assert.Empty(t, a.ConfigTmp().Storage.Dir)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateSchedules("0 10 * * 1-5; 30 17 * * 1-5"))
	assert.Error(t, validateSchedules(" ; "))
	assert.Error(t, validateSchedules("every day"))

	assert.NoError(t, validatePositive("3"))
	assert.Error(t, validatePositive("0"))
	assert.Error(t, validatePositive("x"))

	assert.Error(t, notEmpty("addr")("  "))
}
