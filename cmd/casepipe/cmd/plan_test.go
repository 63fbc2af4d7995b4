package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epidata/casepipe/internal/config"
)

func TestPlanCommandStructure(t *testing.T) {
	assert.NotNil(t, planCmd)
	assert.Equal(t, "plan", planCmd.Use)
	assert.NotEmpty(t, planCmd.Short)
	assert.NotEmpty(t, planCmd.Long)
	assert.NotNil(t, planCmd.RunE)
}

func TestPlanIsAddedToRoot(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "plan" {
			found = true
			break
		}
	}
	assert.True(t, found, "plan command should be added to root command")
}

func TestPageSchedule(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ProcessingConfig
		want [][2]int
	}{
		{
			name: "ceiling is a multiple of page size",
			cfg:  config.ProcessingConfig{PageSize: 50, MaxRecords: 100},
			want: [][2]int{{50, 0}, {50, 50}},
		},
		{
			name: "last page clamped to ceiling",
			cfg:  config.ProcessingConfig{PageSize: 50, MaxRecords: 120},
			want: [][2]int{{50, 0}, {50, 50}, {20, 100}},
		},
		{
			name: "single short page",
			cfg:  config.ProcessingConfig{PageSize: 50000, MaxRecords: 100},
			want: [][2]int{{100, 0}},
		},
		{
			name: "start offset shifts the schedule",
			cfg:  config.ProcessingConfig{PageSize: 50, MaxRecords: 100, StartOffset: 200},
			want: [][2]int{{50, 200}, {50, 250}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pageSchedule(&tt.cfg))
		})
	}
}

func TestRunPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casepipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  url: https://example.test/cases.json
sink:
  dsn: postgres://user:pw@localhost:5432/testdb
processing:
  page_size: 50
  max_records: 120
`), 0644))

	originalCfg := cfgFile
	cfgFile = path
	defer func() { cfgFile = originalCfg }()

	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	require.NoError(t, runPlan(planCmd, nil))

	output := buf.String()
	assert.Contains(t, output, "Ingestion Plan")
	assert.Contains(t, output, "[1] limit=50 offset=0")
	assert.Contains(t, output, "[2] limit=50 offset=50")
	assert.Contains(t, output, "[3] limit=20 offset=100")
	assert.Contains(t, output, "up to 120 records in 3 pages")
	assert.Contains(t, output, "covid_case_surveillance_raw")
}

func TestRunPlan_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casepipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  url: ""
`), 0644))

	originalCfg := cfgFile
	cfgFile = path
	defer func() { cfgFile = originalCfg }()

	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	err := runPlan(planCmd, nil)
	assert.Error(t, err)
}
