package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"longrun/internal/registry"
)

func TestRegisterAll(t *testing.T) {
	reg := registry.New()
	RegisterAll(reg)

	all := reg.All()
	require.Len(t, all, 3)

	analysis, ok := reg.Lookup("data_analysis")
	require.True(t, ok)
	assert.Equal(t, "heavy", analysis.Queue)
	assert.Equal(t, 7200*time.Second, analysis.Timeout)
	var missing *registry.MissingParamError
	require.ErrorAs(t, reg.ValidateParams("data_analysis", map[string]any{}), &missing)
	assert.Equal(t, "dataset_id", missing.Field)

	report, ok := reg.Lookup("report_generation")
	require.True(t, ok)
	assert.Equal(t, 7, report.Priority)
	assert.NoError(t, reg.ValidateParams("report_generation", map[string]any{}))
}

func TestProcessFile(t *testing.T) {
	result, err := processFile(context.Background(), 42, map[string]any{"file_path": "/in/a.csv"})
	require.NoError(t, err)
	assert.Equal(t, "/in/a.csv", result["input_file"])
	assert.Equal(t, "json", result["output_format"])
	assert.Equal(t, "/results/42.json", result["output_file"])
}

func TestAnalyzeData_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := analyzeData(ctx, 1, map[string]any{"dataset_id": 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
