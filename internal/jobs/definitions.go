// Package jobs collects the job type definitions registered at
// startup. RegisterAll must run before any queue consumer connects.
package jobs

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"longrun/internal/registry"
)

// RegisterAll registers every built-in job type with reg.
func RegisterAll(reg *registry.Registry) {
	reg.Register(registry.JobConfig{
		TypeName:    "data_analysis",
		Handler:     analyzeData,
		Description: "run an analysis over a stored dataset",
		Timeout:     7200 * time.Second,
		SoftTimeout: 6900 * time.Second,
		MaxRetries:  3,
		Queue:       "heavy",
		ParamSchema: &registry.ParamSchema{
			Required: []string{"dataset_id"},
			Properties: map[string]string{
				"dataset_id":    "integer",
				"analysis_type": "string",
			},
		},
	})

	reg.Register(registry.JobConfig{
		TypeName:    "file_processing",
		Handler:     processFile,
		Description: "convert an uploaded file to the requested format",
		Timeout:     3600 * time.Second,
		Queue:       "default",
		ParamSchema: &registry.ParamSchema{
			Required: []string{"file_path"},
			Properties: map[string]string{
				"file_path":     "string",
				"output_format": "string",
			},
		},
	})

	reg.Register(registry.JobConfig{
		TypeName:    "report_generation",
		Handler:     generateReport,
		Description: "render a report document",
		Timeout:     1800 * time.Second,
		SoftTimeout: 1500 * time.Second,
		Queue:       "default",
		Priority:    7,
	})
}

func analyzeData(ctx context.Context, jobID int64, params map[string]any) (map[string]any, error) {
	datasetID := params["dataset_id"]
	analysisType, _ := params["analysis_type"].(string)
	if analysisType == "" {
		analysisType = "basic"
	}

	if err := simulateWork(ctx, 5*time.Second); err != nil {
		return nil, err
	}

	return map[string]any{
		"dataset_id":    datasetID,
		"analysis_type": analysisType,
		"result":        "analysis_complete",
		"summary": map[string]any{
			"total_records": rand.IntN(9000) + 1000,
			"avg_value":     float64(rand.IntN(10000)) / 100,
		},
	}, nil
}

func processFile(ctx context.Context, jobID int64, params map[string]any) (map[string]any, error) {
	filePath, _ := params["file_path"].(string)
	outputFormat, _ := params["output_format"].(string)
	if outputFormat == "" {
		outputFormat = "json"
	}

	if err := simulateWork(ctx, 3*time.Second); err != nil {
		return nil, err
	}

	return map[string]any{
		"input_file":    filePath,
		"output_format": outputFormat,
		"output_file":   fmt.Sprintf("/results/%d.%s", jobID, outputFormat),
		"processed":     true,
	}, nil
}

func generateReport(ctx context.Context, jobID int64, params map[string]any) (map[string]any, error) {
	reportType, _ := params["report_type"].(string)
	if reportType == "" {
		reportType = "summary"
	}

	if err := simulateWork(ctx, 2*time.Second); err != nil {
		return nil, err
	}

	return map[string]any{
		"report_type": reportType,
		"report_path": fmt.Sprintf("/reports/%d.pdf", jobID),
		"pages":       rand.IntN(45) + 5,
	}, nil
}

// simulateWork stands in for the real long-running work, honoring the
// soft timeout carried by ctx.
func simulateWork(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
