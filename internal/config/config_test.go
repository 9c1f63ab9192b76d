package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellqc/internal/errors"
)

func boolPtr(b bool) *bool { return &b }

func TestDefaultsValidate(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.Validate())

	method, err := s.ResolvedOutlierMethod()
	require.NoError(t, err)
	assert.Equal(t, OutlierMethodBoxplot, method)
}

func TestResolvedOutlierMethod(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		useBox   *bool
		want     string
		wantCode string
	}{
		{"default is boxplot", "", nil, OutlierMethodBoxplot, ""},
		{"legacy flag off selects zscore", "", boolPtr(false), OutlierMethodZScoreMAD, ""},
		{"explicit zscore", "zscore_mad", nil, OutlierMethodZScoreMAD, ""},
		{"zscore with boxplot flag", "zscore_mad", boolPtr(true), "", errors.CodeConfigConflict},
		{"boxplot with flag off", "boxplot", boolPtr(false), "", errors.CodeConfigConflict},
		{"unknown", "dbscan", nil, "", errors.CodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			s.OutlierMethod = tt.method
			s.BoxplotUseMethod = tt.useBox
			got, err := s.ResolvedOutlierMethod()
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				assert.Equal(t, tt.wantCode, errors.GetCode(s.Validate()))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	s := Defaults()
	s.BoxplotShrinkFactor = 1.5
	s.CapacityRetentionInterpolation = "spline"
	err := s.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "boxplot_shrink_factor")
	assert.Contains(t, err.Error(), "spline")
}

func TestValidateOutlierMetricsNeedAThreshold(t *testing.T) {
	s := Defaults()
	s.OutlierMetrics = []string{"first_discharge", "one_c_cycle"}
	err := s.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "one_c_cycle")

	s.OutlierMetrics = []string{"cycle4_retention", "one_c_ratio", "target_retention"}
	assert.NoError(t, s.Validate())

	s.BoxplotRetentionRangeThreshold = -1
	assert.Error(t, s.Validate())
}

func TestValidateZeroRetentionWeightsIsConflict(t *testing.T) {
	s := Defaults()
	s.CapacityWeight = 0
	s.CapacityRetentionIncludeVoltage = false
	s.CapacityRetentionIncludeEnergy = false
	err := s.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigConflict, errors.GetCode(err))
}

func TestValidateIgnoresInactiveMethodParams(t *testing.T) {
	s := Defaults()
	s.ZScoreMADConstant = 0
	assert.NoError(t, s.Validate(), "zscore params are unused while boxplot is active")
}

func TestParseSettingsYAML(t *testing.T) {
	s := Defaults()
	err := ParseSettings([]byte(`
outlier_method: zscore_mad
zscore_efficiency_threshold: 2.0
outlier_metrics: [first_discharge, first_voltage]
boxplot_use_method: false
`), &s)
	require.NoError(t, err)
	assert.Equal(t, "zscore_mad", s.OutlierMethod)
	assert.Equal(t, 2.0, s.ZScoreEfficiencyThreshold)
	assert.Equal(t, []string{"first_discharge", "first_voltage"}, s.OutlierMetrics)
	require.NotNil(t, s.BoxplotUseMethod)
	assert.False(t, *s.BoxplotUseMethod)
	assert.Equal(t, 0.95, s.BoxplotShrinkFactor, "untouched options keep defaults")
	assert.NoError(t, s.Validate())
}

func TestParseSettingsUnknownKey(t *testing.T) {
	s := Defaults()
	err := ParseSettings([]byte("boxplot_shrink: 0.9\n"), &s)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"CELLQC_BOXPLOT_SHRINK_FACTOR":            "0.9",
		"CELLQC_ONE_C_MODES":                      "-1C-, -2C-",
		"CELLQC_CAPACITY_RETENTION_ENABLED":       "false",
		"CELLQC_CAPACITY_RETENTION_INTERPOLATION": "nearest",
	}
	s := Defaults()
	err := applyEnvOverrides(&s, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, 0.9, s.BoxplotShrinkFactor)
	assert.Equal(t, []string{"-1C-", "-2C-"}, s.OneCModes)
	assert.False(t, s.CapacityRetentionEnabled)
	assert.Equal(t, "nearest", s.CapacityRetentionInterpolation)
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellqc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis_workers: 2\n"), 0o600))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.AnalysisWorkers)

	_, err = LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("CELLQC_CONFIG", "")
	t.Setenv("CELLQC_ANALYSIS_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8, cfg.Analysis.AnalysisWorkers)
	assert.False(t, cfg.Database.Enabled())
}
