package config

import (
	"fmt"
	"strings"

	"cellqc/domain/cycling"
	"cellqc/internal/errors"
)

// Outlier method names accepted by outlier_method.
const (
	OutlierMethodBoxplot   = "boxplot"
	OutlierMethodZScoreMAD = "zscore_mad"
)

// Interpolation and weighting choices for retention curves.
const (
	InterpolationLinear  = "linear"
	InterpolationCubic   = "cubic"
	InterpolationNearest = "nearest"

	WeightMethodConstant    = "constant"
	WeightMethodLinear      = "linear"
	WeightMethodExponential = "exponential"
)

// Settings is the flat set of analysis options. Values are copied into each
// component at construction and never mutated during a run.
type Settings struct {
	// Extraction
	MinCyclesRequired      int      `yaml:"min_cycles_required" json:"min_cycles_required"`
	OneCModes              []string `yaml:"one_c_modes" json:"one_c_modes"`
	NonOneCModes           []string `yaml:"non_one_c_modes" json:"non_one_c_modes"`
	OneCSearchCycles       int      `yaml:"one_c_search_cycles" json:"one_c_search_cycles"`
	RatioThreshold         float64  `yaml:"ratio_threshold" json:"ratio_threshold"`
	DischargeDiffThreshold float64  `yaml:"discharge_diff_threshold" json:"discharge_diff_threshold"`
	DefaultOneCCycle       int      `yaml:"default_1c_cycle" json:"default_1c_cycle"`
	DecayCheckCycle        int      `yaml:"decay_check_cycle" json:"decay_check_cycle"`
	RetentionTargetCycle   int      `yaml:"retention_target_cycle" json:"retention_target_cycle"`

	ValidCapacityMin   float64 `yaml:"valid_capacity_min" json:"valid_capacity_min"`
	ValidCapacityMax   float64 `yaml:"valid_capacity_max" json:"valid_capacity_max"`
	ValidVoltageMin    float64 `yaml:"valid_voltage_min" json:"valid_voltage_min"`
	ValidVoltageMax    float64 `yaml:"valid_voltage_max" json:"valid_voltage_max"`
	ValidEfficiencyMin float64 `yaml:"valid_efficiency_min" json:"valid_efficiency_min"`
	ValidEfficiencyMax float64 `yaml:"valid_efficiency_max" json:"valid_efficiency_max"`
	ValidEnergyMin     float64 `yaml:"valid_energy_min" json:"valid_energy_min"`
	ValidEnergyMax     float64 `yaml:"valid_energy_max" json:"valid_energy_max"`

	// Outlier detection
	OutlierMethod    string   `yaml:"outlier_method" json:"outlier_method"`
	BoxplotUseMethod *bool    `yaml:"boxplot_use_method" json:"boxplot_use_method,omitempty"`
	OutlierMetrics   []string `yaml:"outlier_metrics" json:"outlier_metrics"`

	BoxplotDischargeRangeThreshold  float64 `yaml:"boxplot_discharge_range_threshold" json:"boxplot_discharge_range_threshold"`
	BoxplotEfficiencyRangeThreshold float64 `yaml:"boxplot_efficiency_range_threshold" json:"boxplot_efficiency_range_threshold"`
	BoxplotVoltageRangeThreshold    float64 `yaml:"boxplot_voltage_range_threshold" json:"boxplot_voltage_range_threshold"`
	BoxplotEnergyRangeThreshold     float64 `yaml:"boxplot_energy_range_threshold" json:"boxplot_energy_range_threshold"`
	BoxplotRetentionRangeThreshold  float64 `yaml:"boxplot_retention_range_threshold" json:"boxplot_retention_range_threshold"`
	BoxplotShrinkFactor             float64 `yaml:"boxplot_shrink_factor" json:"boxplot_shrink_factor"`
	BoxplotMaxIterations            int     `yaml:"boxplot_max_iterations" json:"boxplot_max_iterations"`

	ZScoreDischargeThreshold  float64 `yaml:"zscore_discharge_threshold" json:"zscore_discharge_threshold"`
	ZScoreEfficiencyThreshold float64 `yaml:"zscore_efficiency_threshold" json:"zscore_efficiency_threshold"`
	ZScoreVoltageThreshold    float64 `yaml:"zscore_voltage_threshold" json:"zscore_voltage_threshold"`
	ZScoreEnergyThreshold     float64 `yaml:"zscore_energy_threshold" json:"zscore_energy_threshold"`
	ZScoreRetentionThreshold  float64 `yaml:"zscore_retention_threshold" json:"zscore_retention_threshold"`
	ZScoreMADConstant         float64 `yaml:"zscore_mad_constant" json:"zscore_mad_constant"`
	ZScoreMinMADRatio         float64 `yaml:"zscore_min_mad_ratio" json:"zscore_min_mad_ratio"`
	ZScoreUseTimeSeries       bool    `yaml:"zscore_use_time_series" json:"zscore_use_time_series"`
	ZScoreMinSamplesForSTL    int     `yaml:"zscore_min_samples_for_stl" json:"zscore_min_samples_for_stl"`
	ZScoreSTLPeriod           int     `yaml:"zscore_stl_period" json:"zscore_stl_period"`

	// Retention curves
	CapacityRetentionEnabled        bool    `yaml:"capacity_retention_enabled" json:"capacity_retention_enabled"`
	CapacityRetentionMinChannels    int     `yaml:"capacity_retention_min_channels" json:"capacity_retention_min_channels"`
	CapacityRetentionMinCycles      int     `yaml:"capacity_retention_min_cycles" json:"capacity_retention_min_cycles"`
	CapacityRetentionMaxCycles      int     `yaml:"capacity_retention_max_cycles" json:"capacity_retention_max_cycles"`
	CapacityRetentionCycleStep      int     `yaml:"capacity_retention_cycle_step" json:"capacity_retention_cycle_step"`
	CapacityRetentionInterpolation  string  `yaml:"capacity_retention_interpolation" json:"capacity_retention_interpolation"`
	CapacityRetentionDynamicRange   bool    `yaml:"capacity_retention_dynamic_range" json:"capacity_retention_dynamic_range"`
	CapacityRetentionIncludeVoltage bool    `yaml:"capacity_retention_include_voltage" json:"capacity_retention_include_voltage"`
	CapacityRetentionIncludeEnergy  bool    `yaml:"capacity_retention_include_energy" json:"capacity_retention_include_energy"`
	CapacityWeight                  float64 `yaml:"capacity_weight" json:"capacity_weight"`
	VoltageWeight                   float64 `yaml:"voltage_weight" json:"voltage_weight"`
	EnergyWeight                    float64 `yaml:"energy_weight" json:"energy_weight"`
	UseWeightedMSE                  bool    `yaml:"use_weighted_mse" json:"use_weighted_mse"`
	WeightMethod                    string  `yaml:"weight_method" json:"weight_method"`
	WeightFactor                    float64 `yaml:"weight_factor" json:"weight_factor"`
	LateCyclesEmphasis              float64 `yaml:"late_cycles_emphasis" json:"late_cycles_emphasis"`

	// PCA
	PCAEnabled     bool     `yaml:"pca_enabled" json:"pca_enabled"`
	PCANComponents int      `yaml:"pca_n_components" json:"pca_n_components"`
	PCAMinChannels int      `yaml:"pca_min_channels" json:"pca_min_channels"`
	PCAFeatures    []string `yaml:"pca_features" json:"pca_features"`

	// Risk thresholds
	OverchargeVoltageWarning    float64 `yaml:"overcharge_voltage_warning" json:"overcharge_voltage_warning"`
	OverchargeVoltageDanger     float64 `yaml:"overcharge_voltage_danger" json:"overcharge_voltage_danger"`
	OverchargeEfficiencyLow     float64 `yaml:"overcharge_efficiency_low" json:"overcharge_efficiency_low"`
	OverchargeEfficiencyWarning float64 `yaml:"overcharge_efficiency_warning" json:"overcharge_efficiency_warning"`
	CapacityDecayCycle4Warning  float64 `yaml:"capacity_decay_cycle4_warning" json:"capacity_decay_cycle4_warning"`
	CapacityDecayCycle4Danger   float64 `yaml:"capacity_decay_cycle4_danger" json:"capacity_decay_cycle4_danger"`
	CapacityDecayDischargeDiff  float64 `yaml:"capacity_decay_discharge_diff" json:"capacity_decay_discharge_diff"`
	AbnormalHighCharge          float64 `yaml:"abnormal_high_charge" json:"abnormal_high_charge"`
	AbnormalLowCharge           float64 `yaml:"abnormal_low_charge" json:"abnormal_low_charge"`
	AbnormalLowDischarge        float64 `yaml:"abnormal_low_discharge" json:"abnormal_low_discharge"`
	OneCOverchargeThreshold     float64 `yaml:"one_c_overcharge_threshold" json:"one_c_overcharge_threshold"`
	OneCLowEfficiency           float64 `yaml:"one_c_low_efficiency" json:"one_c_low_efficiency"`
	OneCVeryLowEfficiency       float64 `yaml:"one_c_very_low_efficiency" json:"one_c_very_low_efficiency"`
	ProblemBatchRatio           float64 `yaml:"problem_batch_ratio" json:"problem_batch_ratio"`

	AnalysisWorkers int `yaml:"analysis_workers" json:"analysis_workers"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		MinCyclesRequired:      2,
		OneCModes:              []string{"-1C-"},
		NonOneCModes:           []string{"-0.1C-", "-BL-", "-0.33C-"},
		OneCSearchCycles:       4,
		RatioThreshold:         0.85,
		DischargeDiffThreshold: 15,
		DefaultOneCCycle:       4,
		DecayCheckCycle:        4,
		RetentionTargetCycle:   100,

		ValidCapacityMin:   0,
		ValidCapacityMax:   500,
		ValidVoltageMin:    2,
		ValidVoltageMax:    5,
		ValidEfficiencyMin: 0,
		ValidEfficiencyMax: 120,
		ValidEnergyMin:     0,
		ValidEnergyMax:     2000,

		OutlierMetrics: []string{string(cycling.MetricFirstDischarge), string(cycling.MetricFirstEfficiency)},

		BoxplotDischargeRangeThreshold:  10,
		BoxplotEfficiencyRangeThreshold: 3,
		BoxplotVoltageRangeThreshold:    0.05,
		BoxplotEnergyRangeThreshold:     30,
		BoxplotRetentionRangeThreshold:  2,
		BoxplotShrinkFactor:             0.95,
		BoxplotMaxIterations:            10,

		ZScoreDischargeThreshold:  3.0,
		ZScoreEfficiencyThreshold: 2.5,
		ZScoreVoltageThreshold:    3.0,
		ZScoreEnergyThreshold:     3.0,
		ZScoreRetentionThreshold:  3.0,
		ZScoreMADConstant:         0.6745,
		ZScoreMinMADRatio:         0.01,
		ZScoreUseTimeSeries:       true,
		ZScoreMinSamplesForSTL:    10,
		ZScoreSTLPeriod:           0,

		CapacityRetentionEnabled:        true,
		CapacityRetentionMinChannels:    2,
		CapacityRetentionMinCycles:      5,
		CapacityRetentionMaxCycles:      800,
		CapacityRetentionCycleStep:      1,
		CapacityRetentionInterpolation:  InterpolationLinear,
		CapacityRetentionDynamicRange:   true,
		CapacityRetentionIncludeVoltage: true,
		CapacityRetentionIncludeEnergy:  true,
		CapacityWeight:                  0.6,
		VoltageWeight:                   0.1,
		EnergyWeight:                    0.3,
		UseWeightedMSE:                  true,
		WeightMethod:                    WeightMethodLinear,
		WeightFactor:                    1.0,
		LateCyclesEmphasis:              2.0,

		PCAEnabled:     true,
		PCANComponents: 2,
		PCAMinChannels: 3,
		PCAFeatures: []string{
			string(cycling.MetricFirstDischarge),
			string(cycling.MetricFirstVoltage),
			string(cycling.MetricCycle4Retention),
		},

		OverchargeVoltageWarning:    4.65,
		OverchargeVoltageDanger:     4.7,
		OverchargeEfficiencyLow:     80,
		OverchargeEfficiencyWarning: 75,
		CapacityDecayCycle4Warning:  85,
		CapacityDecayCycle4Danger:   80,
		CapacityDecayDischargeDiff:  50,
		AbnormalHighCharge:          380,
		AbnormalLowCharge:           200,
		AbnormalLowDischarge:        200,
		OneCOverchargeThreshold:     350,
		OneCLowEfficiency:           85,
		OneCVeryLowEfficiency:       80,
		ProblemBatchRatio:           0.5,

		AnalysisWorkers: 4,
	}
}

// ResolvedOutlierMethod returns the single active outlier method.
// An empty outlier_method defers to boxplot_use_method, and to boxplot when
// that is unset too.
func (s Settings) ResolvedOutlierMethod() (string, error) {
	method := strings.ToLower(strings.TrimSpace(s.OutlierMethod))
	switch method {
	case "":
		if s.BoxplotUseMethod != nil && !*s.BoxplotUseMethod {
			return OutlierMethodZScoreMAD, nil
		}
		return OutlierMethodBoxplot, nil
	case OutlierMethodBoxplot:
		if s.BoxplotUseMethod != nil && !*s.BoxplotUseMethod {
			return "", errors.ConfigConflict("outlier_method=boxplot contradicts boxplot_use_method=false")
		}
		return OutlierMethodBoxplot, nil
	case OutlierMethodZScoreMAD, "zscore", "mad":
		if s.BoxplotUseMethod != nil && *s.BoxplotUseMethod {
			return "", errors.ConfigConflict("outlier_method=zscore_mad and boxplot_use_method=true are mutually exclusive")
		}
		return OutlierMethodZScoreMAD, nil
	}
	return "", errors.ConfigInvalid(fmt.Sprintf("unknown outlier_method %q", s.OutlierMethod))
}

// Validate checks every option against its range and rejects conflicting
// combinations. It must pass before any batch is processed.
func (s Settings) Validate() error {
	v := &validator{}

	v.check(s.MinCyclesRequired >= 1, "min_cycles_required must be >= 1")
	v.check(len(s.OneCModes) > 0, "one_c_modes must not be empty")
	v.check(s.OneCSearchCycles >= 2, "one_c_search_cycles must be >= 2")
	v.check(s.RatioThreshold > 0 && s.RatioThreshold <= 1, "ratio_threshold must be in (0,1]")
	v.check(s.DischargeDiffThreshold >= 0, "discharge_diff_threshold must be >= 0")
	v.check(s.DefaultOneCCycle >= 1, "default_1c_cycle must be >= 1")
	v.check(s.DecayCheckCycle >= 2, "decay_check_cycle must be >= 2")
	v.check(s.RetentionTargetCycle >= 1, "retention_target_cycle must be >= 1")
	v.check(s.ValidCapacityMin < s.ValidCapacityMax, "valid_capacity_min must be below valid_capacity_max")
	v.check(s.ValidVoltageMin < s.ValidVoltageMax, "valid_voltage_min must be below valid_voltage_max")
	v.check(s.ValidEfficiencyMin < s.ValidEfficiencyMax, "valid_efficiency_min must be below valid_efficiency_max")
	v.check(s.ValidEnergyMin < s.ValidEnergyMax, "valid_energy_min must be below valid_energy_max")

	method, err := s.ResolvedOutlierMethod()
	if err != nil {
		return err
	}
	metrics, err := cycling.ParseMetricNames(s.OutlierMetrics)
	v.check(err == nil, fmt.Sprintf("outlier_metrics: %v", err))
	v.check(err != nil || len(metrics) > 0, "outlier_metrics must name at least one metric")
	for _, m := range metrics {
		v.check(m.Percentage() || m.Quantity() != cycling.QuantityNone,
			fmt.Sprintf("outlier_metrics: %s is a cycle number and has no threshold", m))
	}

	switch method {
	case OutlierMethodBoxplot:
		v.check(s.BoxplotShrinkFactor > 0 && s.BoxplotShrinkFactor <= 1, "boxplot_shrink_factor must be in (0,1]")
		v.check(s.BoxplotMaxIterations >= 1, "boxplot_max_iterations must be >= 1")
		v.check(s.BoxplotDischargeRangeThreshold >= 0 && s.BoxplotEfficiencyRangeThreshold >= 0 &&
			s.BoxplotVoltageRangeThreshold >= 0 && s.BoxplotEnergyRangeThreshold >= 0 &&
			s.BoxplotRetentionRangeThreshold >= 0,
			"boxplot range thresholds must be >= 0")
	case OutlierMethodZScoreMAD:
		v.check(s.ZScoreDischargeThreshold > 0 && s.ZScoreEfficiencyThreshold > 0 &&
			s.ZScoreVoltageThreshold > 0 && s.ZScoreEnergyThreshold > 0 &&
			s.ZScoreRetentionThreshold > 0,
			"zscore thresholds must be > 0")
		v.check(s.ZScoreMADConstant > 0, "zscore_mad_constant must be > 0")
		v.check(s.ZScoreMinMADRatio >= 0, "zscore_min_mad_ratio must be >= 0")
		v.check(s.ZScoreMinSamplesForSTL >= 3, "zscore_min_samples_for_stl must be >= 3")
		v.check(s.ZScoreSTLPeriod == 0 || s.ZScoreSTLPeriod >= 2, "zscore_stl_period must be 0 or >= 2")
		v.check(s.ZScoreSTLPeriod == 0 || s.ZScoreMinSamplesForSTL >= 2*s.ZScoreSTLPeriod,
			"zscore_min_samples_for_stl must cover two seasonal periods")
	}

	if s.CapacityRetentionEnabled {
		v.check(s.CapacityRetentionMinChannels >= 2, "capacity_retention_min_channels must be >= 2")
		v.check(s.CapacityRetentionMinCycles >= 1, "capacity_retention_min_cycles must be >= 1")
		v.check(s.CapacityRetentionMaxCycles >= s.CapacityRetentionMinCycles,
			"capacity_retention_max_cycles must be >= capacity_retention_min_cycles")
		v.check(s.CapacityRetentionCycleStep >= 1, "capacity_retention_cycle_step must be >= 1")
		switch s.CapacityRetentionInterpolation {
		case InterpolationLinear, InterpolationCubic, InterpolationNearest:
		default:
			v.fail(fmt.Sprintf("unknown capacity_retention_interpolation %q", s.CapacityRetentionInterpolation))
		}
		v.check(s.CapacityWeight >= 0 && s.VoltageWeight >= 0 && s.EnergyWeight >= 0, "retention weights must be >= 0")
		active := s.CapacityWeight
		if s.CapacityRetentionIncludeVoltage {
			active += s.VoltageWeight
		}
		if s.CapacityRetentionIncludeEnergy {
			active += s.EnergyWeight
		}
		if active <= 0 {
			v.conflict("capacity_retention_enabled requires a positive weight on an included curve component")
		}
		if s.UseWeightedMSE {
			switch s.WeightMethod {
			case WeightMethodConstant, WeightMethodLinear, WeightMethodExponential:
			default:
				v.fail(fmt.Sprintf("unknown weight_method %q", s.WeightMethod))
			}
			v.check(s.LateCyclesEmphasis > 0, "late_cycles_emphasis must be > 0")
			v.check(s.WeightFactor >= 0, "weight_factor must be >= 0")
		}
	}

	if s.PCAEnabled {
		v.check(s.PCANComponents >= 1, "pca_n_components must be >= 1")
		v.check(s.PCAMinChannels >= 3, "pca_min_channels must be >= 3")
		features, err := cycling.ParseMetricNames(s.PCAFeatures)
		v.check(err == nil, fmt.Sprintf("pca_features: %v", err))
		v.check(err != nil || len(features) >= 2, "pca_features must name at least two metrics")
	}

	v.check(s.OverchargeVoltageWarning <= s.OverchargeVoltageDanger, "overcharge_voltage_warning must not exceed overcharge_voltage_danger")
	v.check(s.OverchargeEfficiencyWarning <= s.OverchargeEfficiencyLow, "overcharge_efficiency_warning must not exceed overcharge_efficiency_low")
	v.check(s.CapacityDecayCycle4Danger <= s.CapacityDecayCycle4Warning, "capacity_decay_cycle4_danger must not exceed capacity_decay_cycle4_warning")
	v.check(s.AbnormalLowCharge < s.AbnormalHighCharge, "abnormal_low_charge must be below abnormal_high_charge")
	v.check(s.OneCVeryLowEfficiency < s.OneCLowEfficiency, "one_c_very_low_efficiency must be below one_c_low_efficiency")
	v.check(s.ProblemBatchRatio > 0 && s.ProblemBatchRatio <= 1, "problem_batch_ratio must be in (0,1]")
	v.check(s.AnalysisWorkers >= 1, "analysis_workers must be >= 1")

	return v.err()
}

type validator struct {
	problems    []string
	hasConflict bool
}

func (v *validator) check(ok bool, msg string) {
	if !ok {
		v.problems = append(v.problems, msg)
	}
}

func (v *validator) fail(msg string) { v.problems = append(v.problems, msg) }

func (v *validator) conflict(msg string) {
	v.hasConflict = true
	v.problems = append(v.problems, msg)
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	msg := strings.Join(v.problems, "; ")
	if v.hasConflict {
		return errors.ConfigConflict(msg)
	}
	return errors.ConfigInvalid(msg)
}
