package analysis

import (
	"cellqc/domain/cycling"
	"cellqc/internal/config"
	"cellqc/internal/errors"
	"cellqc/internal/metrics"
	"cellqc/internal/outlier"
	"cellqc/internal/reference"
	"cellqc/internal/retention"
	"cellqc/internal/risk"
)

func extractorParams(s config.Settings) metrics.Params {
	return metrics.Params{
		MinCyclesRequired:      s.MinCyclesRequired,
		OneCModes:              s.OneCModes,
		NonOneCModes:           s.NonOneCModes,
		OneCSearchCycles:       s.OneCSearchCycles,
		RatioThreshold:         s.RatioThreshold,
		DischargeDiffThreshold: s.DischargeDiffThreshold,
		DefaultOneCCycle:       s.DefaultOneCCycle,
		DecayCheckCycle:        s.DecayCheckCycle,
		RetentionTargetCycle:   s.RetentionTargetCycle,
		Ranges: metrics.ValidRanges{
			Capacity:   metrics.Range{Min: s.ValidCapacityMin, Max: s.ValidCapacityMax},
			Voltage:    metrics.Range{Min: s.ValidVoltageMin, Max: s.ValidVoltageMax},
			Efficiency: metrics.Range{Min: s.ValidEfficiencyMin, Max: s.ValidEfficiencyMax},
			Energy:     metrics.Range{Min: s.ValidEnergyMin, Max: s.ValidEnergyMax},
		},
	}
}

// outlierMethod builds the single active detection method.
func outlierMethod(s config.Settings) (outlier.Method, error) {
	name, err := s.ResolvedOutlierMethod()
	if err != nil {
		return nil, err
	}
	switch name {
	case config.OutlierMethodBoxplot:
		return outlier.NewBoxplot(outlier.BoxplotParams{
			RangeThresholds: outlier.Thresholds{
				Discharge:  s.BoxplotDischargeRangeThreshold,
				Efficiency: s.BoxplotEfficiencyRangeThreshold,
				Voltage:    s.BoxplotVoltageRangeThreshold,
				Energy:     s.BoxplotEnergyRangeThreshold,
				Retention:  s.BoxplotRetentionRangeThreshold,
			},
			ShrinkFactor:  s.BoxplotShrinkFactor,
			MaxIterations: s.BoxplotMaxIterations,
		}), nil
	case config.OutlierMethodZScoreMAD:
		return outlier.NewZScoreMAD(outlier.ZScoreParams{
			Thresholds: outlier.Thresholds{
				Discharge:  s.ZScoreDischargeThreshold,
				Efficiency: s.ZScoreEfficiencyThreshold,
				Voltage:    s.ZScoreVoltageThreshold,
				Energy:     s.ZScoreEnergyThreshold,
				Retention:  s.ZScoreRetentionThreshold,
			},
			MADConstant:      s.ZScoreMADConstant,
			MinMADRatio:      s.ZScoreMinMADRatio,
			UseTimeSeries:    s.ZScoreUseTimeSeries,
			MinSamplesForSTL: s.ZScoreMinSamplesForSTL,
			SeasonalPeriod:   s.ZScoreSTLPeriod,
		}), nil
	}
	return nil, errors.ConfigInvalid("unknown outlier method " + name)
}

func riskThresholds(s config.Settings) risk.Thresholds {
	return risk.Thresholds{
		OverchargeVoltageWarning: s.OverchargeVoltageWarning,
		OverchargeVoltageDanger:  s.OverchargeVoltageDanger,
		LowEfficiencyWarning:     s.OverchargeEfficiencyLow,
		LowEfficiencyDanger:      s.OverchargeEfficiencyWarning,
		DecayRetentionWarning:    s.CapacityDecayCycle4Warning,
		DecayRetentionDanger:     s.CapacityDecayCycle4Danger,
		DecayDischargeDiff:       s.CapacityDecayDischargeDiff,
		AbnormalHighCharge:       s.AbnormalHighCharge,
		AbnormalLowCharge:        s.AbnormalLowCharge,
		AbnormalLowDischarge:     s.AbnormalLowDischarge,
		OneCOvercharge:           s.OneCOverchargeThreshold,
		OneCLowEfficiency:        s.OneCLowEfficiency,
		OneCVeryLowEfficiency:    s.OneCVeryLowEfficiency,
	}
}

// strategies returns the enabled reference strategies in priority order.
func strategies(s config.Settings) ([]reference.Strategy, error) {
	var out []reference.Strategy
	if s.CapacityRetentionEnabled {
		out = append(out, reference.NewCurveMSE(reference.CurveMSEParams{
			MinChannels: s.CapacityRetentionMinChannels,
			Curves: retention.Params{
				MinCycles:      s.CapacityRetentionMinCycles,
				MaxCycles:      s.CapacityRetentionMaxCycles,
				CycleStep:      s.CapacityRetentionCycleStep,
				Interpolation:  s.CapacityRetentionInterpolation,
				DynamicRange:   s.CapacityRetentionDynamicRange,
				IncludeVoltage: s.CapacityRetentionIncludeVoltage,
				IncludeEnergy:  s.CapacityRetentionIncludeEnergy,
			},
			Weights: map[retention.Component]float64{
				retention.ComponentCapacity: s.CapacityWeight,
				retention.ComponentVoltage:  s.VoltageWeight,
				retention.ComponentEnergy:   s.EnergyWeight,
			},
			UseWeightedMSE: s.UseWeightedMSE,
			WeightMethod:   s.WeightMethod,
			WeightFactor:   s.WeightFactor,
			LateEmphasis:   s.LateCyclesEmphasis,
		}))
	}
	if s.PCAEnabled {
		features, err := cycling.ParseMetricNames(s.PCAFeatures)
		if err != nil {
			return nil, errors.ConfigInvalid("pca_features: " + err.Error())
		}
		out = append(out, reference.NewPCA(reference.PCAParams{
			MinChannels: s.PCAMinChannels,
			Components:  s.PCANComponents,
			Features:    features,
		}))
	}
	return append(out, reference.Traditional{}), nil
}
