package eval

import (
	"fmt"

	"github.com/raysh454/rivalscope/internal/model"
)

// PassThreshold is the minimum accuracy for a passing scenario.
const PassThreshold = 0.8

const (
	flagPoints   = 40
	typePoints   = 30
	impactPoints = 30
)

// Score weighs the significance flag at 40 points and, only when a change
// was expected, type and impact at 30 each. The result is normalized by the
// points attainable (40 or 100).
func Score(exp Expectation, act model.ClassificationResult) (float64, []string) {
	var mismatches []string
	got, attainable := 0, flagPoints

	if act.HasSignificantChange == exp.HasSignificantChange {
		got += flagPoints
	} else {
		mismatches = append(mismatches, fmt.Sprintf("hasSignificantChange: expected %t, got %t", exp.HasSignificantChange, act.HasSignificantChange))
	}

	if exp.HasSignificantChange {
		attainable += typePoints + impactPoints
		if act.ChangeType == exp.ChangeType {
			got += typePoints
		} else {
			mismatches = append(mismatches, fmt.Sprintf("changeType: expected %s, got %s", exp.ChangeType, act.ChangeType))
		}
		if act.Details.ImpactLevel == exp.ImpactLevel {
			got += impactPoints
		} else {
			mismatches = append(mismatches, fmt.Sprintf("impactLevel: expected %s, got %s", exp.ImpactLevel, act.Details.ImpactLevel))
		}
	}
	return float64(got) / float64(attainable), mismatches
}
