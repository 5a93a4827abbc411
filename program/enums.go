// program/enums.go
package program

import (
	"pact-oracle/models"

	"github.com/pkg/errors"
)

// Borsh encodes unit enums as their u8 variant index, in IDL declaration order.

var pactStatuses = []models.PactStatus{
	models.PactStatusInitialized,
	models.PactStatusActive,
	models.PactStatusCompleted,
	models.PactStatusCancelled,
}

var goalTypes = []models.GoalType{
	models.GoalDailySteps,
	models.GoalDailyRunKm,
	models.GoalDailyCaloriesBurned,
	models.GoalDailyScreenTimeMax,
	models.GoalDailyPhonePickupsMax,
	models.GoalDailyGithubContribution,
	models.GoalDailyLeetCodeProblems,
	models.GoalTotalSteps,
	models.GoalTotalCaloriesBurned,
	models.GoalTotalDistanceKm,
	models.GoalTotalLeetCodeSolved,
}

var verificationTypes = []string{
	models.VerificationScreenTime,
	models.VerificationGitHubAPI,
	models.VerificationLeetCodeScrape,
	models.VerificationStrava,
}

var comparisonOperators = []string{
	models.ComparisonGreaterThanOrEqual,
	models.ComparisonLessThanOrEqual,
}

func variant[T any](name string, table []T, idx uint8) (T, error) {
	var zero T
	if int(idx) >= len(table) {
		return zero, errors.Errorf("%s: unknown variant %d", name, idx)
	}
	return table[idx], nil
}

func index[T comparable](name string, table []T, v T) (uint8, error) {
	for i, candidate := range table {
		if candidate == v {
			return uint8(i), nil
		}
	}
	return 0, errors.Errorf("%s: unknown value %v", name, v)
}
