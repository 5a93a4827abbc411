// models/goal.go
package models

// GoalType is the activity a pact measures. Values follow the program IDL names.
type GoalType string

const (
	GoalDailySteps              GoalType = "dailySteps"
	GoalDailyRunKm              GoalType = "dailyRunKm"
	GoalDailyCaloriesBurned     GoalType = "dailyCaloriesBurned"
	GoalDailyScreenTimeMax      GoalType = "dailyScreenTimeMax"
	GoalDailyPhonePickupsMax    GoalType = "dailyPhonePickupsMax"
	GoalDailyGithubContribution GoalType = "dailyGithubContribution"
	GoalDailyLeetCodeProblems   GoalType = "dailyLeetCodeProblems"
	GoalTotalSteps              GoalType = "totalSteps"
	GoalTotalCaloriesBurned     GoalType = "totalCaloriesBurned"
	GoalTotalDistanceKm         GoalType = "totalDistanceKm"
	GoalTotalLeetCodeSolved     GoalType = "totalLeetCodeSolved"
)

// Verification and comparison labels stored alongside a pact.
const (
	VerificationScreenTime     = "screenTime"
	VerificationGitHubAPI      = "gitHubApi"
	VerificationLeetCodeScrape = "leetCodeScrape"
	VerificationStrava         = "strava"

	ComparisonGreaterThanOrEqual = "greaterThanOrEqual"
	ComparisonLessThanOrEqual    = "lessThanOrEqual"
)
