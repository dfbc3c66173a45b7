package seed

import (
	"context"
	"errors"

	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"go.uber.org/zap"
)

// Questions is the starter set used when the question table is empty.
var Questions = []questiondomain.CreateRequest{
	{Text: "Pineapple on pizza?", Options: []string{"Yes, delicious!", "No, never!"}},
	{Text: "Is a hot dog a sandwich?", Options: []string{"Yes", "No"}},
	{Text: "Morning person or night owl?", Options: []string{"Morning person", "Night owl"}},
	{Text: "Cats or dogs?", Options: []string{"Cats", "Dogs"}},
	{Text: "Is water wet?", Options: []string{"Yes", "No"}},
	{Text: "Toilet paper: over or under?", Options: []string{"Over", "Under"}},
	{Text: "Would you take a one-way trip to Mars?", Options: []string{"Yes, adventure awaits!", "No, Earth is home"}},
}

// EnsureQuestions seeds the starter questions once. They stay pending until
// a rotation activates them.
func EnsureQuestions(ctx context.Context, questions questiondomain.Service, log *zap.Logger) (int, error) {
	if questions == nil {
		return 0, errors.New("seed question service is required")
	}
	n, err := questions.SeedIfEmpty(ctx, Questions)
	if err != nil {
		return 0, err
	}
	if n > 0 && log != nil {
		log.Info("seed.questions", zap.Int("count", n))
	}
	return n, nil
}
