package poll

import (
	"math"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// Aggregate turns per-option vote counts into results in the poll's option
// order. Percentages are rounded half away from zero and are 0 when no votes
// have been cast.
func Aggregate(poll *models.Poll, counts map[string]int) *models.PollResults {
	total := 0
	for _, o := range poll.Options {
		total += counts[o.ID]
	}

	options := make([]models.OptionResult, 0, len(poll.Options))
	for _, o := range poll.Options {
		votes := counts[o.ID]
		options = append(options, models.OptionResult{
			PollOption: o,
			Votes:      votes,
			Percentage: percentage(votes, total),
		})
	}

	return &models.PollResults{
		PollID:     poll.ID,
		TotalVotes: total,
		Options:    options,
	}
}

func percentage(votes, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}
