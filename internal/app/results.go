package app

import (
	"sort"
	"time"

	"trivia-live-service/internal/domain"
)

// rankParticipants orders by score desc, cumulative time asc, then id so the order is total.
func rankParticipants(participants []*domain.Participant) []*domain.Participant {
	ranked := make([]*domain.Participant, len(participants))
	copy(ranked, participants)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalTimeMs != b.TotalTimeMs {
			return a.TotalTimeMs < b.TotalTimeMs
		}
		return a.ID < b.ID
	})
	return ranked
}

func buildResults(gameID string, participants []*domain.Participant, totalQuestions int, startedAt, finishedAt time.Time) domain.Results {
	ranked := rankParticipants(participants)
	rankings := make([]domain.PlayerRank, len(ranked))
	for i, p := range ranked {
		var accuracy, average float64
		if p.AnsweredQuestions > 0 {
			accuracy = float64(p.CorrectAnswers) / float64(p.AnsweredQuestions) * 100
			average = float64(p.TotalTimeMs) / float64(p.AnsweredQuestions)
		}
		rankings[i] = domain.PlayerRank{
			Rank:          i + 1,
			Player:        p.Public(),
			Accuracy:      accuracy,
			AverageTimeMs: average,
		}
	}

	var duration int64
	if !startedAt.IsZero() && finishedAt.After(startedAt) {
		duration = finishedAt.Sub(startedAt).Milliseconds()
	}
	return domain.Results{
		GameID:         gameID,
		Rankings:       rankings,
		TotalQuestions: totalQuestions,
		Stats: domain.GameStats{
			TotalPlayers:    len(ranked),
			GameCompletedAt: finishedAt,
			GameDurationMs:  duration,
		},
	}
}
