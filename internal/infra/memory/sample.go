package memory

import "trivia-live-service/internal/domain"

// SampleSetID names the built-in question set served when no database is configured.
const SampleSetID = "general-knowledge"

// SampleQuestionSet returns a ten-question general knowledge set.
func SampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    SampleSetID,
		Title: "General Knowledge",
		Questions: []domain.Question{
			{Prompt: "What is the capital of France?", Options: []string{"London", "Berlin", "Paris", "Madrid"}, CorrectAnswer: 2},
			{Prompt: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectAnswer: 1},
			{Prompt: "What is 7 x 8?", Options: []string{"54", "56", "58", "64"}, CorrectAnswer: 1},
			{Prompt: "Who wrote 'Romeo and Juliet'?", Options: []string{"Charles Dickens", "Jane Austen", "William Shakespeare", "Mark Twain"}, CorrectAnswer: 2},
			{Prompt: "What is the largest ocean on Earth?", Options: []string{"Atlantic", "Indian", "Arctic", "Pacific"}, CorrectAnswer: 3},
			{Prompt: "What is the chemical symbol for gold?", Options: []string{"Go", "Gd", "Au", "Ag"}, CorrectAnswer: 2},
			{Prompt: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, CorrectAnswer: 2},
			{Prompt: "What is the boiling point of water at sea level in Celsius?", Options: []string{"90", "100", "110", "120"}, CorrectAnswer: 1},
			{Prompt: "Which gas do plants absorb from the air?", Options: []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"}, CorrectAnswer: 2},
			{Prompt: "What is the smallest prime number?", Options: []string{"0", "1", "2", "3"}, CorrectAnswer: 2},
		},
	}
}

// SampleQuestionSets returns the built-in catalog keyed by set id.
func SampleQuestionSets() map[string]domain.QuestionSet {
	set := SampleQuestionSet()
	return map[string]domain.QuestionSet{set.ID: set}
}
