package services

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"

	"truth-dare-backend/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultQuestionsYAML []byte

// ErrNoQuestions is returned when the bank has no prompt of the requested type
var ErrNoQuestions = errors.New("no questions available")

// QuestionSource picks a prompt for a challenge type
type QuestionSource interface {
	Pick(challenge models.ChallengeType, maxDifficulty int) (models.Question, error)
}

// QuestionBank is an in-memory QuestionSource
type QuestionBank struct {
	byType map[models.ChallengeType][]models.Question
	intn   func(n int) int
}

// NewQuestionBank builds a bank from questions, keeping their order per type
func NewQuestionBank(questions []models.Question) *QuestionBank {
	b := &QuestionBank{
		byType: make(map[models.ChallengeType][]models.Question),
		intn:   rand.IntN,
	}
	for _, q := range questions {
		b.byType[q.Type] = append(b.byType[q.Type], q)
	}
	return b
}

// DefaultQuestions returns the embedded question bank
func DefaultQuestions() ([]models.Question, error) {
	var doc struct {
		Questions []models.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(defaultQuestionsYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse default questions: %w", err)
	}
	return doc.Questions, nil
}

// Pick returns a uniformly random question of the given type whose difficulty
// does not exceed maxDifficulty. If none qualifies, the first question of that
// type is returned.
func (b *QuestionBank) Pick(challenge models.ChallengeType, maxDifficulty int) (models.Question, error) {
	questions := b.byType[challenge]
	if len(questions) == 0 {
		return models.Question{}, fmt.Errorf("%w: %s", ErrNoQuestions, challenge)
	}

	eligible := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if q.Difficulty <= maxDifficulty {
			eligible = append(eligible, q)
		}
	}
	if len(eligible) == 0 {
		return questions[0], nil
	}
	return eligible[b.intn(len(eligible))], nil
}

// Size returns the number of questions of the given type
func (b *QuestionBank) Size(challenge models.ChallengeType) int {
	return len(b.byType[challenge])
}
