package repository

import (
	"context"
	"fmt"

	"truth-dare-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles database operations for the question bank
type QuestionRepository struct {
	db *pgxpool.Pool
}

// NewQuestionRepository creates a new question repository
func NewQuestionRepository(db *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Count returns the number of stored questions
func (r *QuestionRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return total, nil
}

// CreateMany inserts questions in one batch
func (r *QuestionRepository) CreateMany(ctx context.Context, questions []models.Question) error {
	query := `
		INSERT INTO questions (id, type, content, category, difficulty)
		VALUES ($1, $2, $3, $4, $5)
	`
	batch := &pgx.Batch{}
	for _, q := range questions {
		id := q.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(query, id, string(q.Type), q.Content, q.Category, q.Difficulty)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert questions: %w", err)
	}
	return nil
}

// GetAll returns every question in insertion order
func (r *QuestionRepository) GetAll(ctx context.Context) ([]models.Question, error) {
	query := `
		SELECT id, type, content, category, difficulty
		FROM questions
		ORDER BY seq
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var (
			q        models.Question
			category *string
		)
		if err := rows.Scan(&q.ID, &q.Type, &q.Content, &category, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if category != nil {
			q.Category = *category
		}
		questions = append(questions, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}

	return questions, nil
}

// SeedIfEmpty inserts questions when the table has none and reports whether it did
func (r *QuestionRepository) SeedIfEmpty(ctx context.Context, questions []models.Question) (bool, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return false, err
	}
	if total > 0 {
		return false, nil
	}
	if err := r.CreateMany(ctx, questions); err != nil {
		return false, err
	}
	return true, nil
}
