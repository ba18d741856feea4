package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"truth-dare-backend/internal/metrics"
	"truth-dare-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const archiveTimeout = 30 * time.Second

// ArchiveConfig holds the S3 settings of the transcript archive
type ArchiveConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchivedSession is the document written for every finished game
type ArchivedSession struct {
	SessionID    string                   `json:"sessionId"`
	ParticipantA string                   `json:"participantA"`
	ParticipantB string                   `json:"participantB"`
	Rounds       int                      `json:"rounds"`
	Reason       string                   `json:"reason"`
	CreatedAt    time.Time                `json:"createdAt"`
	EndedAt      time.Time                `json:"endedAt"`
	Transcript   []models.TranscriptEntry `json:"transcript"`
}

// TranscriptArchive uploads transcripts of ended sessions to S3
type TranscriptArchive struct {
	client  objectPutter
	bucket  string
	metrics *metrics.Metrics
}

// NewTranscriptArchive creates an S3-backed archive
func NewTranscriptArchive(ctx context.Context, cfg ArchiveConfig, m *metrics.Metrics) (*TranscriptArchive, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &TranscriptArchive{
		client:  client,
		bucket:  cfg.Bucket,
		metrics: m,
	}, nil
}

// Key returns the object key of a session transcript
func (a *TranscriptArchive) Key(session *models.GameSession) string {
	ended := session.CreatedAt
	if session.EndedAt != nil {
		ended = *session.EndedAt
	}
	return fmt.Sprintf("sessions/%s/%s.json", ended.UTC().Format("2006/01/02"), session.ID)
}

// Store uploads the transcript. Sessions without a completed round are skipped.
func (a *TranscriptArchive) Store(ctx context.Context, session *models.GameSession, reason string) error {
	if len(session.Transcript) == 0 {
		a.metrics.Archived("skipped")
		return nil
	}

	doc := ArchivedSession{
		SessionID:    session.ID,
		ParticipantA: session.ParticipantA,
		ParticipantB: session.ParticipantB,
		Rounds:       len(session.Transcript),
		Reason:       reason,
		CreatedAt:    session.CreatedAt,
		Transcript:   session.Transcript,
	}
	if session.EndedAt != nil {
		doc.EndedAt = *session.EndedAt
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(session)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.metrics.Archived("error")
		return fmt.Errorf("failed to upload transcript: %w", err)
	}

	a.metrics.Archived("stored")
	return nil
}

// Hook returns a SessionEndedHook that archives in the background
func (a *TranscriptArchive) Hook() SessionEndedHook {
	return func(session *models.GameSession, reason string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()

			if err := a.Store(ctx, session, reason); err != nil {
				log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to archive transcript")
				return
			}
			log.Debug().Str("session_id", session.ID).Msg("Transcript archived")
		}()
	}
}
