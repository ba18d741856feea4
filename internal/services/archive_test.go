package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"truth-dare-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeBucket struct {
	puts []*s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeBucket) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, params)
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func endedSession(rounds int) *models.GameSession {
	created := time.Date(2026, 4, 30, 23, 50, 0, 0, time.UTC)
	ended := created.Add(20 * time.Minute)
	session := &models.GameSession{
		ID:           "s-42",
		ParticipantA: "bob",
		ParticipantB: "alice",
		Phase:        models.PhaseEnded,
		CreatedAt:    created,
		EndedAt:      &ended,
	}
	for i := 1; i <= rounds; i++ {
		session.Transcript = append(session.Transcript, models.TranscriptEntry{
			Prompt:        "What is your biggest fear?",
			ChallengeType: models.ChallengeTruth,
			Response:      "spiders",
			AuthorID:      "bob",
			Round:         i,
			AnsweredAt:    created.Add(time.Duration(i) * time.Minute),
		})
	}
	return session
}

func TestTranscriptArchiveKey(t *testing.T) {
	a := &TranscriptArchive{}
	if got := a.Key(endedSession(0)); got != "sessions/2026/05/01/s-42.json" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestTranscriptArchiveStore(t *testing.T) {
	bucket := &fakeBucket{}
	a := &TranscriptArchive{client: bucket, bucket: "transcripts"}

	if err := a.Store(context.Background(), endedSession(2), ReasonEndedByParticipant); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if len(bucket.puts) != 1 {
		t.Fatalf("PutObject called %d times, want 1", len(bucket.puts))
	}
	put := bucket.puts[0]
	if aws.ToString(put.Bucket) != "transcripts" || aws.ToString(put.Key) != "sessions/2026/05/01/s-42.json" {
		t.Fatalf("put = %s/%s", aws.ToString(put.Bucket), aws.ToString(put.Key))
	}
	if aws.ToString(put.ContentType) != "application/json" {
		t.Fatalf("content type = %q", aws.ToString(put.ContentType))
	}

	var doc ArchivedSession
	if err := json.Unmarshal(bucket.body, &doc); err != nil {
		t.Fatalf("unmarshal archived document: %v", err)
	}
	if doc.SessionID != "s-42" || doc.Rounds != 2 || doc.Reason != ReasonEndedByParticipant || len(doc.Transcript) != 2 {
		t.Fatalf("archived document = %+v", doc)
	}
}

func TestTranscriptArchiveSkipsEmptySessions(t *testing.T) {
	bucket := &fakeBucket{}
	a := &TranscriptArchive{client: bucket, bucket: "transcripts"}

	if err := a.Store(context.Background(), endedSession(0), ReasonIdleTimeout); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if len(bucket.puts) != 0 {
		t.Fatalf("empty sessions should not be uploaded")
	}
}

func TestTranscriptArchiveUploadError(t *testing.T) {
	bucket := &fakeBucket{err: errors.New("access denied")}
	a := &TranscriptArchive{client: bucket, bucket: "transcripts"}

	if err := a.Store(context.Background(), endedSession(1), ReasonIdleTimeout); err == nil {
		t.Fatalf("Store() should surface upload errors")
	}
}
