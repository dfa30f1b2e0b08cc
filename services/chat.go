package services

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
)

// ChatService consumes the tutor's streamed reply chunk by chunk, feeding a
// running buffer to the caller after every chunk, and keeps one transcript
// per (user, lesson) in durable storage. Transcripts never touch the query
// cache.
type ChatService struct {
	appContext.DefaultService

	upstreamSvc *UpstreamService
	kvSvc       KeyValueStore
}

const CHAT_SVC = "chat_svc"

type chatChunk struct {
	Delta string `json:"delta"`
}

func (svc ChatService) Id() string {
	return CHAT_SVC
}

func (svc *ChatService) Configure(ctx *appContext.Context) error {
	svc.upstreamSvc = ctx.Service(UPSTREAM_SVC).(*UpstreamService)
	svc.kvSvc = ctx.Service(REDIS_SVC).(*RedisService)
	return svc.DefaultService.Configure(ctx)
}

func (svc *ChatService) Start() error {
	return nil
}

func transcriptKey(userID string, lessonID int64) string {
	return fmt.Sprintf("transcript:%s:%d", userID, lessonID)
}

// Stream sends the user's message and consumes the reply stream. onChunk is
// invoked once per chunk with the delta and the buffer so far, in arrival
// order; a callback error stops consumption. The completed exchange is
// appended to the transcript.
func (svc *ChatService) Stream(ctx context.Context, session *model.Session, lessonID int64, message string, onChunk func(delta, buffered string) error) (string, error) {
	body, err := svc.upstreamSvc.ChatStream(ctx, session, lessonID, message)
	if err != nil {
		return "", err
	}
	defer body.Close()

	recordChatStreamStart()
	defer recordChatStreamEnd()

	var buffer strings.Builder

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := shared.UnmarshalJSON([]byte(data), &chunk); err != nil {
			log.WithError(err).Debug("Skipping undecodable chat chunk")
			continue
		}
		if chunk.Delta == "" {
			continue
		}

		buffer.WriteString(chunk.Delta)
		if onChunk != nil {
			if err := onChunk(chunk.Delta, buffer.String()); err != nil {
				return buffer.String(), fmt.Errorf("chunk callback failed: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return buffer.String(), fmt.Errorf("failed to read chat stream: %w", err)
	}

	reply := buffer.String()
	if err := svc.appendTranscript(ctx, session.UserID, lessonID, message, reply); err != nil {
		log.WithError(err).WithField("lesson_id", lessonID).Warn("Failed to persist chat transcript")
	}

	return reply, nil
}

func (svc *ChatService) Transcript(ctx context.Context, session *model.Session, lessonID int64) ([]model.TranscriptMessage, error) {
	var messages []model.TranscriptMessage
	if err := svc.kvSvc.GetJSON(ctx, transcriptKey(session.UserID, lessonID), &messages); err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return messages, nil
}

func (svc *ChatService) ClearTranscript(ctx context.Context, session *model.Session, lessonID int64) error {
	return svc.kvSvc.Delete(ctx, transcriptKey(session.UserID, lessonID))
}

func (svc *ChatService) appendTranscript(ctx context.Context, userID string, lessonID int64, message, reply string) error {
	key := transcriptKey(userID, lessonID)

	var messages []model.TranscriptMessage
	if err := svc.kvSvc.GetJSON(ctx, key, &messages); err != nil {
		return err
	}

	now := time.Now()
	messages = append(messages,
		model.TranscriptMessage{Role: shared.ChatRoleUser, Text: message, CreatedAt: now},
		model.TranscriptMessage{Role: shared.ChatRoleAssistant, Text: reply, CreatedAt: now},
	)

	return svc.kvSvc.Set(ctx, key, messages, 0)
}
