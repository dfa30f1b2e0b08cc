package handlers

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/shared"
)

type ChatHandler struct {
	chatSvc ChatServiceInterface

	StreamTimeout time.Duration
}

func NewChatHandler(chatSvc ChatServiceInterface) *ChatHandler {
	return &ChatHandler{
		chatSvc:       chatSvc,
		StreamTimeout: 2 * time.Minute,
	}
}

type chatStreamEvent struct {
	Delta string `json:"delta"`
	Text  string `json:"text"`
}

// @Summary Chat with the lesson assistant
// @Description Streams the reply incrementally as server-sent events
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param lessonId path int true "Lesson ID"
// @Param chatRequest body dto.ChatRequest true "User message"
// @Router /api/v1/lessons/{lessonId}/chat [post]
func (h *ChatHandler) StreamChat(c *fiber.Ctx) error {
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return err
	}

	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	session := sessionFromCtx(c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	timeout := h.StreamTimeout

	// The fiber ctx is not valid inside the stream writer; everything the
	// stream needs is captured before it runs.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		_, err := h.chatSvc.Stream(ctx, session, lessonID, req.Message, func(delta, buffered string) error {
			payload, err := shared.MarshalJSON(chatStreamEvent{Delta: delta, Text: buffered})
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			return w.Flush()
		})
		if err != nil {
			payload, merr := shared.MarshalJSON(fiber.Map{"error": userFacingChatError(err)})
			if merr == nil {
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			}
			w.Flush()
			return
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		w.Flush()
	})

	return nil
}

// userFacingChatError keeps transport detail out of the event stream.
func userFacingChatError(err error) string {
	if appErr, ok := shared.GetAppError(err); ok {
		return appErr.Message
	}
	return "The assistant is unavailable right now. Please try again."
}

// @Summary Lesson chat transcript
// @Tags chat
// @Produce json
// @Param lessonId path int true "Lesson ID"
// @Success 200 {object} shared.Response{data=dto.TranscriptResponse}
// @Router /api/v1/lessons/{lessonId}/transcript [get]
func (h *ChatHandler) GetTranscript(c *fiber.Ctx) error {
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return err
	}

	messages, err := h.chatSvc.Transcript(c.UserContext(), sessionFromCtx(c), lessonID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", dto.TranscriptResponse{
		LessonID: lessonID,
		Messages: messages,
	})
}

// @Summary Clear lesson chat transcript
// @Tags chat
// @Produce json
// @Param lessonId path int true "Lesson ID"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/lessons/{lessonId}/transcript [delete]
func (h *ChatHandler) ClearTranscript(c *fiber.Ctx) error {
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return err
	}

	if err := h.chatSvc.ClearTranscript(c.UserContext(), sessionFromCtx(c), lessonID); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Transcript cleared", nil)
}
