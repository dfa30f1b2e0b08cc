package dto

import "github.com/pybridge-app/pybridge/model"

type ChatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

func (c ChatRequest) Validate() error {
	return GetValidator().Struct(c)
}

type TranscriptResponse struct {
	LessonID int64                     `json:"lesson_id"`
	Messages []model.TranscriptMessage `json:"messages"`
}
