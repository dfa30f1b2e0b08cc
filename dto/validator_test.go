package dto

import (
	"strings"
	"testing"

	"github.com/pybridge-app/pybridge/model"
)

func TestValidateDecoded(t *testing.T) {
	t.Run("valid course passes", func(t *testing.T) {
		course := &model.Course{ID: 1, Title: "Python Basics"}
		if err := ValidateDecoded(course); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("course without title fails", func(t *testing.T) {
		if err := ValidateDecoded(&model.Course{ID: 1}); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("slice validates per element", func(t *testing.T) {
		courses := []model.Course{
			{ID: 1, Title: "ok"},
			{ID: 2},
		}
		if err := ValidateDecoded(courses); err == nil {
			t.Error("expected validation error for second element")
		}
	})

	t.Run("nil and empty are fine", func(t *testing.T) {
		if err := ValidateDecoded(nil); err != nil {
			t.Errorf("nil: %v", err)
		}
		var course *model.Course
		if err := ValidateDecoded(course); err != nil {
			t.Errorf("nil pointer: %v", err)
		}
		if err := ValidateDecoded([]model.Course{}); err != nil {
			t.Errorf("empty slice: %v", err)
		}
	})

	t.Run("progress percentage range", func(t *testing.T) {
		progress := &model.CourseProgress{CourseID: 1, ProgressPercentage: 101}
		if err := ValidateDecoded(progress); err == nil {
			t.Error("expected range error for 101%")
		}
	})

	t.Run("validator interface takes precedence", func(t *testing.T) {
		if err := ValidateDecoded(LoginRequest{Username: "ab", Password: "x"}); err == nil {
			t.Error("expected short username to fail the dto's own Validate")
		}
	})
}

func TestFormatValidationErrors(t *testing.T) {
	err := LoginRequest{Username: "ab"}.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	formatted := FormatValidationErrors(err)
	if len(formatted) != 2 {
		t.Fatalf("formatted = %+v, want username and password entries", formatted)
	}

	byField := make(map[string]string)
	for _, fe := range formatted {
		byField[fe.Field] = fe.Message
	}
	if msg := byField["Username"]; !strings.Contains(msg, "at least 3") {
		t.Errorf("username message = %q", msg)
	}
	if msg := byField["Password"]; !strings.Contains(msg, "required") {
		t.Errorf("password message = %q", msg)
	}

	resp := CreateValidationErrorResponse(err)
	if resp.Code != 400 || len(resp.Errors) != 2 {
		t.Errorf("response = %+v", resp)
	}
}
