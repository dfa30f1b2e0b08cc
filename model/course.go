package model

type Course struct {
	ID            int64   `json:"id" validate:"required"`
	Title         string  `json:"title" validate:"required"`
	Description   string  `json:"description"`
	Level         string  `json:"level"`
	Sequence      int     `json:"sequence"`
	Duration      int     `json:"duration"`
	TotalModules  int     `json:"total_modules"`
	StudentsCount int     `json:"students_count"`
	Rating        float64 `json:"rating"`
}

type Module struct {
	ID          int64  `json:"id" validate:"required"`
	CourseID    int64  `json:"course_id" validate:"required"`
	Title       string `json:"title"`
	Level       string `json:"level"`
	Order       int    `json:"order"`
	LessonCount int    `json:"lesson_count"`

	// Backend-side lock flag only. Whether the module is actually locked for
	// a user also depends on their enrollment and must never be cached.
	Locked bool `json:"is_locked"`
}

type Lesson struct {
	ID        int64      `json:"id"`
	ModuleID  int64      `json:"module_id"`
	Title     string     `json:"title"`
	Order     int        `json:"order"`
	Body      string     `json:"body"`
	Exercises []Exercise `json:"exercises"`
}

type Exercise struct {
	ID          int64  `json:"id"`
	LessonID    int64  `json:"lesson_id"`
	Title       string `json:"title"`
	Prompt      string `json:"prompt"`
	StarterCode string `json:"starter_code"`
	Order       int    `json:"order"`
}
