package shared

import "testing"

func TestCacheKeyHierarchy(t *testing.T) {
	courseKey := CacheKeyCourse(12)

	children := []string{
		CacheKeyCourseModules(12),
		CacheKeyCourseProgress(12, "student-7"),
		CacheKeyModuleProgress(12, 3, "student-7"),
		CacheKeyCourseExam(12, "student-7"),
	}
	for _, child := range children {
		if !KeyWithinPrefix(child, courseKey) {
			t.Errorf("%q should be within %q", child, courseKey)
		}
	}

	if KeyWithinPrefix(CacheKeyLesson(12), courseKey) {
		t.Errorf("lesson key should not be within %q", courseKey)
	}
	if KeyWithinPrefix(CacheKeyEnrollments("student-7"), courseKey) {
		t.Errorf("enrollments key should not be within %q", courseKey)
	}
}

func TestKeyWithinPrefix(t *testing.T) {
	tests := []struct {
		key    string
		prefix string
		want   bool
	}{
		{"course:1", "course:1", true},
		{"course:1:modules", "course:1", true},
		{"course:1:progress:u1", "course:1", true},
		// Segment boundary: course:1 must not cover course:10.
		{"course:10", "course:1", false},
		{"course:10:modules", "course:1", false},
		{"courses", "course:1", false},
		{"course:1", "course:1:modules", false},
		{"user:u1:enrollments", "user:u1", true},
		{"user:u10:enrollments", "user:u1", false},
	}

	for _, tt := range tests {
		if got := KeyWithinPrefix(tt.key, tt.prefix); got != tt.want {
			t.Errorf("KeyWithinPrefix(%q, %q) = %v, want %v", tt.key, tt.prefix, got, tt.want)
		}
	}
}
