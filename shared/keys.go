package shared

import (
	"fmt"
	"strings"
)

// Cache keys live in one place so the prefix hierarchy stays consistent: a
// course key is a prefix of its progress, modules and exam keys, so
// invalidating the course reaches every descendant without enumeration.

func CacheKeyCourses() string {
	return "courses"
}

func CacheKeyCourse(courseID int64) string {
	return fmt.Sprintf("course:%d", courseID)
}

func CacheKeyCourseModules(courseID int64) string {
	return fmt.Sprintf("course:%d:modules", courseID)
}

func CacheKeyCourseProgress(courseID int64, userID string) string {
	return fmt.Sprintf("course:%d:progress:%s", courseID, userID)
}

func CacheKeyModuleProgress(courseID, moduleID int64, userID string) string {
	return fmt.Sprintf("course:%d:modules:%d:progress:%s", courseID, moduleID, userID)
}

func CacheKeyCourseExam(courseID int64, userID string) string {
	return fmt.Sprintf("course:%d:exam:%s", courseID, userID)
}

func CacheKeyLesson(lessonID int64) string {
	return fmt.Sprintf("lesson:%d", lessonID)
}

func CacheKeyEnrollments(userID string) string {
	return fmt.Sprintf("user:%s:enrollments", userID)
}

func CacheKeyDashboard(userID string) string {
	return fmt.Sprintf("user:%s:dashboard", userID)
}

// KeyWithinPrefix reports whether key equals prefix or is one of its
// descendants. Matching stops at segment boundaries, so "course:1" does not
// cover "course:10".
func KeyWithinPrefix(key, prefix string) bool {
	if key == prefix {
		return true
	}
	return strings.HasPrefix(key, prefix+":")
}
