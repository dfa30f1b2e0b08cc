package shared

const (
	UserID    = "user_id"
	SessionID = "session_id"

	SessionCookie = "pybridge_session"

	MutationEnroll         = "enroll"
	MutationUnenroll       = "unenroll"
	MutationSubmitExercise = "submit_exercise"
	MutationSubmitExam     = "submit_exam"

	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"

	NotifySuccess = "success"
	NotifyError   = "error"
	NotifyInfo    = "info"
)
