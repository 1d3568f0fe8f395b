package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrFacultyAccessOnly ErrCode = "FACULTY_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotOpen      ErrCode = "EXAM_NOT_OPEN"
	ErrNotExamAuthor    ErrCode = "NOT_EXAM_AUTHOR"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrAttemptCompleted ErrCode = "ATTEMPT_COMPLETED"
	ErrNoActiveAttempt  ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrSubmitInFlight   ErrCode = "SUBMIT_IN_FLIGHT"
	ErrAttemptExpired   ErrCode = "ATTEMPT_EXPIRED"
	ErrExamInUse        ErrCode = "EXAM_IN_USE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrFacultyAccessOnly:
		return "This resource is restricted to faculty."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotOpen:
		return "This exam is not open right now."
	case ErrNotExamAuthor:
		return "You are not the author of this exam."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrAttemptCompleted:
		return "You have already attempted this exam."
	case ErrNoActiveAttempt:
		return "No ongoing attempt found for this exam."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrSubmitInFlight:
		return "A submission for this attempt is already being processed."
	case ErrExamInUse:
		return "This exam has attempts in progress and cannot be changed."
	case ErrAttemptExpired:
		return "The time for this attempt is over."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
