package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventUploadProgress       SSEEvent = "CurriculumUploadProgress"
	SSEEventUploadReadyForReview SSEEvent = "CurriculumUploadReadyForReview"
	SSEEventUploadApproved       SSEEvent = "CurriculumUploadApproved"
	SSEEventUploadRejected       SSEEvent = "CurriculumUploadRejected"
	SSEEventUploadComplete       SSEEvent = "CurriculumUploadComplete"
	SSEEventUploadError          SSEEvent = "CurriculumUploadError"
	SSEEventCourseCreated        SSEEvent = "CourseCreated"

	SSEEventJobCreated  SSEEvent = "JobCreated"
	SSEEventJobProgress SSEEvent = "JobProgress"
	SSEEventJobFailed   SSEEvent = "JobFailed"
	SSEEventJobDone     SSEEvent = "JobDone"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// UploadChannel is the channel carrying events for one upload.
func UploadChannel(uploadID uuid.UUID) string {
	return "curriculum-upload:" + uploadID.String()
}

// UserChannel carries events for everything a user owns.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}
