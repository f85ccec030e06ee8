package dto

type EnrollSessionStartRequest struct {
	CameraID string `json:"camera_id" binding:"required"`
	PersonID string `json:"person_id" binding:"required"`
}

type EnrollSessionStopRequest struct {
	CameraID string `json:"camera_id" binding:"required"`
}

type EnrollSessionResponse struct {
	CameraID  string `json:"camera_id"`
	PersonID  string `json:"person_id,omitempty"`
	State     string `json:"state"`
	StartedAt string `json:"started_at,omitempty"`
	StoppedAt string `json:"stopped_at,omitempty"`
}
