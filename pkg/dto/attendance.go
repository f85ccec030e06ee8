package dto

type AttendanceEnabledResponse struct {
	StreamID string `json:"stream_id"`
	Enabled  bool   `json:"enabled"`
}

type VoiceEventResponse struct {
	Seq        uint64 `json:"seq"`
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Phrase     string `json:"phrase"`
	Timestamp  string `json:"timestamp"`
}

type VoiceEventsResponse struct {
	LatestSeq uint64               `json:"latest_seq"`
	Events    []VoiceEventResponse `json:"events"`
}
