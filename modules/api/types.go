package api

// CreateRoomRequest is the API request to create a room. The caller is
// always added to the participants.
type CreateRoomRequest struct {
	Participants []uint `json:"participants"`
}

// PostMessageRequest is the JSON body for posting a message. Multipart
// requests carry the same field plus "files".
type PostMessageRequest struct {
	Content string `json:"content"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
