package dtos

type UserUpdateRequest struct {
	// Comma separated; an empty string clears the list.
	IgnoredEmails *string `json:"ignored_emails" binding:"required"`
}

type VerifyResponse struct {
	Status string `json:"status"`
	Email  string `json:"email"`
}
