package dtos

type SendMessageRequest struct {
	// ID is generated by the client so a resend after a timeout is idempotent.
	ID             string `json:"id" binding:"omitempty,uuid"`
	ConversationID string `json:"conversation_id" binding:"required,uuid"`
	Body           string `json:"body" binding:"required,max=5000"`
}

type TeamInviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"omitempty,oneof=owner recruiter viewer"`
}

type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

type MigrateRequest struct {
	From         string `json:"from_bucket" binding:"required"`
	To           string `json:"to_bucket" binding:"required"`
	Prefix       string `json:"prefix"`
	DestPrefix   string `json:"dest_prefix"`
	KeepOriginal bool   `json:"keep_original"`
}
