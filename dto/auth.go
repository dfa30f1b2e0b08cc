package dto

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required"`
}

func (l LoginRequest) Validate() error {
	return GetValidator().Struct(l)
}

// TokenResponse is the upstream login payload: OAuth2 password-grant style,
// obtained from a form-encoded username/password POST.
type TokenResponse struct {
	AccessToken string `json:"access_token" validate:"required"`
	TokenType   string `json:"token_type"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}
