package notifications

import "context"

type SendPasswordResetCodeInput struct {
	Email    string
	Username string
	Code     string
}

// Notifier delivers one-time codes to users. The wire transport (SMTP,
// provider API) sits behind this interface.
type Notifier interface {
	SendPasswordResetCode(ctx context.Context, input SendPasswordResetCodeInput) error
}
