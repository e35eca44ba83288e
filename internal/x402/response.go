package x402

import (
	"time"

	"github.com/agoramarket/agora/internal/model"
)

// PaymentInstructions is the body of the payment_instructions field on a
// 402 response. Field names are part of the client contract.
type PaymentInstructions struct {
	RequestID   string `json:"request_id"`
	Amount      string `json:"amount"`
	Asset       string `json:"asset"`
	Destination string `json:"destination"`
	Chain       string `json:"chain"`
	ExpiresAt   string `json:"expires_at"`
}

// PaymentRequiredResponse is the JSON payload returned with HTTP 402 when a
// job is created and awaits payment.
type PaymentRequiredResponse struct {
	Success             bool                `json:"success"`
	Message             string              `json:"message"`
	PaymentInstructions PaymentInstructions `json:"payment_instructions"`
}

// PaymentRequired renders req as the 402 body.
func PaymentRequired(req *model.PaymentRequest) PaymentRequiredResponse {
	return PaymentRequiredResponse{
		Success: false,
		Message: "Payment Required",
		PaymentInstructions: PaymentInstructions{
			RequestID:   req.RequestID,
			Amount:      req.Amount,
			Asset:       req.Asset,
			Destination: req.Destination,
			Chain:       req.Chain,
			ExpiresAt:   req.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}
}
