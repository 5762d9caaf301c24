package payments

import "github.com/memberdesk/backend/pkg/enums"

// PaymentStatusFromGC folds GoCardless payment statuses onto the local
// payment lifecycle.
func PaymentStatusFromGC(status string) enums.PaymentStatus {
	switch status {
	case "pending_customer_approval", "pending_submission":
		return enums.PaymentStatusPending
	case "submitted":
		return enums.PaymentStatusSubmitted
	case "confirmed":
		return enums.PaymentStatusConfirmed
	case "paid_out":
		return enums.PaymentStatusPaidOut
	case "cancelled", "customer_approval_denied":
		return enums.PaymentStatusCancelled
	case "failed", "charged_back":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}
