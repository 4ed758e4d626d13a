package lnurl

// Wire statuses used by LNURL wallets.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Reason codes returned with StatusError.
const (
	ReasonInvalidK1             = "invalid_k1"
	ReasonInvalidSig            = "invalid_sig"
	ReasonInvalidKey            = "invalid_key"
	ReasonUnknownK1             = "unknown_k1"
	ReasonExpired               = "expired"
	ReasonInvalidSignature      = "invalid_signature"
	ReasonAlreadyUsed           = "already_used"
	ReasonInvalidStatus         = "invalid_status"
	ReasonInvalidInvoice        = "invalid_invoice"
	ReasonInvalidAmount         = "invalid_amount"
	ReasonInProgress            = "in_progress"
	ReasonProviderNotSupported  = "provider_not_supported"
	ReasonProviderNotConfigured = "provider_not_configured"
	ReasonPaymentFailed         = "payment_failed"
)

// Result is the response body of an LNURL callback.
type Result struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// OK is the success result.
func OK() Result {
	return Result{Status: StatusOK}
}

// Fail builds an error result.
func Fail(reason string) Result {
	return Result{Status: StatusError, Reason: reason}
}

// IsOK reports whether r is a success.
func (r Result) IsOK() bool {
	return r.Status == StatusOK
}
