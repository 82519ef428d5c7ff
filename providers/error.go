package providers

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("PROVIDERS")

var (
	CodeProviderNotFound   = ErrRegistry.Register("PROVIDER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Provider not found")
	CodeSendFailed         = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to send message")
	CodeInvalidWebhook     = ErrRegistry.Register("INVALID_WEBHOOK", errx.TypeValidation, http.StatusBadRequest, "Invalid webhook payload")
	CodeInvalidSignature   = ErrRegistry.Register("INVALID_SIGNATURE", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid webhook signature")
	CodeWrongTenant        = ErrRegistry.Register("WRONG_TENANT", errx.TypeAuthorization, http.StatusForbidden, "Webhook does not belong to this provider instance")
	CodeProviderUnhealthy  = ErrRegistry.Register("PROVIDER_UNHEALTHY", errx.TypeExternal, http.StatusServiceUnavailable, "Provider connection is unhealthy")
	CodeUnsupportedMessage = ErrRegistry.Register("UNSUPPORTED_MESSAGE", errx.TypeBusiness, http.StatusUnprocessableEntity, "Unsupported message type")
)

// Error constructor functions
func ErrProviderNotFound() *errx.Error {
	return ErrRegistry.New(CodeProviderNotFound)
}

func ErrSendFailed() *errx.Error {
	return ErrRegistry.New(CodeSendFailed)
}

func ErrInvalidWebhook() *errx.Error {
	return ErrRegistry.New(CodeInvalidWebhook)
}

func ErrInvalidSignature() *errx.Error {
	return ErrRegistry.New(CodeInvalidSignature)
}

func ErrWrongTenant() *errx.Error {
	return ErrRegistry.New(CodeWrongTenant)
}

func ErrProviderUnhealthy() *errx.Error {
	return ErrRegistry.New(CodeProviderUnhealthy)
}

func ErrUnsupportedMessage() *errx.Error {
	return ErrRegistry.New(CodeUnsupportedMessage)
}
