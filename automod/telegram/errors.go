package telegram

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/editguard/editguard/automod/dispatch"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Converts a Bot API error into the dispatcher's error taxonomy.
//
// Rate limiting and server errors are transient (with the platform's retry-after hint, if any). Errors which can not succeed on retry are permanent, with a reason. Anything else (eg, network errors) is returned as-is, which the dispatcher treats as transient.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		var valErr tgbotapi.Error
		if !errors.As(err, &valErr) {
			return err
		}
		apiErr = &valErr
	}

	desc := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return dispatch.Transient(err, time.Duration(apiErr.RetryAfter)*time.Second)
	case apiErr.Code >= 500:
		return dispatch.Transient(err, 0)
	case strings.Contains(desc, "message to delete not found"), strings.Contains(desc, "message not found"):
		return dispatch.Permanent(dispatch.ReasonMessageNotFound, err)
	case strings.Contains(desc, "chat not found"):
		return dispatch.Permanent(dispatch.ReasonChatNotFound, err)
	case apiErr.Code == http.StatusForbidden, apiErr.Code == http.StatusUnauthorized, strings.Contains(desc, "message can't be deleted"), strings.Contains(desc, "not enough rights"):
		return dispatch.Permanent(dispatch.ReasonForbidden, err)
	case apiErr.Code == http.StatusBadRequest:
		return dispatch.Permanent(dispatch.ReasonBadRequest, err)
	default:
		return err
	}
}
