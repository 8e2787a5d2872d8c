package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
)

var (
	errUnauthenticated = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed token")
	errHttpForbidden   = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			code, message = statusFor(cause, err)
			if code == http.StatusInternalServerError || code == http.StatusServiceUnavailable {
				msg := http.StatusText(code)
				logger.Error(fmt.Sprintf("%s: %v", msg, err), errors.Wrap(err, msg), requestUser(ctx))
				message = msg

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// statusFor maps a domain error cause to its HTTP status and public message.
// err is the full error, its message carries the domain context added to the cause.
func statusFor(cause, err error) (int, string) {
	switch cause {
	case auth.ErrInvalidCredentials:
		return http.StatusBadRequest, cause.Error()
	case auth.ErrInvalidToken:
		return http.StatusUnauthorized, cause.Error()
	case auth.ErrRefreshExpired:
		return http.StatusForbidden, cause.Error()
	case core.ErrUnauthorized:
		return http.StatusForbidden, cause.Error()
	case core.ErrNotFound:
		return http.StatusNotFound, domainMessage(err, cause)
	case core.ErrConflict:
		return http.StatusConflict, domainMessage(err, cause)
	case core.ErrBackendUnavailable:
		return http.StatusServiceUnavailable, ""
	}
	return http.StatusInternalServerError, ""
}

// domainMessage returns the message of the domain error wrapping cause, eg. "event not found".
func domainMessage(err, cause error) string {
	var msg string
	for e := err; e != nil && e != cause; {
		msg = e.Error()
		c, ok := e.(interface{ Cause() error })
		if !ok {
			break
		}
		e = c.Cause()
	}
	if msg == "" {
		return cause.Error()
	}
	return trimCause(msg, cause)
}

func trimCause(msg string, cause error) string {
	suffix := ": " + cause.Error()
	if len(msg) > len(suffix) && msg[len(msg)-len(suffix):] == suffix {
		return msg[:len(msg)-len(suffix)]
	}
	return msg
}
