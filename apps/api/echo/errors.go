package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/quangdn/vibecheck/core"
	"github.com/quangdn/vibecheck/core/attendance"
)

// kindError is the shape of every expected domain failure: a stable machine
// kind plus a human-readable message.
type kindError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// attendanceErrorKinds maps the expected check-in outcomes to their HTTP
// status and kind. Anything not in here is a server error.
var attendanceErrorKinds = map[error]struct {
	code int
	kind string
}{
	attendance.ErrSessionNotFound:         {http.StatusNotFound, "session_not_found"},
	attendance.ErrSessionExpired:          {http.StatusBadRequest, "session_expired"},
	attendance.ErrAlreadyCheckedIn:        {http.StatusBadRequest, "already_checked_in"},
	attendance.ErrDeviceAlreadyUsed:       {http.StatusBadRequest, "device_already_used"},
	attendance.ErrCodeGenerationExhausted: {http.StatusInternalServerError, "code_generation_exhausted"},
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		// Looking up a non-comparable error type (e.g. the slice-backed
		// validator.ValidationErrors) as a map key panics; such types can
		// never match the sentinel keys, so skip the lookup for them.
		var mapped struct {
			code int
			kind string
		}
		var ok bool
		if t := reflect.TypeOf(cause); t != nil && t.Comparable() {
			mapped, ok = attendanceErrorKinds[cause]
		}
		if ok {
			code = mapped.code
			message = kindError{Kind: mapped.kind, Error: cause.Error()}
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
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
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				logger.Error(msg, errors.Wrap(err, msg))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
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
