// Package errorhandler translates raw authentication errors into a stable
// taxonomy with user-facing copy. It is the single place where technical
// error text becomes {userMessage, suggestion, retryable}; callers never
// build their own copy from raw error strings.
package errorhandler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Category groups error types by how the application should react.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryConfiguration  Category = "configuration"
	CategoryRateLimit      Category = "rate_limit"
	CategorySecurity       Category = "security"
	CategoryUnknown        Category = "unknown"
)

// ErrorType is a classified authentication error.
type ErrorType string

const (
	TypeNetworkFailure         ErrorType = "network_failure"
	TypeServerError            ErrorType = "server_error"
	TypePopupClosed            ErrorType = "popup_closed"
	TypePopupBlocked           ErrorType = "popup_blocked"
	TypeTokenExpired           ErrorType = "token_expired"
	TypeInvalidToken           ErrorType = "invalid_token"
	TypeInvalidNonce           ErrorType = "invalid_nonce"
	TypeInvalidState           ErrorType = "invalid_state"
	TypeInvalidCredentials     ErrorType = "invalid_credentials"
	TypeAccountDisabled        ErrorType = "account_disabled"
	TypeInsufficientPermission ErrorType = "insufficient_permission"
	TypeSuspiciousActivity     ErrorType = "suspicious_activity"
	TypeRateLimited            ErrorType = "rate_limited"
	TypeConfigurationError     ErrorType = "configuration_error"
	TypeUnknown                ErrorType = "unknown"
)

// Descriptor is the policy attached to one ErrorType.
type Descriptor struct {
	Category    Category
	Retryable   bool
	Recoverable bool
	RetryDelay  int // seconds
	Message     string
	UserMessage string
	Suggestion  string
}

// Response is what HandleError returns to callers.
type Response struct {
	Type             ErrorType
	Category         Category
	ShouldRetry      bool
	RetryDelay       int // seconds, zero when ShouldRetry is false
	UserMessage      string
	TechnicalMessage string
	Suggestion       string
	LogLevel         string
}

// Display is the user-visible rendering of a handled error.
type Display struct {
	Title      string
	Message    string
	Suggestion string
	CanRetry   bool
	RetryDelay int
}

const (
	retryDelayNetwork   = 2
	retryDelayServer    = 5
	retryDelayRateLimit = 60
	retryDelayDefault   = 1
)

type pattern struct {
	re      *regexp.Regexp
	errType ErrorType
}

// patterns is evaluated in order against the lowercased error text; first
// match wins, so specific entries must precede generic ones (token expired
// before invalid token, popup blocked before popup closed).
var patterns = []pattern{
	{regexp.MustCompile(`popup.{0,20}blocked`), TypePopupBlocked},
	{regexp.MustCompile(`popup.{0,20}(closed|dismissed|cancell?ed)`), TypePopupClosed},
	{regexp.MustCompile(`(closed|dismissed).{0,20}popup`), TypePopupClosed},
	{regexp.MustCompile(`token.{0,20}expired|expired.{0,20}token`), TypeTokenExpired},
	{regexp.MustCompile(`(invalid|malformed|bad).{0,20}token`), TypeInvalidToken},
	{regexp.MustCompile(`nonce`), TypeInvalidNonce},
	{regexp.MustCompile(`state.{0,20}(mismatch|invalid)|invalid.{0,20}state`), TypeInvalidState},
	{regexp.MustCompile(`(invalid|wrong|incorrect).{0,20}(credential|password|username)`), TypeInvalidCredentials},
	{regexp.MustCompile(`account.{0,20}(disabled|locked|suspended)`), TypeAccountDisabled},
	{regexp.MustCompile(`(insufficient|denied).{0,20}(permission|access)|access.{0,20}denied|forbidden`), TypeInsufficientPermission},
	{regexp.MustCompile(`suspicious|security.{0,20}violation`), TypeSuspiciousActivity},
	{regexp.MustCompile(`rate.{0,10}limit|too many (requests|attempts)`), TypeRateLimited},
	{regexp.MustCompile(`(missing|invalid).{0,20}(configuration|client.{0,5}id|authority|redirect)`), TypeConfigurationError},
	{regexp.MustCompile(`5\d\d|internal server|server error|bad gateway|service unavailable`), TypeServerError},
	{regexp.MustCompile(`network|fetch|connection|timeout|timed out|unreachable|refused|dns`), TypeNetworkFailure},
}

var descriptors = map[ErrorType]Descriptor{
	TypeNetworkFailure: {
		Category: CategoryNetwork, Retryable: true, Recoverable: true, RetryDelay: retryDelayNetwork,
		Message:     "network request failed",
		UserMessage: "We couldn't reach the sign-in service.",
		Suggestion:  "Check your internet connection and try again.",
	},
	TypeServerError: {
		Category: CategoryNetwork, Retryable: true, Recoverable: true, RetryDelay: retryDelayServer,
		Message:     "identity provider returned a server error",
		UserMessage: "The sign-in service had a problem.",
		Suggestion:  "Please try again in a few moments.",
	},
	TypePopupClosed: {
		Category: CategoryValidation, Retryable: true, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "sign-in window was closed before completion",
		UserMessage: "The sign-in window was closed.",
		Suggestion:  "Click sign in again and complete the login in the window that opens.",
	},
	TypePopupBlocked: {
		Category: CategoryValidation, Retryable: true, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "sign-in window could not be opened",
		UserMessage: "Your browser blocked the sign-in window.",
		Suggestion:  "Allow pop-ups for this site, or use the redirect sign-in option.",
	},
	TypeTokenExpired: {
		Category: CategoryAuthentication, Retryable: true, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "session token has expired",
		UserMessage: "Your session has expired.",
		Suggestion:  "Please sign in again.",
	},
	TypeInvalidToken: {
		Category: CategoryAuthentication, Retryable: false, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "session token failed validation",
		UserMessage: "Your session is no longer valid.",
		Suggestion:  "Please sign in again.",
	},
	TypeInvalidNonce: {
		Category: CategorySecurity, Retryable: false, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "nonce validation failed",
		UserMessage: "We couldn't verify this sign-in attempt.",
		Suggestion:  "Please start the sign-in again from the beginning.",
	},
	TypeInvalidState: {
		Category: CategorySecurity, Retryable: false, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "state parameter validation failed",
		UserMessage: "We couldn't verify this sign-in attempt.",
		Suggestion:  "Please start the sign-in again from the beginning.",
	},
	TypeInvalidCredentials: {
		Category: CategoryAuthentication, Retryable: true, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "credentials were rejected",
		UserMessage: "The email or password is incorrect.",
		Suggestion:  "Check your details and try again.",
	},
	TypeAccountDisabled: {
		Category: CategoryAuthorization, Retryable: false, Recoverable: false, RetryDelay: retryDelayDefault,
		Message:     "account is disabled",
		UserMessage: "This account has been disabled.",
		Suggestion:  "Contact support to restore access.",
	},
	TypeInsufficientPermission: {
		Category: CategoryAuthorization, Retryable: false, Recoverable: false, RetryDelay: retryDelayDefault,
		Message:     "insufficient permissions",
		UserMessage: "You don't have access to this.",
		Suggestion:  "Contact support if you believe you should have access.",
	},
	TypeSuspiciousActivity: {
		Category: CategorySecurity, Retryable: false, Recoverable: false, RetryDelay: retryDelayDefault,
		Message:     "suspicious activity detected",
		UserMessage: "This sign-in attempt was blocked.",
		Suggestion:  "Contact support if this keeps happening.",
	},
	TypeRateLimited: {
		Category: CategoryRateLimit, Retryable: true, Recoverable: true, RetryDelay: retryDelayRateLimit,
		Message:     "too many attempts",
		UserMessage: "Too many sign-in attempts.",
		Suggestion:  "Wait a minute before trying again.",
	},
	TypeConfigurationError: {
		Category: CategoryConfiguration, Retryable: false, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "authentication configuration is invalid",
		UserMessage: "Sign-in is not set up correctly.",
		Suggestion:  "Contact support; this is a problem on our side.",
	},
	TypeUnknown: {
		Category: CategoryUnknown, Retryable: true, Recoverable: true, RetryDelay: retryDelayDefault,
		Message:     "unexpected error",
		UserMessage: "Something went wrong during sign-in.",
		Suggestion:  "Please try again.",
	},
}

// Classify maps raw error text to an ErrorType using the ordered pattern
// table. A nil error classifies as TypeUnknown.
func Classify(err error) ErrorType {
	if err == nil {
		return TypeUnknown
	}
	text := strings.ToLower(err.Error())
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return p.errType
		}
	}
	return TypeUnknown
}

// Describe returns the descriptor for an ErrorType, falling back to the
// unknown descriptor for unrecognized types.
func Describe(errType ErrorType) Descriptor {
	if d, ok := descriptors[errType]; ok {
		return d
	}
	return descriptors[TypeUnknown]
}

// HandleError classifies err and returns the full handling policy. It is a
// pure function of the error text apart from logging: security-category
// errors log at warn, everything else at error.
func HandleError(err error, context string) Response {
	errType := Classify(err)
	descriptor := Describe(errType)

	// Non-recoverable types never retry, whatever the pattern said.
	shouldRetry := descriptor.Retryable && descriptor.Recoverable
	retryDelay := 0
	if shouldRetry {
		retryDelay = descriptor.RetryDelay
	}

	technical := descriptor.Message
	if err != nil {
		technical = fmt.Sprintf("%s: %s", descriptor.Message, err.Error())
	}

	logLevel := "error"
	if descriptor.Category == CategorySecurity {
		logLevel = "warn"
	}

	event := log.Error()
	if logLevel == "warn" {
		event = log.Warn()
	}
	event.Err(err).
		Str("errorType", string(errType)).
		Str("category", string(descriptor.Category)).
		Str("context", context).
		Msg("authentication error handled")

	return Response{
		Type:             errType,
		Category:         descriptor.Category,
		ShouldRetry:      shouldRetry,
		RetryDelay:       retryDelay,
		UserMessage:      descriptor.UserMessage,
		TechnicalMessage: technical,
		Suggestion:       descriptor.Suggestion,
		LogLevel:         logLevel,
	}
}

// ShouldReport decides whether a handled error is worth forwarding to an
// external error-tracking sink: security and configuration categories
// always, otherwise only dead ends (neither retryable nor recoverable).
func ShouldReport(response Response) bool {
	if response.Category == CategorySecurity || response.Category == CategoryConfiguration {
		return true
	}
	descriptor := Describe(response.Type)
	return !descriptor.Retryable && !descriptor.Recoverable
}

// CreateDisplay renders a handled error for the UI layer.
func CreateDisplay(response Response) Display {
	title := "Sign-in problem"
	switch response.Category {
	case CategoryNetwork:
		title = "Connection problem"
	case CategoryRateLimit:
		title = "Too many attempts"
	case CategoryAuthorization:
		title = "Access denied"
	}
	return Display{
		Title:      title,
		Message:    response.UserMessage,
		Suggestion: response.Suggestion,
		CanRetry:   response.ShouldRetry,
		RetryDelay: response.RetryDelay,
	}
}

// FormatForReporting flattens a handled error into a single line suited for
// an external reporting sink.
func FormatForReporting(response Response, context string) string {
	return fmt.Sprintf("[%s/%s] %s (context=%s retryable=%t)",
		response.Category, response.Type, response.TechnicalMessage, context, response.ShouldRetry)
}
