package auth

import "errors"

var (
	ErrNotFound         = errors.New("auth: account not found")
	ErrPasswordMismatch = errors.New("auth: password mismatch")
	ErrRepeatMismatch   = errors.New("auth: repeated password does not match")
	ErrNotAuthenticated = errors.New("auth: not authenticated")
	ErrUnverified       = errors.New("auth: account awaiting verification")
	ErrBanned           = errors.New("auth: account banned")
	ErrNameTaken        = errors.New("auth: username already taken")
	ErrEmailTaken       = errors.New("auth: email already taken")
	ErrNoChange         = errors.New("auth: no changes requested")
	ErrPermissionDenied = errors.New("auth: permission denied")
	ErrRegistrationOff  = errors.New("auth: registration disabled")
	ErrCaptchaFailed    = errors.New("auth: captcha verification failed")
)

// Reason identifies which validation rule an input violated. Reasons are
// stable codes the web layer can translate into user-facing copy.
type Reason string

const (
	ReasonNameLength     Reason = "name_length"
	ReasonNameSyntax     Reason = "name_syntax"
	ReasonNameSeparators Reason = "name_separators"
	ReasonNameDisallowed Reason = "name_disallowed"
	ReasonEmailSyntax    Reason = "email_syntax"
	ReasonPasswordLength Reason = "password_length"
	ReasonPasswordSimple Reason = "password_simple"
	ReasonPasswordCommon Reason = "password_common"
	ReasonPasswordReused Reason = "password_reused"
)

// ValidationError reports a policy-violating input together with the rule it
// broke. It is always locally recoverable.
type ValidationError struct {
	Field  string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "auth: invalid " + e.Field + " (" + string(e.Reason) + ")"
}

// IsValidation reports whether err is a validation verdict and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
