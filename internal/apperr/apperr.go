// Package apperr holds the error conditions shared by the generation pipeline and their classification.
package apperr

import "errors"

// Kind groups error conditions into the categories callers react to.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindTimeout
	KindUpstream
	KindStorage
	KindPersistence
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream"
	case KindStorage:
		return "storage"
	case KindPersistence:
		return "persistence"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Validation
var (
	ErrEmptyPrompt        = errors.New("please enter a prompt to generate an image")
	ErrPasswordPolicy     = errors.New("password must be at least 6 characters long")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNameTooShort       = errors.New("name must be at least 2 characters long")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrGenerationInFlight = errors.New("a generation is already in progress")
)

// Auth
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid login credentials")
)

// Webhook
var (
	ErrTimeout           = errors.New("request timed out, the webhook is taking longer than expected")
	ErrUnreachable       = errors.New("webhook unreachable")
	ErrMalformedResponse = errors.New("invalid response from webhook")
)

// Storage
var (
	ErrInvalidURL        = errors.New("invalid image url")
	ErrSourceFetchFailed = errors.New("failed to fetch image from source")
	ErrEmptySource       = errors.New("source image is empty")
	ErrUploadFailed      = errors.New("failed to upload image")
	ErrPathNotFound      = errors.New("stored image not found")
	ErrSigningFailed     = errors.New("failed to sign image url")
)

var (
	ErrPersistence   = errors.New("failed to save image record")
	ErrNotFound      = errors.New("image not found")
	ErrMissingConfig = errors.New("missing configuration")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrEmptyPrompt, KindValidation},
	{ErrPasswordPolicy, KindValidation},
	{ErrPasswordMismatch, KindValidation},
	{ErrNameTooShort, KindValidation},
	{ErrInvalidEmail, KindValidation},
	{ErrEmailTaken, KindValidation},
	{ErrGenerationInFlight, KindValidation},
	{ErrUnauthorized, KindAuth},
	{ErrInvalidCredentials, KindAuth},
	{ErrTimeout, KindTimeout},
	{ErrUnreachable, KindUpstream},
	{ErrMalformedResponse, KindUpstream},
	{ErrInvalidURL, KindStorage},
	{ErrSourceFetchFailed, KindStorage},
	{ErrEmptySource, KindStorage},
	{ErrUploadFailed, KindStorage},
	{ErrPathNotFound, KindStorage},
	{ErrSigningFailed, KindStorage},
	{ErrPersistence, KindPersistence},
	{ErrNotFound, KindNotFound},
	{ErrMissingConfig, KindConfig},
}

// KindOf classifies err by the first known condition it wraps.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Cause returns the first known condition err wraps, or nil. Its message is safe to show to callers.
func Cause(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// Code returns a machine-readable code for err, e.g. "SOURCE_FETCH_FAILED".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyPrompt):
		return "EMPTY_PROMPT"
	case errors.Is(err, ErrPasswordPolicy):
		return "PASSWORD_POLICY"
	case errors.Is(err, ErrPasswordMismatch):
		return "PASSWORD_MISMATCH"
	case errors.Is(err, ErrNameTooShort):
		return "NAME_TOO_SHORT"
	case errors.Is(err, ErrInvalidEmail):
		return "INVALID_EMAIL"
	case errors.Is(err, ErrEmailTaken):
		return "EMAIL_TAKEN"
	case errors.Is(err, ErrGenerationInFlight):
		return "GENERATION_IN_FLIGHT"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrUnreachable):
		return "UNREACHABLE"
	case errors.Is(err, ErrMalformedResponse):
		return "MALFORMED_RESPONSE"
	case errors.Is(err, ErrInvalidURL):
		return "INVALID_URL"
	case errors.Is(err, ErrSourceFetchFailed):
		return "SOURCE_FETCH_FAILED"
	case errors.Is(err, ErrEmptySource):
		return "EMPTY_SOURCE"
	case errors.Is(err, ErrUploadFailed):
		return "UPLOAD_FAILED"
	case errors.Is(err, ErrPathNotFound):
		return "PATH_NOT_FOUND"
	case errors.Is(err, ErrSigningFailed):
		return "SIGNING_FAILED"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrMissingConfig):
		return "MISSING_CONFIG"
	default:
		return "INTERNAL_ERROR"
	}
}
