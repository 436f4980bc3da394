// Package kerrors defines the numeric error taxonomy returned to API and
// socket clients. Codes are four digits, grouped by family: 1000 accounts,
// 2000 games, 3000 malformed requests, 4000 internal, 5000 media. Codes
// ending in 0 are group labels and are never returned.
package kerrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	AccountNotFound = 1001

	UsernameTooLong = 1111
	UsernameInvalid = 1112
	UsernameTaken   = 1113

	PasswordTooShort      = 1121
	PasswordTooLong       = 1122
	PasswordTooFewUnique  = 1123
	PasswordBreached      = 1124

	EmailInvalid = 1131
	EmailTooLong = 1132
	EmailTaken   = 1133

	EmailAlreadyVerified = 1201
	VerifyTokenIncorrect = 1202

	AuthenticationRequired = 1301
	SessionNotFound        = 1302
	SessionKeyIncomplete   = 1303
	SessionTokenIncorrect  = 1304
	BadLoginDetails        = 1305
	EmailNotVerified       = 1307
	TokenBadLength         = 1308

	NotificationNotFound = 1401

	GameNotFound = 2001

	NotInvited       = 2111
	CannotInviteSelf = 2121

	NotAParticipant = 2201
	GameEnded       = 2202

	GameNotInProgress = 2311
	NotYourTurn       = 2312
	InvalidMove       = 2313
	NotTimedOut       = 2314

	NotADrawReason   = 2321
	DrawNotAvailable = 2322

	ValueRequired   = 3101
	WrongParameters = 3102
	BadEncryption   = 3103

	InvalidInteger   = 3111
	InvalidBase64    = 3112
	InvalidJSON      = 3113
	InvalidEnumValue = 3114
	InvalidMoveData  = 3115
	InvalidImage     = 3116
	NegativeDuration = 3117

	PageOutOfRange = 3201

	UnknownEndpoint = 3301

	SocketAuthMissing   = 3411
	SocketAuthMalformed = 3412
	SocketAuthScheme    = 3413
	SocketGameIDHeader  = 3421

	InternalError        = 4001
	SocketSessionUnknown = 4101

	MediaNotFound = 5001
)

var messages = map[int]string{
	AccountNotFound: "Account not found.",

	UsernameTooLong: "Usernames must be at most 32 characters long.",
	UsernameInvalid: "Usernames must be non-empty printable text.",
	UsernameTaken:   "That username is already taken.",

	PasswordTooShort:     "Passwords must be at least 10 characters long.",
	PasswordTooLong:      "Passwords must be at most 32 characters long.",
	PasswordTooFewUnique: "Passwords must contain at least 6 unique characters.",
	PasswordBreached:     "That password has been found in a data breach.",

	EmailInvalid: "That email address is not valid.",
	EmailTooLong: "Email addresses must be at most 255 characters long.",
	EmailTaken:   "That email address is already in use.",

	EmailAlreadyVerified: "That email address has already been verified.",
	VerifyTokenIncorrect: "Incorrect verification token.",

	AuthenticationRequired: "You must be logged in to do that.",
	SessionNotFound:        "That session has expired or does not exist.",
	SessionKeyIncomplete:   "A session ID and token must be provided together.",
	SessionTokenIncorrect:  "Incorrect session token.",
	BadLoginDetails:        "Incorrect username or password.",
	EmailNotVerified:       "You must verify your email address to do that.",
	TokenBadLength:         "Session tokens must be exactly 32 bytes.",

	NotificationNotFound: "Notification not found.",

	GameNotFound: "Game not found.",

	NotInvited:       "You have not been invited to this game.",
	CannotInviteSelf: "You cannot invite yourself to a game.",

	NotAParticipant: "You are not a participant in this game.",
	GameEnded:       "This game has already ended.",

	GameNotInProgress: "This game is not in progress.",
	NotYourTurn:       "It is not your turn.",
	InvalidMove:       "That move is not allowed.",
	NotTimedOut:       "Your opponent has not run out of time.",

	NotADrawReason:   "That is not a reason you can claim a draw for.",
	DrawNotAvailable: "That draw claim is not currently available.",

	ValueRequired:   "A required value was not provided.",
	WrongParameters: "Incorrect parameters for this endpoint.",
	BadEncryption:   "The encrypted payload could not be decrypted.",

	InvalidInteger:   "An integer parameter was malformed.",
	InvalidBase64:    "A base 64 parameter was malformed.",
	InvalidJSON:      "The request body must be a JSON object.",
	InvalidEnumValue: "An enum parameter was out of range.",
	InvalidMoveData:  "A move must be four board coordinates and an optional promotion.",
	InvalidImage:     "Images must be PNG, JPEG, GIF or WebP and at most 1 MiB.",
	NegativeDuration: "Durations must not be negative.",

	PageOutOfRange: "Page number out of range.",

	UnknownEndpoint: "Unknown endpoint.",

	SocketAuthMissing:   "An Authorization header must be provided.",
	SocketAuthMalformed: "The Authorization header was malformed.",
	SocketAuthScheme:    "Unknown authorization scheme.",
	SocketGameIDHeader:  "A Game-ID header must be provided as an integer.",

	InternalError:        "Internal server error.",
	SocketSessionUnknown: "Socket session not recognised.",

	MediaNotFound: "Media not found.",
}

// Error is a request failure with a documented numeric code.
type Error struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// New returns the canonical error value for a code.
func New(code int) *Error {
	msg, ok := messages[code]
	if !ok {
		msg = messages[InternalError]
	}
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Status maps the code to an HTTP status. Request errors are 400 across the
// board; only unknown-URL, missing media and internal failures differ.
func (e *Error) Status() int {
	switch e.Code {
	case UnknownEndpoint, MediaNotFound:
		return http.StatusNotFound
	case InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// From extracts a *Error from an error chain, converting anything else to a
// generic internal error.
func From(err error) *Error {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr
	}
	return New(InternalError)
}

// Is reports whether err carries the given code.
func Is(err error, code int) bool {
	var kerr *Error
	return errors.As(err, &kerr) && kerr.Code == code
}

// JSON renders the documented wire shape.
func (e *Error) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
