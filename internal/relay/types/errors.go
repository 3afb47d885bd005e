package types

import errorsmod "cosmossdk.io/errors"

const ModuleName = "relay"

// relay sentinel errors. Only ErrRelayUnavailable is worth retrying.
var (
	ErrInvalidRequest           = errorsmod.Register(ModuleName, 2, "invalid request")
	ErrAuthorizationExpired     = errorsmod.Register(ModuleName, 3, "authorization expired")
	ErrAuthorizationNotYetValid = errorsmod.Register(ModuleName, 4, "authorization not yet valid")
	ErrInvalidSignature         = errorsmod.Register(ModuleName, 5, "invalid authorization signature")
	ErrUnauthorized             = errorsmod.Register(ModuleName, 6, "unauthorized")
	ErrMalformedHandle          = errorsmod.Register(ModuleName, 7, "malformed handle")
	ErrRelayUnavailable         = errorsmod.Register(ModuleName, 8, "relay unavailable")
	ErrPartialResponse          = errorsmod.Register(ModuleName, 9, "partial response")
)

var byCode = map[uint32]*errorsmod.Error{
	ErrInvalidRequest.ABCICode():           ErrInvalidRequest,
	ErrAuthorizationExpired.ABCICode():     ErrAuthorizationExpired,
	ErrAuthorizationNotYetValid.ABCICode(): ErrAuthorizationNotYetValid,
	ErrInvalidSignature.ABCICode():         ErrInvalidSignature,
	ErrUnauthorized.ABCICode():             ErrUnauthorized,
	ErrMalformedHandle.ABCICode():          ErrMalformedHandle,
	ErrRelayUnavailable.ABCICode():         ErrRelayUnavailable,
	ErrPartialResponse.ABCICode():          ErrPartialResponse,
}

// ErrorByCode returns the sentinel registered under code in this codespace.
func ErrorByCode(code uint32) (*errorsmod.Error, bool) {
	e, ok := byCode[code]
	return e, ok
}
