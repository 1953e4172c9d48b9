package mapper

import (
	"errors"

	"github.com/vibium/mapper/internal/bidierr"
)

// toErrorResponse converts any error returned by a command handler into
// the {id, type:"error", error, message} envelope. Errors not already
// tagged with a bidierr.Kind are reported as "unknown error", matching the
// BiDi spec's fallback error code for internal failures.
func toErrorResponse(id int, err error) OutboundMessage {
	var bidiErr *bidierr.Error
	if errors.As(err, &bidiErr) {
		return ErrorResponse(id, string(bidiErr.Kind), bidiErr.Message)
	}
	return ErrorResponse(id, string(bidierr.UnknownError), err.Error())
}
