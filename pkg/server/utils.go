package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const operatorMessagePrefix = "I am the operator of "

var errMalformedOperatorMessage = errors.New("malformed operator message")

// createResponse creates a StdResponse with the given body and error
func createResponse[T any](body T, err error) StdResponse[T] {
	if err != nil {
		errMsg := err.Error()
		return StdResponse[T]{
			Body:  body,
			Error: &errMsg,
		}
	}
	return StdResponse[T]{Body: body}
}

// GetAuthParams extracts the operator headers from the request.
func GetAuthParams(c *fiber.Ctx) AuthParams {
	return AuthParams{
		Address:   c.Get(AddressHeader),
		Message:   c.Get(MessageHeader),
		Signature: c.Get(SignatureHeader),
	}
}

func isWhitelisted(path string, whitelistedRoutes []string) bool {
	for _, route := range whitelistedRoutes {
		if path == route {
			return true
		}
	}
	return false
}

// OperatorMessage is the text an operator signs for the x-message header.
func OperatorMessage(address string, at time.Time) string {
	return fmt.Sprintf("%s%s at %d", operatorMessagePrefix, address, at.Unix())
}

// parseOperatorMessage returns the address and signing time embedded by
// OperatorMessage.
func parseOperatorMessage(message string) (string, time.Time, error) {
	rest, ok := strings.CutPrefix(message, operatorMessagePrefix)
	if !ok {
		return "", time.Time{}, errMalformedOperatorMessage
	}
	address, ts, ok := strings.Cut(rest, " at ")
	if !ok {
		return "", time.Time{}, errMalformedOperatorMessage
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", errMalformedOperatorMessage, err)
	}
	return address, time.Unix(unix, 0), nil
}
