package web

import (
	"fmt"
	"strings"
)

// ErrCode identifies an API error in response bodies
type ErrCode int

const (
	_                       ErrCode = 10000 + iota
	ErrCodeMalformedJSON            // 10001
	ErrCodeRequestBody              // 10002
	ErrCodeUnknownPointClass        // 10003
	ErrCodeInvalidIndex             // 10004
	ErrCodeUpdateRejected           // 10005
	ErrCodeInvalidConfig            // 10006
	ErrCodeResetFailed              // 10007
)

// Add new codes at the end of the enum and give them a message below.
var messages = map[ErrCode]string{
	ErrCodeMalformedJSON:     "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:       "Request body error",
	ErrCodeUnknownPointClass: "Unknown point class %q.",
	ErrCodeInvalidIndex:      "Point index %q is not a number between 0 and 65535.",
	ErrCodeUpdateRejected:    "The point update was rejected: %v",
	ErrCodeInvalidConfig:     "The outstation configuration is invalid: %v",
	ErrCodeResetFailed:       "The outstation could not be restarted: %v",
}

// ResponseError is the JSON body of every failed request
type ResponseError struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func newError(code ErrCode, args ...interface{}) *ResponseError {
	msg := messages[code]
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &ResponseError{Code: code, Message: strings.TrimSpace(msg)}
}
