package handlers

import (
	"net/http"

	"capsuled/pkg/auth"
	"capsuled/pkg/faults"
	"capsuled/pkg/utils"
)

// statusFor maps error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch faults.KindOf(err) {
	case faults.KindNotFound:
		return http.StatusNotFound
	case faults.KindUnauthorized:
		return http.StatusForbidden
	case faults.KindInvalidArgument:
		return http.StatusBadRequest
	case faults.KindConflict:
		return http.StatusConflict
	case faults.KindResourceExhausted:
		return http.StatusTooManyRequests
	case faults.KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeErr sends the error as a JSON body with the mapped status.
func writeErr(w http.ResponseWriter, err error) {
	utils.JSONError(w, statusFor(err), err.Error())
}

// caller resolves the verified caller identity or writes the failure and
// returns "".
func caller(w http.ResponseWriter, r *http.Request) string {
	id, status, msg := auth.ResolveCaller(r)
	if id == "" {
		utils.JSONError(w, status, msg)
		return ""
	}
	return id
}
