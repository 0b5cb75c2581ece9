package services

import "net/http"

// MarkerForStatus maps an HTTP response code to the sentinel marker that
// drives retry classification. Success codes return nil.
func MarkerForStatus(status int) error {
	switch {
	case status < http.StatusBadRequest:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrPermission
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= http.StatusInternalServerError:
		return ErrTransient
	default:
		return ErrValidation
	}
}
