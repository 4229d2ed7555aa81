// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"

	"github.com/holomush/accounts/internal/auth"
)

// StatusFor maps an operation outcome to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindNone:
		return http.StatusOK
	case auth.KindInvalidInput, auth.KindMissingToken:
		return http.StatusBadRequest
	case auth.KindInvalidCredentials, auth.KindInvalidToken:
		return http.StatusUnauthorized
	case auth.KindInactiveAccount:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindDuplicateAccount:
		return http.StatusConflict
	case auth.KindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
