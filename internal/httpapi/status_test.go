// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/holomush/accounts/internal/auth"
)

func TestStatusFor_SuccessAndUnknown(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(auth.KindNone))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(auth.Kind("SOMETHING_NEW")))
}
