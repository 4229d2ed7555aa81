// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// User-facing response messages.
const (
	msgSignupSent      = "We have sent you an email to verify your account."
	msgActivated       = "Your account has been activated."
	msgResetSent       = "We have sent you a link to reset your password."
	msgPasswordChanged = "Your password has been changed."

	msgDuplicate          = "An account with this email already exists."
	msgNotFound           = "No account was found for this email."
	msgInvalidCredentials = "Incorrect password."
	msgInactive           = "You need to confirm your email before signing in."
	msgMissingToken       = "A token is required."
	msgInvalidToken       = "The token is invalid or has expired."
	msgInvalidInput       = "The request is invalid."
	msgGeneric            = "We could not process the request."
)

var deliveryMessages = map[string]string{
	OpSignup:         "Your account was created but we could not send the verification email.",
	OpForgotPassword: "We could not send the password reset email.",
}

var internalMessages = map[string]string{
	OpSignup:         "We could not register the account.",
	OpSignin:         "We could not sign you in.",
	OpActivate:       "We could not activate the account.",
	OpForgotPassword: "We could not send the password reset link.",
	OpResetPassword:  "We could not reset the password.",
}

func failureMessage(op string, kind Kind, err error) string {
	switch kind {
	case KindDuplicateAccount:
		return msgDuplicate
	case KindNotFound:
		// Forgot-password answers an unknown email exactly like an internal failure.
		if op == OpForgotPassword {
			return internalMessages[OpForgotPassword]
		}
		return msgNotFound
	case KindInvalidCredentials:
		return msgInvalidCredentials
	case KindInactiveAccount:
		return msgInactive
	case KindMissingToken:
		return msgMissingToken
	case KindInvalidToken:
		return msgInvalidToken
	case KindInvalidInput:
		var verr *ValidationError
		if errors.As(err, &verr) && verr.Message != "" {
			return verr.Message
		}
		return msgInvalidInput
	case KindDelivery:
		if m, ok := deliveryMessages[op]; ok {
			return m
		}
		return msgGeneric
	}
	if m, ok := internalMessages[op]; ok {
		return m
	}
	return msgGeneric
}
