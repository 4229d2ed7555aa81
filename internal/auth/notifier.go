// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/samber/oops"
)

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier delivers messages. A nil error means the transport accepted the message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Mail subjects.
const (
	SubjectActivation = "Account Activation Link"
	SubjectReset      = "Reset Password Link"
)

var linkTemplate = template.Must(template.New("link").Parse(
	`<h2>{{.Heading}}</h2>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>This link expires in {{.Expires}}.</p>
`))

type linkData struct {
	Heading string
	Link    string
	Expires string
}

// activationMessage renders the mail sent after signup.
func activationMessage(to, baseURL, token, expires string) (Message, error) {
	return renderLink(to, SubjectActivation, "Please click the link below to activate your account", baseURL, token, expires)
}

// resetMessage renders the mail sent by forgot-password.
func resetMessage(to, baseURL, token, expires string) (Message, error) {
	return renderLink(to, SubjectReset, "Please click the link below to reset your password", baseURL, token, expires)
}

func renderLink(to, subject, heading, baseURL, token, expires string) (Message, error) {
	var buf bytes.Buffer
	err := linkTemplate.Execute(&buf, linkData{
		Heading: heading,
		Link:    strings.TrimRight(baseURL, "/") + "/" + token,
		Expires: expires,
	})
	if err != nil {
		return Message{}, oops.With("subject", subject).Wrap(err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}
