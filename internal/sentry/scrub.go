// Package sentry wires error reporting to Sentry and scrubs credentials
// from events so tokens and passwords never leave the process.
package sentry

import (
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
)

const filtered = "[Filtered]"

// sensitiveHeaders are HTTP headers that should be redacted from Sentry events.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// sensitiveKeys are field names that may contain sensitive data in tags,
// breadcrumb metadata, extra data, or query strings. Matched case-insensitively.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwordhash":  true,
	"token":         true,
	"secret":        true,
	"jwt":           true,
	"authorization": true,
	"cookie":        true,
	"payload":       true,
}

func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// ScrubEvent removes sensitive data from a Sentry event before it is sent.
// It redacts sensitive headers and query parameters, strips request bodies,
// and scrubs tags, extras and breadcrumbs.
func ScrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil {
		return nil
	}

	if event.Request != nil {
		for header := range event.Request.Headers {
			if sensitiveHeaders[strings.ToLower(header)] {
				event.Request.Headers[header] = filtered
			}
		}
		// Bodies carry credentials on /auth/token.
		event.Request.Data = ""
		event.Request.Cookies = ""
		event.Request.QueryString = scrubQuery(event.Request.QueryString)
		event.Request.URL = scrubURL(event.Request.URL)
	}

	for key := range event.Tags {
		if isSensitive(key) {
			event.Tags[key] = filtered
		}
	}

	for key := range event.Extra {
		if isSensitive(key) {
			event.Extra[key] = filtered
		}
	}

	for i := range event.Breadcrumbs {
		for key := range event.Breadcrumbs[i].Data {
			if isSensitive(key) {
				event.Breadcrumbs[i].Data[key] = filtered
			}
		}
	}

	return event
}

// ScrubTransaction applies the same scrubbing logic to transaction events.
func ScrubTransaction(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	return ScrubEvent(event, hint)
}

// scrubQuery redacts sensitive parameters such as ?token= on the websocket
// upgrade URL. An unparseable query is dropped entirely.
func scrubQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for key := range values {
		if isSensitive(key) {
			values[key] = []string{filtered}
		}
	}
	return values.Encode()
}

func scrubURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = scrubQuery(u.RawQuery)
	return u.String()
}
