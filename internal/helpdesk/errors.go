package helpdesk

import "errors"

// ErrAPIFailure covers transport errors and non-2xx responses from the
// helpdesk REST API. Callers treat it as a degradation signal rather than
// a hard failure wherever the email intake path can still carry the message.
var ErrAPIFailure = errors.New("helpdesk: api request failed")
