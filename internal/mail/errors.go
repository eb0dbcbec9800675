package mail

import "errors"

// ErrSendFailed covers connection, auth and submission failures of the
// configured outbound transport.
var ErrSendFailed = errors.New("mail: send failed")
