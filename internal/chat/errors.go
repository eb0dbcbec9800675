package chat

import "errors"

// ErrSendFailed covers transport errors and non-2xx responses from the
// WhatsApp Cloud API when delivering an outbound message.
var ErrSendFailed = errors.New("chat: send failed")
