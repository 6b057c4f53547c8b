package saga

import "errors"

// ErrPoison marks a message whose payload can never be processed (malformed
// JSON, missing correlation id). Handlers wrap decode failures with it; the
// executor logs and acknowledges such messages instead of letting the broker
// redeliver them forever.
var ErrPoison = errors.New("saga: poison message")
