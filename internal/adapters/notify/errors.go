package notify

import "errors"

var (
	ErrNotConnected   = errors.New("mqtt not connected")
	ErrPublishTimeout = errors.New("mqtt publish timeout")
	ErrConnectTimeout = errors.New("mqtt connection timeout")
)
