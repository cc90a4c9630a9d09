package clients

import "time"

const (
	MAX_RETRIES     = 3
	INITIAL_BACKOFF = 200 * time.Millisecond
	MAX_BACKOFF     = 2 * time.Second
	USER_AGENT      = "sentiment-aura-client/1.0 (+https://github.com/spacesedan/sentiment-aura)"
)
