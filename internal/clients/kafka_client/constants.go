package kafka_client

import "time"

const (
	KAFKA_TOPIC_ANALYSIS_RESULTS = "analysis-results" // one message per completed analysis
)

const (
	MAX_RETRIES   = 3
	RETRY_DELAY   = 200 * time.Millisecond
	FLUSH_TIMEOUT = 5000 // ms
)
