package queue

import "fmt"

const (
	pendingKey    = "finsight:dispatch:pending"
	processingKey = "finsight:dispatch:processing"
	leasesKey     = "finsight:dispatch:leases"
)

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("finsight:ratelimit:%s", clientIP)
}
