package cache

import "fmt"

func RunStatusKey(requestID string) string {
	return fmt.Sprintf("run:%s", requestID)
}

func AnalysisResultKey(requestID string) string {
	return fmt.Sprintf("analysis:%s", requestID)
}

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:webhook:%s", clientIP)
}

func PipelineLogKey(projectID, pipelineID, jobID int64) string {
	return fmt.Sprintf("joblog:%d:%d:%d", projectID, pipelineID, jobID)
}
