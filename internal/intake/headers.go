package intake

import "strings"

// Mail headers carried by pipeline notification emails.
const (
	headerProjectID      = "x-gitlab-project-id"
	headerProjectName    = "x-gitlab-project"
	headerProjectPath    = "x-gitlab-project-path"
	headerPipelineID     = "x-gitlab-pipeline-id"
	headerPipelineRef    = "x-gitlab-pipeline-ref"
	headerPipelineStatus = "x-gitlab-pipeline-status"
	headerPipelineURL    = "x-gitlab-pipeline-url"
	headerProjectURL     = "x-gitlab-project-url"
	headerCommitSHA      = "x-gitlab-commit-sha"
)

// headerValue is the single accessor for mail headers: case-insensitive key
// lookup, first value unwrapped, surrounding whitespace trimmed. All header
// reads go through here so multi-valued quirks are handled exactly once.
func headerValue(headers map[string][]string, key string) (string, bool) {
	for k, vals := range headers {
		if !strings.EqualFold(k, key) {
			continue
		}
		if len(vals) == 0 {
			return "", false
		}
		v := strings.TrimSpace(vals[0])
		if v == "" {
			return "", false
		}
		return v, true
	}
	return "", false
}
