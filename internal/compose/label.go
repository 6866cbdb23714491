package compose

import "strings"

// Label keys Docker Compose sets on every container it creates.
const (
	// LabelService holds the Compose service name of the container.
	LabelService = "com.docker.compose.service"

	// LabelProject holds the Compose project name of the container.
	LabelProject = "com.docker.compose.project"
)

// ParseLabelString parses the comma-separated "key=value" label list that
// `docker ps --format '{{json .}}'` prints in its "Labels" field:
//
//	com.docker.compose.project=shop,com.docker.compose.service=db
//
// Tokens without "=" become labels with an empty value. A label value that
// itself contains a comma is ambiguous in this format and gets split into
// extra tokens; the com.docker.compose.service value never contains one.
func ParseLabelString(s string) map[string]string {
	labels := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return labels
	}
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		k, v, _ := strings.Cut(token, "=")
		labels[k] = v
	}
	return labels
}
