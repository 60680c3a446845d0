package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a model reply into v. Code fences and any text around the outermost
// JSON object are ignored.
func DecodeJSON(response string, v interface{}) error {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return fmt.Errorf("no JSON object in model response")
	}

	return json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), v)
}
