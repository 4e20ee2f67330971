// internal/websocket/utils.go
package websocket

import (
	"encoding/json"
	"fmt"
)

// DecodeData converts a message's generic data payload into target.
func DecodeData(data interface{}, target interface{}) error {
	if data == nil {
		return fmt.Errorf("message has no data")
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}
