// internal/transport/wire.go
package transport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // screenshot formats the server may send
	_ "image/png"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StartOptions are forwarded verbatim to the browser and browser-context
// constructors on the server.
type StartOptions struct {
	BrowserKwargs map[string]interface{} `json:"browser_kwargs,omitempty"`
	ContextKwargs map[string]interface{} `json:"context_kwargs,omitempty"`
}

func (o StartOptions) empty() bool {
	return len(o.BrowserKwargs) == 0 && len(o.ContextKwargs) == 0
}

// errorBody is the JSON shape of a non-200 response.
type errorBody struct {
	Message string `json:"message"`
}

// observationKeys must all be present in an /observation response.
var observationKeys = []string{"raw_html", "screenshot", "metadata", "current_url"}

// decodeSessionID accepts the session id as plain text or as a JSON string.
func decodeSessionID(body []byte) (string, error) {
	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, `"`) {
		var id string
		if err := json.UnmarshalFromString(raw, &id); err != nil {
			return "", fmt.Errorf("malformed session id %q: %w", raw, err)
		}
		raw = strings.TrimSpace(id)
	}
	if raw == "" {
		return "", fmt.Errorf("server returned an empty session id")
	}
	return raw, nil
}

// decodeServerMessage extracts the message of an error response, falling back
// to the raw body when it is not the expected JSON.
func decodeServerMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	return strings.TrimSpace(string(body))
}

// decodeObservation validates and decodes an /observation payload.
func decodeObservation(body []byte) (*schemas.BrowserObservation, error) {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("observation is not a JSON object: %w", err)
	}
	var missing []string
	for _, key := range observationKeys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("observation is missing required keys: %s", strings.Join(missing, ", "))
	}

	obs := &schemas.BrowserObservation{Metadata: map[string]*schemas.NodeMetadata{}}
	if err := json.Unmarshal(fields["raw_html"], &obs.RawHTML); err != nil {
		return nil, fmt.Errorf("decoding raw_html: %w", err)
	}
	if err := json.Unmarshal(fields["current_url"], &obs.CurrentURL); err != nil {
		return nil, fmt.Errorf("decoding current_url: %w", err)
	}
	if err := json.Unmarshal(fields["metadata"], &obs.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if obs.Metadata == nil {
		obs.Metadata = map[string]*schemas.NodeMetadata{}
	}

	var screenshot string
	if err := json.Unmarshal(fields["screenshot"], &screenshot); err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	img, err := decodeScreenshot(screenshot)
	if err != nil {
		return nil, err
	}
	obs.Screenshot = img
	return obs, nil
}

// decodeScreenshot turns a base64 image, optionally a data URL, into an image.
// An empty string yields a nil image.
func decodeScreenshot(encoded string) (image.Image, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	if strings.HasPrefix(encoded, "data:") {
		if comma := strings.IndexByte(encoded, ','); comma >= 0 {
			encoded = encoded[comma+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("screenshot is not valid base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("screenshot is not a decodable image: %w", err)
	}
	return img, nil
}
