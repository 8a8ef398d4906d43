package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/subscribr/web/internal/models"
)

// Event kinds emitted by the backend.
const (
	KindUploadComplete  = "video-upload-complete"
	KindSubscribedVideo = "new-subscribed-video-uploaded"
)

// VideoPayload is the JSON body of both event kinds.
type VideoPayload struct {
	Name             string `json:"name"`
	UploaderUsername string `json:"uploaderUsername"`
}

// Notify turns an event into a success notification. Unknown kinds report false.
// Payloads that are not a JSON object naming a video are shown verbatim, which
// is what the first backend iteration sent.
func Notify(ev Event, now time.Time) (models.Notification, bool) {
	if ev.Type != KindUploadComplete && ev.Type != KindSubscribedVideo {
		return models.Notification{}, false
	}

	raw := strings.TrimSpace(ev.Data)
	var payload VideoPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.Name == "" {
		if raw == "" {
			return models.Notification{}, false
		}
		return models.Notification{Message: raw, Severity: models.SeveritySuccess, CreatedAt: now}, true
	}

	var message string
	switch {
	case ev.Type == KindUploadComplete:
		message = fmt.Sprintf("Your video: %s has finished uploading.", payload.Name)
	case payload.UploaderUsername == "":
		message = fmt.Sprintf("New video: %s uploaded", payload.Name)
	default:
		message = fmt.Sprintf("New video: %s uploaded by %s", payload.Name, payload.UploaderUsername)
	}

	return models.Notification{Message: message, Severity: models.SeveritySuccess, CreatedAt: now}, true
}
