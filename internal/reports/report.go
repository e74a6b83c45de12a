// Package reports provides append-only storage of extraction results keyed
// by an anonymous client identifier, and the history query over them.
package reports

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metadata carries the optional patient context and upload details stored
// alongside a report. Age, gender, and conditions are null when the client
// did not supply them.
type Metadata struct {
	Age        *string `json:"age"`
	Gender     *string `json:"gender"`
	Conditions *string `json:"conditions"`
	FileName   string  `json:"fileName"`
	FileSize   int64   `json:"fileSize"`
}

// StoredReport is one persisted extraction result. Records are immutable
// after creation; no update or delete operation is exposed.
type StoredReport struct {
	ID        uuid.UUID       `json:"id"`
	Results   json.RawMessage `json:"results"`
	Metadata  Metadata        `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}
