package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"evmbridge/integrations/audit"
)

// AuditJSONL builds a JSON Lines export of the supplied audit records and
// returns the serialised payload alongside a checksum.
func AuditJSONL(records []audit.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			return nil, "", err
		}
		payload := map[string]interface{}{
			"sequence":   rec.Sequence,
			"id":         rec.ID.String(),
			"type":       evt.Type,
			"attributes": evt.Attributes,
			"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
