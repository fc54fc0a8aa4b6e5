package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DocumentReference identifies a document in the store. The store assigns
// the id at upload.
type DocumentReference struct {
	ID string `json:"id"`
}

// Ref builds a DocumentReference from an id.
func Ref(id string) DocumentReference {
	return DocumentReference{ID: id}
}

func (r DocumentReference) String() string {
	return r.ID
}

// UnmarshalJSON accepts the id as either a JSON string or a number.
func (r *DocumentReference) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := bytes.TrimSpace(raw.ID)
	if len(id) == 0 || string(id) == "null" {
		return fmt.Errorf("docstore: document reference has no id")
	}
	if id[0] == '"' {
		var s string
		if err := json.Unmarshal(id, &s); err != nil {
			return err
		}
		r.ID = s
	} else {
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("docstore: document id %s is neither a string nor a number", string(id))
		}
		r.ID = n.String()
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("docstore: document reference has an empty id")
	}
	return nil
}

// RecordStream is a fetched document body. The caller owns Body.
type RecordStream struct {
	ContentType string
	// ContentLength is nil when the store did not send a length.
	ContentLength *int64
	Body          *bytes.Buffer
}
