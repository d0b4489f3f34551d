package httpapi

import "time"

const apiVersion = "1.0"

// envelope is the wire shape every response uses, success or failure,
// matching spec.md §6.
type envelope struct {
	Success  bool          `json:"success"`
	Data     interface{}   `json:"data,omitempty"`
	Error    *envelopeErr  `json:"error,omitempty"`
	Metadata envelopeMeta  `json:"metadata"`
}

type envelopeErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelopeMeta struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func newMetadata(now time.Time) envelopeMeta {
	return envelopeMeta{Timestamp: now.UTC().Format(time.RFC3339), Version: apiVersion}
}

func success(data interface{}, now time.Time) envelope {
	return envelope{Success: true, Data: data, Metadata: newMetadata(now)}
}
