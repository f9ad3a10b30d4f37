package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/markdave123-py/Cadence/internal/core"
)

// Envelope is the wire form of a dispatched job on every transport.
type Envelope struct {
	Job        string    `json:"job"`
	SourceID   string    `json:"sourceId"`
	ClientID   string    `json:"clientId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func encode(jobName string, job core.ScrapeJob) ([]byte, error) {
	return json.Marshal(Envelope{
		Job:        jobName,
		SourceID:   job.SourceID,
		ClientID:   job.ClientID,
		EnqueuedAt: time.Now().UTC(),
	})
}

// Decode parses an envelope and checks it names a job.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode job envelope: %w", err)
	}
	if env.SourceID == "" {
		return Envelope{}, core.Validationf("job envelope has no sourceId")
	}
	return env, nil
}

// ScrapeJob returns the command carried by the envelope.
func (e Envelope) ScrapeJob() core.ScrapeJob {
	return core.ScrapeJob{SourceID: e.SourceID, ClientID: e.ClientID}
}
