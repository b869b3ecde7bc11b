package federation

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/arenh/gomphos/util"
)

// DeliveryResult classifies the outcome of one delivery attempt. The
// outcome is recorded and logged but never surfaced to the caller that
// triggered the activity: local operations must not fail on remote
// delivery.
type DeliveryResult int

const (
	Delivered DeliveryResult = iota
	Disabled
	Timeout
	Rejected
	Unreachable
)

func (r DeliveryResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case Disabled:
		return "disabled"
	case Timeout:
		return "timeout"
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Dispatcher pushes activities to the configured peer inboxes. One
// synchronous attempt per peer, no retries.
type Dispatcher struct {
	client  *http.Client
	enabled bool
	inboxes []string
}

func NewDispatcher(conf *util.AppConfig) *Dispatcher {
	return &Dispatcher{
		client:  &http.Client{Timeout: 5 * time.Second},
		enabled: conf.Conf.Federate,
		inboxes: conf.Conf.PeerInboxes,
	}
}

// Deliver attempts a single best-effort POST of the activity to every
// configured peer inbox. The aggregate is Delivered only when every
// peer acknowledged with 200 or 202; otherwise the first failure class
// is returned.
func (d *Dispatcher) Deliver(activity Activity) DeliveryResult {
	if !d.enabled || len(d.inboxes) == 0 {
		return Disabled
	}

	payload, err := json.Marshal(activity)
	if err != nil {
		log.Printf("Delivery: Failed to marshal %s activity: %v", activity.Type, err)
		return Rejected
	}

	overall := Delivered
	for _, inbox := range d.inboxes {
		result := d.deliverTo(inbox, payload)
		if result != Delivered {
			log.Printf("Delivery: %s to %s: %s", activity.Type, inbox, result)
			if overall == Delivered {
				overall = result
			}
		}
	}
	return overall
}

func (d *Dispatcher) deliverTo(inbox string, payload []byte) DeliveryResult {
	resp, err := d.client.Post(inbox, "application/json", bytes.NewReader(payload))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Timeout
		}
		return Unreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		return Delivered
	}
	return Rejected
}
