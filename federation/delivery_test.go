package federation

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arenh/gomphos/util"
)

func testDispatcher(inboxes ...string) *Dispatcher {
	return &Dispatcher{
		client:  &http.Client{Timeout: 500 * time.Millisecond},
		enabled: true,
		inboxes: inboxes,
	}
}

func TestDeliverDisabled(t *testing.T) {
	conf := &util.AppConfig{}
	conf.Conf.Federate = false
	conf.Conf.PeerInboxes = []string{"http://peer/inbox"}

	d := NewDispatcher(conf)
	if got := d.Deliver(BuildFollow("a", "b")); got != Disabled {
		t.Errorf("expected Disabled, got %s", got)
	}
}

func TestDeliverNoPeers(t *testing.T) {
	conf := &util.AppConfig{}
	conf.Conf.Federate = true

	d := NewDispatcher(conf)
	if got := d.Deliver(BuildFollow("a", "b")); got != Disabled {
		t.Errorf("expected Disabled, got %s", got)
	}
}

func TestDeliverSuccess(t *testing.T) {
	var received Activity
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("peer received invalid json: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := testDispatcher(server.URL)
	activity := BuildFollow("http://localhost:8080/users/alice", "http://peer/users/carol")
	if got := d.Deliver(activity); got != Delivered {
		t.Fatalf("expected Delivered, got %s", got)
	}
	if received.Type != TypeFollow {
		t.Errorf("peer saw type %s", received.Type)
	}
	if received.Actor != "http://localhost:8080/users/alice" {
		t.Errorf("peer saw actor %s", received.Actor)
	}
}

func TestDeliverAllPeersMustAck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	d := testDispatcher(ok.URL, failing.URL)
	if got := d.Deliver(BuildFollow("a", "b")); got != Rejected {
		t.Errorf("expected Rejected, got %s", got)
	}
}

func TestDeliverRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := testDispatcher(server.URL)
	if got := d.Deliver(BuildFollow("a", "b")); got != Rejected {
		t.Errorf("expected Rejected, got %s", got)
	}
}

func TestDeliverUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	d := testDispatcher(server.URL)
	if got := d.Deliver(BuildFollow("a", "b")); got != Unreachable {
		t.Errorf("expected Unreachable, got %s", got)
	}
}

func TestDeliverTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	d := testDispatcher(server.URL)
	if got := d.Deliver(BuildFollow("a", "b")); got != Timeout {
		t.Errorf("expected Timeout, got %s", got)
	}
}

func TestDeliveryResultString(t *testing.T) {
	cases := map[DeliveryResult]string{
		Delivered:   "delivered",
		Disabled:    "disabled",
		Timeout:     "timeout",
		Rejected:    "rejected",
		Unreachable: "unreachable",
	}
	for result, want := range cases {
		if result.String() != want {
			t.Errorf("expected %s, got %s", want, result.String())
		}
	}
}
