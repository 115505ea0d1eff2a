package mq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bryanwahyu/automaton-risk/internal/application/scans"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

type ackRecorder struct {
	acks, nacks int
	requeue     bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}
func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func TestDecode(t *testing.T) {
	cases := []struct {
		body    string
		target  string
		wantErr bool
	}{
		{`{"target":"http://example.com"}`, "http://example.com", false},
		{"  http://plain.example.com\n", "http://plain.example.com", false},
		{`{"target":"  "}`, "", true},
		{`{"target":`, "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		req, err := Decode([]byte(tc.body))
		if (err != nil) != tc.wantErr {
			t.Fatalf("Decode(%q) err = %v", tc.body, err)
		}
		if req.Target != tc.target {
			t.Fatalf("Decode(%q) target = %q", tc.body, req.Target)
		}
	}
}

func TestHandleAcksAfterRun(t *testing.T) {
	var got []string
	c := &Consumer{
		Handler: func(_ context.Context, req scans.Request) error {
			got = append(got, req.Target)
			return errors.New("store down")
		},
	}
	ack := &ackRecorder{}
	c.handle(context.Background(), observability.DiscardLogger(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{"target":"http://x"}`)})
	if len(got) != 1 || got[0] != "http://x" {
		t.Fatalf("handler calls = %v", got)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestHandleDropsMalformed(t *testing.T) {
	called := false
	c := &Consumer{Handler: func(context.Context, scans.Request) error { called = true; return nil }}
	ack := &ackRecorder{}
	c.handle(context.Background(), observability.DiscardLogger(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{}`)})
	if called || ack.nacks != 1 || ack.requeue {
		t.Fatalf("malformed message must be nacked without requeue: called=%v %+v", called, ack)
	}
}

func TestHandleDropsRejectedTarget(t *testing.T) {
	called := false
	c := &Consumer{
		Handler: func(context.Context, scans.Request) error { called = true; return nil },
		Validate: func(target string) error {
			if target == "http://127.0.0.1:8080" {
				return errors.New("private or internal addresses are not allowed")
			}
			return nil
		},
	}
	ack := &ackRecorder{}
	c.handle(context.Background(), observability.DiscardLogger(), amqp.Delivery{Acknowledger: ack, Body: []byte("http://127.0.0.1:8080")})
	if called || ack.nacks != 1 || ack.requeue || ack.acks != 0 {
		t.Fatalf("rejected target must be nacked without running: called=%v %+v", called, ack)
	}

	c.handle(context.Background(), observability.DiscardLogger(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{"target":"http://example.com"}`)})
	if !called || ack.acks != 1 {
		t.Fatalf("valid target must run and ack: called=%v %+v", called, ack)
	}
}
