package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestNew_StampsEvent(t *testing.T) {
	e := New(HelpCreated, 1, 2, 3, map[string]interface{}{"k": "v"})
	if e.ID == "" || e.OccurredAt.IsZero() {
		t.Errorf("expected id and time, got %+v", e)
	}
	if e.Type != HelpCreated || e.PersonID != 1 || e.ProviderID != 2 || e.ResourceID != 3 {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("broker down")}
	f := Fanout{ok, bad}

	err := f.Publish(context.Background(), New(LinkRedeemed, 1, 2, 0, nil))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(ok.events) != 1 || len(bad.events) != 1 {
		t.Error("expected both publishers to receive the event")
	}
}

func TestEmit_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	Emit(context.Background(), &recordingPublisher{err: errors.New("boom")}, logger, New(HelpResolved, 1, 2, 3, nil))
	if !strings.Contains(buf.String(), "event delivery failed") {
		t.Errorf("expected warning, got %q", buf.String())
	}
	Emit(context.Background(), nil, logger, New(HelpResolved, 1, 2, 3, nil))
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))
	if err := p.Publish(context.Background(), New(InterestAreaMarked, 7, 8, 9, nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"event_type":"interest_area.marked"`) {
		t.Errorf("unexpected log line %q", buf.String())
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByPerson(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	if err := p.Publish(context.Background(), New(LinkRedeemed, 42, 7, 0, nil)); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "42" {
		t.Errorf("expected key 42, got %q", msg.Key)
	}
	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != LinkRedeemed || got.ProviderID != 7 {
		t.Errorf("unexpected payload %+v", got)
	}

	w.err = errors.New("no leader")
	if err := p.Publish(context.Background(), New(LinkRedeemed, 42, 7, 0, nil)); err == nil {
		t.Error("expected writer error to propagate")
	}
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPublisher(t *testing.T) {
	f := &fakeSQS{}
	p := &SQSPublisher{client: f, queueURL: "https://sqs.local/q"}
	if err := p.Publish(context.Background(), New(HelpCreated, 1, 2, 3, nil)); err != nil {
		t.Fatal(err)
	}
	if len(f.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(f.inputs))
	}
	in := f.inputs[0]
	if *in.QueueUrl != "https://sqs.local/q" {
		t.Errorf("unexpected queue url %q", *in.QueueUrl)
	}
	if *in.MessageAttributes["event_type"].StringValue != HelpCreated {
		t.Error("expected event_type attribute")
	}
	if !strings.Contains(*in.MessageBody, `"type":"help.created"`) {
		t.Errorf("unexpected body %q", *in.MessageBody)
	}
}
