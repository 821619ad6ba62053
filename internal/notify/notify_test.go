package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ---------- Test doubles ----------

type recordingSender struct {
	mu     sync.Mutex
	emails []string
	sms    []string
	failTo map[string]bool
	block  map[string]bool
}

func (s *recordingSender) SendEmail(ctx context.Context, to, _, _ string) error {
	return s.record(ctx, &s.emails, to)
}

func (s *recordingSender) SendSMS(ctx context.Context, to, _ string) error {
	return s.record(ctx, &s.sms, to)
}

func (s *recordingSender) record(ctx context.Context, into *[]string, to string) error {
	if s.block[to] {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	*into = append(*into, to)
	if s.failTo[to] {
		return errors.New("provider rejected " + to)
	}
	return nil
}

type memQueue struct {
	mu    sync.Mutex
	items [][]byte
	err   error
}

// Push fails on a cancelled context, as the Redis client does.
func (q *memQueue) Push(ctx context.Context, payloads ...[]byte) error {
	if q.err != nil {
		return q.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, payloads...)
	return nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ---------- Inline delivery ----------

func TestInlineDelivery_BestEffort(t *testing.T) {
	sender := &recordingSender{failTo: map[string]bool{"bad@example.com": true}}
	d := &InlineDelivery{Email: sender, SMS: sender, Timeout: time.Second, Log: zerolog.Nop()}

	report := d.Deliver(context.Background(), []Message{
		{Channel: ChannelEmail, To: "doc@example.com"},
		{Channel: ChannelEmail, To: "bad@example.com"},
		{Channel: ChannelSMS, To: "+2348000000001"},
		{Channel: ChannelSMS, To: "+2348000000002"},
	})

	if report.Emailed != 1 || report.Smsed != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 1 email, 2 sms, 1 failure", report)
	}
	if len(sender.emails) != 2 {
		t.Errorf("expected both emails attempted, got %v", sender.emails)
	}
}

func TestInlineDelivery_TimeoutDoesNotBlockOthers(t *testing.T) {
	sender := &recordingSender{block: map[string]bool{"slow@example.com": true}}
	d := &InlineDelivery{Email: sender, SMS: sender, Timeout: 50 * time.Millisecond, Log: zerolog.Nop()}

	start := time.Now()
	report := d.Deliver(context.Background(), []Message{
		{Channel: ChannelEmail, To: "slow@example.com"},
		{Channel: ChannelSMS, To: "+2348000000001"},
	})

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("delivery took %s, timeout not applied", elapsed)
	}
	if report.Smsed != 1 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestInlineDelivery_UnconfiguredProviderIsSkipped(t *testing.T) {
	log := LogSender{Log: zerolog.Nop()}
	d := &InlineDelivery{Email: log, SMS: log, Timeout: time.Second, Log: zerolog.Nop()}

	report := d.Deliver(context.Background(), []Message{
		{Channel: ChannelEmail, To: "doc@example.com"},
		{Channel: ChannelSMS, To: "+2348000000001"},
	})

	if report.Emailed != 0 || report.Smsed != 0 || report.Failed != 0 {
		t.Errorf("report = %+v, want nothing counted as sent or failed", report)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
}

// ---------- Queue delivery ----------

func TestQueueDelivery_Enqueues(t *testing.T) {
	q := &memQueue{}
	d := &QueueDelivery{Queue: q, Log: zerolog.Nop()}

	report := d.Deliver(context.Background(), []Message{
		{Channel: ChannelEmail, To: "doc@example.com", AppointmentID: "a-1"},
		{Channel: ChannelSMS, To: "+2348000000001", AppointmentID: "a-1"},
	})

	if report.Emailed != 1 || report.Smsed != 1 {
		t.Errorf("report = %+v", report)
	}
	if q.len() != 2 {
		t.Fatalf("expected 2 queued payloads, got %d", q.len())
	}
	m, err := DecodeMessage(q.items[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.To != "doc@example.com" || m.AppointmentID != "a-1" {
		t.Errorf("unexpected message %+v", m)
	}
}

func TestQueueDelivery_PushFailure(t *testing.T) {
	d := &QueueDelivery{Queue: &memQueue{err: errors.New("redis down")}, Log: zerolog.Nop()}

	report := d.Deliver(context.Background(), []Message{{Channel: ChannelEmail, To: "doc@example.com"}})
	if report.Emailed != 0 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
}

// ---------- Consumer ----------

func encode(t *testing.T, m Message) []byte {
	t.Helper()
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestConsumer_DeliversAndRetries(t *testing.T) {
	sender := &recordingSender{failTo: map[string]bool{"bad@example.com": true}}
	retry, dead := &memQueue{}, &memQueue{}
	c := &Consumer{Retry: retry, Dead: dead, Email: sender, SMS: sender, MaxAttempts: 3, Log: zerolog.Nop()}

	c.Handle(context.Background(), encode(t, Message{Channel: ChannelEmail, To: "doc@example.com"}))
	if retry.len() != 0 || dead.len() != 0 {
		t.Fatal("successful delivery should not be re-queued")
	}

	c.Handle(context.Background(), encode(t, Message{Channel: ChannelEmail, To: "bad@example.com"}))
	if retry.len() != 1 {
		t.Fatalf("expected one retry, got %d", retry.len())
	}
	m, _ := DecodeMessage(retry.items[0])
	if m.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", m.Attempt)
	}
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	sender := &recordingSender{failTo: map[string]bool{"+2348000000009": true}}
	retry, dead := &memQueue{}, &memQueue{}
	c := &Consumer{Retry: retry, Dead: dead, Email: sender, SMS: sender, MaxAttempts: 3, Log: zerolog.Nop()}

	c.Handle(context.Background(), encode(t, Message{Channel: ChannelSMS, To: "+2348000000009", Attempt: 2}))
	if retry.len() != 0 {
		t.Error("exhausted message should not be retried")
	}
	if dead.len() != 1 {
		t.Errorf("expected message parked, got %d", dead.len())
	}
}

func TestConsumer_RequeuesWhenStoppedDuringBackoff(t *testing.T) {
	sender := &recordingSender{failTo: map[string]bool{"bad@example.com": true}}
	retry, dead := &memQueue{}, &memQueue{}
	c := &Consumer{Retry: retry, Dead: dead, Email: sender, SMS: sender, MaxAttempts: 5, Backoff: time.Hour, Log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Handle(ctx, encode(t, Message{Channel: ChannelEmail, To: "bad@example.com"}))
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not return after cancellation")
	}

	if retry.len() != 1 {
		t.Fatalf("retry queue = %d after shutdown, want 1", retry.len())
	}
	if dead.len() != 0 {
		t.Errorf("dead queue = %d, want 0", dead.len())
	}
	m, _ := DecodeMessage(retry.items[0])
	if m.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", m.Attempt)
	}
}

func TestConsumer_ParksAfterCancellation(t *testing.T) {
	sender := &recordingSender{failTo: map[string]bool{"bad@example.com": true}}
	dead := &memQueue{}
	c := &Consumer{Retry: &memQueue{}, Dead: dead, Email: sender, SMS: sender, MaxAttempts: 1, Log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Handle(ctx, encode(t, Message{Channel: ChannelEmail, To: "bad@example.com"}))

	if dead.len() != 1 {
		t.Errorf("dead queue = %d, want 1", dead.len())
	}
}

func TestConsumer_DropsUnconfiguredProvider(t *testing.T) {
	retry, dead := &memQueue{}, &memQueue{}
	log := LogSender{Log: zerolog.Nop()}
	c := &Consumer{Retry: retry, Dead: dead, Email: log, SMS: log, MaxAttempts: 3, Log: zerolog.Nop()}

	c.Handle(context.Background(), encode(t, Message{Channel: ChannelSMS, To: "+2348000000001"}))
	if retry.len() != 0 || dead.len() != 0 {
		t.Errorf("retry=%d dead=%d, want nothing queued", retry.len(), dead.len())
	}
}

func TestConsumer_ParksGarbage(t *testing.T) {
	dead := &memQueue{}
	c := &Consumer{Retry: &memQueue{}, Dead: dead, Log: zerolog.Nop()}

	c.Handle(context.Background(), []byte("{not json"))
	if dead.len() != 1 {
		t.Errorf("expected garbage parked, got %d", dead.len())
	}
}

// ---------- HTTP senders ----------

func TestHTTPEmailSender(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := &HTTPEmailSender{URL: srv.URL, APIKey: "k-123", From: "no-reply@example.com", Client: srv.Client()}
	if err := s.SendEmail(context.Background(), "pat@example.com", "Reminder", "See you soon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer k-123" {
		t.Errorf("authorization = %q", auth)
	}
	if got["to"] != "pat@example.com" || got["subject"] != "Reminder" || got["from"] != "no-reply@example.com" {
		t.Errorf("payload = %v", got)
	}
}

func TestHTTPSMSSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &HTTPSMSSender{URL: srv.URL, Client: srv.Client()}
	if err := s.SendSMS(context.Background(), "+2348000000001", "hi"); err == nil {
		t.Fatal("expected error on 502")
	}
}
