package progress

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/courier/internal/worker"
)

func TestBroker_PublishToSubscribers(t *testing.T) {
	b := NewBroker(nil)

	run1, cancel1 := b.Subscribe("run-1")
	defer cancel1()
	run2, cancel2 := b.Subscribe("run-2")
	defer cancel2()

	b.Publish(worker.Event{RunID: "run-1", Status: worker.EventSent, Email: "a@x.com"})

	select {
	case ev := <-run1:
		assert.Equal(t, "a@x.com", ev.Email)
	default:
		t.Fatal("run-1 subscriber got nothing")
	}
	assert.Empty(t, run2)
}

func TestBroker_CancelRemovesSubscriber(t *testing.T) {
	b := NewBroker(nil)

	_, cancel := b.Subscribe("run-1")
	assert.Equal(t, 1, b.Subscribers("run-1"))

	cancel()
	cancel()
	assert.Equal(t, 0, b.Subscribers("run-1"))
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(nil)
	_, cancel := b.Subscribe("run-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(worker.Event{RunID: "run-1", Status: worker.EventQueued})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBroker_Stream(t *testing.T) {
	b := NewBroker(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.Stream(w, r, "run-7")
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return b.Subscribers("run-7") == 1 }, time.Second, 10*time.Millisecond)

	b.Publish(worker.Event{
		RunID:       "run-7",
		Status:      worker.EventFailed,
		Email:       "b@x.com",
		SentEmails:  1,
		TotalEmails: 2,
		Message:     "Failed to send email to b@x.com : auth",
	})

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var ev worker.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, worker.EventFailed, ev.Status)
	assert.Equal(t, "b@x.com", ev.Email)
	assert.Equal(t, 2, ev.TotalEmails)
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSSink_Publish(t *testing.T) {
	pub := &fakePublisher{}
	sink := newNATSSink(pub, "", slog.Default())

	sink.Publish(worker.Event{RunID: "abc", Status: worker.EventSent, Email: "a@x.com", Percentage: 50})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "courier.progress.abc", pub.subjects[0])
	assert.JSONEq(t,
		`{"runId":"abc","status":"Sent","email":"a@x.com","sentEmails":0,"totalEmails":0,"percentage":50,"message":"","estimatedTimeRemaining":""}`,
		string(pub.payloads[0]))
}

func TestNATSSink_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	sink := newNATSSink(pub, "events", slog.Default())

	assert.NotPanics(t, func() { sink.Publish(worker.Event{RunID: "abc"}) })
	assert.Equal(t, "events.abc", sink.Subject("abc"))
	assert.NoError(t, sink.Close())
}

func TestMulti_Publish(t *testing.T) {
	var got []string
	m := Multi{
		worker.SinkFunc(func(ev worker.Event) { got = append(got, "first:"+ev.Email) }),
		nil,
		worker.SinkFunc(func(ev worker.Event) { got = append(got, "second:"+ev.Email) }),
	}

	m.Publish(worker.Event{Email: "a@x.com"})

	assert.Equal(t, []string{"first:a@x.com", "second:a@x.com"}, got)
}
