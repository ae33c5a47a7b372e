package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/audit"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/internal/realtime"
	testutil "walkin-queue-coordinator/internal/testing"
	"walkin-queue-coordinator/pkg/circuit"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/retry"
)

type dispatcherFixture struct {
	d        *Dispatcher
	repo     *testutil.MemRepo
	buffer   *realtime.Buffer
	breakers Breakers
	smsSrv   *httptest.Server
}

func newDispatcherFixture(t *testing.T, smsHandler http.HandlerFunc) *dispatcherFixture {
	t.Helper()
	repo := testutil.NewMemRepo()
	clock := clockwork.NewRealClock()
	log := logging.NewNop()

	phone := "9876543210"
	repo.Users["u1"] = &models.User{ID: "u1", Name: "Asha", Phone: &phone, Role: models.RoleCustomer}

	buffer := realtime.NewBuffer(100, time.Hour, clock)
	bus := realtime.NewBus(buffer, nil, clock, log)

	var smsSrv *httptest.Server
	smsCfg := SMSConfig{CountryCode: "+91"}
	if smsHandler != nil {
		smsSrv = httptest.NewServer(smsHandler)
		t.Cleanup(smsSrv.Close)
		smsCfg.Endpoint = smsSrv.URL
	}
	sms := NewSMSSender(smsCfg, log)
	push := NewWebPushSender(WebPushConfig{}, repo, log) // disabled

	renderer, err := NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	breakers := Breakers{
		Realtime: circuit.New(circuit.Config{Name: "rt_" + t.Name()}, clock, log),
		SMS:      circuit.New(circuit.Config{Name: "sms_" + t.Name()}, clock, log),
		Push:     circuit.New(circuit.Config{Name: "push_" + t.Name()}, clock, log),
	}
	pol := retry.Policy{MaxAttempts: 1}

	d := NewDispatcher(renderer, bus, sms, push, repo, audit.NewWriter(repo, clock, log), breakers, pol, clock, log)
	return &dispatcherFixture{d: d, repo: repo, buffer: buffer, breakers: breakers, smsSrv: smsSrv}
}

func baseNotification() Notification {
	return Notification{
		QueueID: "q1", UserID: "u1", VenueID: "v1",
		Kind: models.KindQueueNotification,
		Data: TemplateData{VenueName: "Chop Shop", EstimatedMinutes: 10},
	}
}

func TestNotifySucceedsWhenAnyChannelDelivers(t *testing.T) {
	fx := newDispatcherFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ok, err := fx.d.Notify(context.Background(), baseNotification())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !ok {
		t.Fatalf("expected success via SMS")
	}

	if len(fx.repo.NotifLogs) != 1 {
		t.Fatalf("expected 1 notification log, got %d", len(fx.repo.NotifLogs))
	}
	log := fx.repo.NotifLogs[0]
	if !log.Results[models.ChannelSMS].Sent {
		t.Fatalf("sms result should be sent: %+v", log.Results)
	}
	if log.Results[models.ChannelRealtime].Sent {
		t.Fatalf("realtime should have failed (no connection): %+v", log.Results)
	}
	// the frame must be waiting for the user to reconnect
	if fx.buffer.Len() != 1 {
		t.Fatalf("expected 1 buffered frame, got %d", fx.buffer.Len())
	}
}

func TestNotifyAllChannelsFail(t *testing.T) {
	fx := newDispatcherFixture(t, nil) // sms disabled, push disabled, nobody connected

	ok, err := fx.d.Notify(context.Background(), baseNotification())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if ok {
		t.Fatalf("expected overall failure")
	}
	if len(fx.repo.NotifLogs) != 1 {
		t.Fatalf("log must be written even on failure, got %d", len(fx.repo.NotifLogs))
	}
	for ch, res := range fx.repo.NotifLogs[0].Results {
		if res.Sent {
			t.Fatalf("channel %s unexpectedly sent", ch)
		}
		if res.Error == "" {
			t.Fatalf("channel %s missing error detail", ch)
		}
	}
}

func TestNotifyOfflineUserKeepsBufferingFrames(t *testing.T) {
	fx := newDispatcherFixture(t, nil) // nobody connected

	// well past the realtime breaker's failure threshold
	for i := 0; i < 12; i++ {
		n := baseNotification()
		n.QueueID = fmt.Sprintf("q%d", i)
		if _, err := fx.d.Notify(context.Background(), n); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}

	if got := fx.buffer.Len(); got != 12 {
		t.Fatalf("buffered frames = %d, want 12", got)
	}
	if st := fx.breakers.Realtime.State(); st != circuit.Closed {
		t.Fatalf("realtime breaker state = %v, want Closed; offline users are not bus faults", st)
	}
	// each dispatch still records the channel miss
	last := fx.repo.NotifLogs[len(fx.repo.NotifLogs)-1]
	res := last.Results[models.ChannelRealtime]
	if res.Sent || res.Error == "" {
		t.Fatalf("unexpected realtime result: %+v", res)
	}
}

func TestNotifyGatewayErrorRecorded(t *testing.T) {
	fx := newDispatcherFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	ok, err := fx.d.Notify(context.Background(), baseNotification())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if ok {
		t.Fatalf("expected failure with 502 gateway")
	}
	res := fx.repo.NotifLogs[0].Results[models.ChannelSMS]
	if res.Sent || res.Error == "" {
		t.Fatalf("unexpected sms result: %+v", res)
	}
}

func TestNotifyRenderErrorPropagates(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	n := baseNotification()
	n.Kind = models.NotificationKind("bogus")
	if _, err := fx.d.Notify(context.Background(), n); err == nil {
		t.Fatalf("expected render error")
	}
	if len(fx.repo.NotifLogs) != 0 {
		t.Fatalf("no log expected when rendering fails")
	}
}
