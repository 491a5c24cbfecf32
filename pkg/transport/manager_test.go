package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/infrastructure/eventbus"
)

// fakeSession drives the lifecycle callbacks on demand.
type fakeSession struct {
	mu       sync.Mutex
	events   SessionEvents
	connects int
	sent     []string
	buttons  []string
	logouts  int
}

func (s *fakeSession) Connect(ctx context.Context, events SessionEvents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.connects++
	return nil
}

func (s *fakeSession) SendText(ctx context.Context, toJID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, toJID+"|"+text)
	return nil
}

func (s *fakeSession) SendButtons(ctx context.Context, toJID, text string, buttons []Button, opts SendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons = append(s.buttons, toJID)
	return nil
}

func (s *fakeSession) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	if s.events.OnDisconnected != nil {
		go s.events.OnDisconnected(true)
	}
	return nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) fire(f func(SessionEvents)) {
	s.mu.Lock()
	events := s.events
	s.mu.Unlock()
	f(events)
}

func (s *fakeSession) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func newTestManager(t *testing.T) (*Manager, *fakeSession, context.CancelFunc) {
	t.Helper()
	session := &fakeSession{}
	manager := NewManager(session, eventbus.New(), Options{
		CountryCode:    "62",
		ReconnectDelay: 10 * time.Millisecond,
		MaxReconnects:  3,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)
	waitFor(t, func() bool { return session.connectCount() == 1 })
	return manager, session, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestManagerPairingFlow(t *testing.T) {
	manager, session, cancel := newTestManager(t)
	defer cancel()

	if got := manager.GetStatus().State; got != domain.StateDisconnected {
		t.Errorf("initial state = %v, want %v", got, domain.StateDisconnected)
	}

	session.fire(func(e SessionEvents) { e.OnQR("pairing-challenge") })
	waitFor(t, func() bool { return manager.GetStatus().State == domain.StateAwaitingPairing })

	png, ok := manager.QRImage()
	if !ok || png == "" {
		t.Fatal("QR image not available while awaiting pairing")
	}

	session.fire(func(e SessionEvents) { e.OnConnected("628111") })
	waitFor(t, func() bool { return manager.GetStatus().State == domain.StateConnected })

	status := manager.GetStatus()
	if status.Identity != "628111" {
		t.Errorf("Identity = %q, want %q", status.Identity, "628111")
	}
	if _, ok := manager.QRImage(); ok {
		t.Error("QR payload not cleared on connect")
	}
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	manager, session, cancel := newTestManager(t)
	defer cancel()

	session.fire(func(e SessionEvents) { e.OnConnected("628111") })
	waitFor(t, func() bool { return manager.GetStatus().State == domain.StateConnected })

	session.fire(func(e SessionEvents) { e.OnDisconnected(false) })
	waitFor(t, func() bool { return session.connectCount() >= 2 })
}

func TestManagerLogoutIsTerminalUntilRestart(t *testing.T) {
	manager, session, cancel := newTestManager(t)
	defer cancel()

	session.fire(func(e SessionEvents) { e.OnConnected("628111") })
	waitFor(t, func() bool { return manager.GetStatus().State == domain.StateConnected })

	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	waitFor(t, func() bool { return manager.GetStatus().State == domain.StateLoggedOut })

	// No automatic reconnect while logged out.
	time.Sleep(50 * time.Millisecond)
	if session.connectCount() != 1 {
		t.Errorf("connects = %d, want 1 while logged out", session.connectCount())
	}

	if err := manager.SendText(context.Background(), "0812", "x"); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("SendText err = %v, want %v", err, ErrLoggedOut)
	}

	manager.Restart()
	waitFor(t, func() bool { return session.connectCount() == 2 })
}

func TestManagerSendRequiresConnected(t *testing.T) {
	manager, session, cancel := newTestManager(t)
	defer cancel()

	err := manager.SendText(context.Background(), "081234567890", "halo")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendText err = %v, want %v", err, ErrNotConnected)
	}

	session.fire(func(e SessionEvents) { e.OnConnected("628111") })
	waitFor(t, func() bool { return manager.GetStatus().State == domain.StateConnected })

	if err := manager.SendText(context.Background(), "081234567890", "halo"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.sent[0] != "6281234567890@s.whatsapp.net|halo" {
		t.Errorf("sent = %q, want normalized JID form", session.sent[0])
	}
}

func TestManagerPublishesMessageReceived(t *testing.T) {
	session := &fakeSession{}
	bus := eventbus.New()

	var mu sync.Mutex
	var received []domain.Event
	bus.Subscribe(domain.EventMessageReceived, func(e domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	})

	manager := NewManager(session, bus, Options{ReconnectDelay: 10 * time.Millisecond})
	manager.SetBatchHandler(func(ctx context.Context, batch []Message) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Start(ctx)
	waitFor(t, func() bool { return session.connectCount() == 1 })

	session.fire(func(e SessionEvents) {
		e.OnMessages([]Message{
			{ID: "m1", From: "628111@s.whatsapp.net", Kind: "conversation", Text: "halo", Timestamp: time.Now()},
			{ID: "m2", From: "628222@s.whatsapp.net", Kind: "imageMessage", Timestamp: time.Now()},
		})
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	payload, ok := received[0].Payload().(map[string]interface{})
	if !ok {
		t.Fatalf("payload type = %T", received[0].Payload())
	}
	if payload["from"] != "628111@s.whatsapp.net" || payload["text"] != "halo" {
		t.Errorf("payload = %v", payload)
	}
	if _, ok := payload["timestamp"]; !ok {
		t.Error("payload missing timestamp")
	}
}

func TestManagerReconnectBoundCountsConsecutiveFailuresOnly(t *testing.T) {
	session := &fakeSession{}
	manager := NewManager(session, eventbus.New(), Options{
		ReconnectDelay: 5 * time.Millisecond,
		MaxReconnects:  2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Start(ctx)

	// More connect→drop cycles than the bound; every cycle reaches
	// Connected, so the streak resets and the manager never parks.
	for i := 1; i <= 4; i++ {
		waitFor(t, func() bool { return session.connectCount() == i })
		session.fire(func(e SessionEvents) { e.OnConnected("628111") })
		waitFor(t, func() bool { return manager.GetStatus().State == domain.StateConnected })
		session.fire(func(e SessionEvents) { e.OnDisconnected(false) })
		waitFor(t, func() bool { return manager.GetStatus().State == domain.StateDisconnected })
	}

	waitFor(t, func() bool { return session.connectCount() == 5 })
}

func TestManagerForwardsBatches(t *testing.T) {
	session := &fakeSession{}
	manager := NewManager(session, eventbus.New(), Options{ReconnectDelay: 10 * time.Millisecond})

	var mu sync.Mutex
	var got []Message
	manager.SetBatchHandler(func(ctx context.Context, batch []Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, batch...)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Start(ctx)
	waitFor(t, func() bool { return session.connectCount() == 1 })

	session.fire(func(e SessionEvents) {
		e.OnMessages([]Message{{ID: "m1", From: "628111@s.whatsapp.net", Kind: "conversation", Text: "halo"}})
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}
