package notify

import "testing"

func TestPublishOverwritesCurrentSlot(t *testing.T) {
	c := NewCenter()
	c.Error("Failed to fetch contracts", "")
	c.Publish(Notification{Title: "Contract created", Severity: SeveritySuccess})

	latest, ok := c.Latest()
	if !ok {
		t.Fatalf("expected a current notification")
	}
	if latest.Title != "Contract created" || latest.Severity != SeveritySuccess {
		t.Fatalf("expected last published notification to win, got %+v", latest)
	}
}

func TestClearEmptiesSlot(t *testing.T) {
	c := NewCenter()
	c.Error("boom", "")
	c.Clear()
	if _, ok := c.Latest(); ok {
		t.Fatalf("expected empty slot after clear")
	}
}

func TestPublishDefaultsSeverity(t *testing.T) {
	c := NewCenter()
	c.Publish(Notification{Title: "hello"})
	latest, _ := c.Latest()
	if latest.Severity != SeverityInfo {
		t.Fatalf("expected default info severity, got %q", latest.Severity)
	}
}

func TestSubscribersSeeEveryPublish(t *testing.T) {
	c := NewCenter()
	var titles []string
	unsub := c.Subscribe(func(n Notification) { titles = append(titles, n.Title) })

	c.Error("first", "")
	c.Error("second", "")
	unsub()
	c.Error("third", "")

	if len(titles) != 2 || titles[0] != "first" || titles[1] != "second" {
		t.Fatalf("expected two observed notifications, got %v", titles)
	}
}
