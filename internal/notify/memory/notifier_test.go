package memory

import (
	"context"
	"testing"
)

func TestNotifierStoresMessages(t *testing.T) {
	t.Parallel()

	n := New()
	id1, err := n.Publish(context.Background(), "runs", map[string]string{"source": "forum"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := n.Publish(context.Background(), "books", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := n.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "runs" || msgs[1].Topic != "books" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if n.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}
