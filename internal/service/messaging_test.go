package service

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/odvcencio/ilanhub/internal/models"
)

type publishedEvent struct {
	userID    int64
	eventType string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(userID int64, eventType string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, eventType: eventType})
}

func (p *recordingPublisher) count(userID int64, eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.userID == userID && e.eventType == eventType {
			n++
		}
	}
	return n
}

func TestConversationFlow(t *testing.T) {
	env := setupTestEnv(t)
	pub := &recordingPublisher{}
	env.notifications.SetPublisher(pub)
	seller := env.user(t, "satici", models.RoleIndividual)
	buyer := env.user(t, "alici", models.RoleIndividual)
	stranger := env.user(t, "merakli", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	l := env.activeListing(t, seller.ID, admin.ID, "Pazarlık payı var", 100)

	if _, _, err := env.messaging.StartConversation(env.ctx, seller.ID, l.ID, "merhaba"); err == nil {
		t.Fatal("messaging your own listing should fail")
	}
	conv, msg, err := env.messaging.StartConversation(env.ctx, buyer.ID, l.ID, "Son fiyat nedir?")
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || conv.BuyerID != buyer.ID || conv.SellerID != seller.ID {
		t.Fatalf("conversation = %+v, message = %+v", conv, msg)
	}
	again, _, err := env.messaging.StartConversation(env.ctx, buyer.ID, l.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != conv.ID {
		t.Fatalf("reopened conversation %d, want %d", again.ID, conv.ID)
	}

	if _, err := env.messaging.Send(env.ctx, stranger.ID, conv.ID, "araya giriyorum"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger send err = %v, want ErrNotFound", err)
	}
	if _, err := env.messaging.Send(env.ctx, seller.ID, conv.ID, "   "); err == nil {
		t.Fatal("empty message should fail")
	}
	if _, err := env.messaging.Send(env.ctx, seller.ID, conv.ID, strings.Repeat("a", 4001)); err == nil {
		t.Fatal("oversized message should fail")
	}
	if _, err := env.messaging.Send(env.ctx, seller.ID, conv.ID, "Son fiyat bu."); err != nil {
		t.Fatal(err)
	}

	unread, err := env.messaging.UnreadCount(env.ctx, seller.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread != 1 {
		t.Fatalf("seller unread = %d, want 1", unread)
	}
	marked, err := env.messaging.MarkRead(env.ctx, seller.ID, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if marked != 1 {
		t.Fatalf("marked = %d, want 1", marked)
	}
	if unread, _ := env.messaging.UnreadCount(env.ctx, seller.ID); unread != 0 {
		t.Fatalf("seller unread after read = %d", unread)
	}

	msgs, err := env.messaging.ListMessages(env.ctx, buyer.ID, conv.ID, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if _, err := env.messaging.ListMessages(env.ctx, stranger.ID, conv.ID, 1, 50); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger list err = %v, want ErrNotFound", err)
	}
	convs, err := env.messaging.ListConversations(env.ctx, seller.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("seller conversations = %d, want 1", len(convs))
	}

	if got := pub.count(seller.ID, "message.created"); got != 2 {
		t.Fatalf("seller message events = %d, want 2", got)
	}
	if got := pub.count(buyer.ID, "notification.created"); got != 1 {
		t.Fatalf("buyer notification events = %d, want 1", got)
	}
}

func TestConversationRequiresActiveListing(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	buyer := env.user(t, "alici", models.RoleIndividual)
	l := env.listing(t, seller.ID, "Onay bekleyen ilan", 100)

	if _, _, err := env.messaging.StartConversation(env.ctx, buyer.ID, l.ID, "merhaba"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFavorites(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	buyer := env.user(t, "alici", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	live := env.activeListing(t, seller.ID, admin.ID, "Favorilik ilan", 100)
	pending := env.listing(t, seller.ID, "Henüz onaylanmadı", 100)

	if err := env.favorites.Add(env.ctx, buyer.ID, pending.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("favorite pending err = %v, want ErrNotFound", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.favorites.Add(env.ctx, buyer.ID, live.ID); err != nil {
			t.Fatal(err)
		}
	}
	favs, err := env.favorites.List(env.ctx, buyer.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(favs) != 1 || favs[0].ID != live.ID {
		t.Fatalf("favorites = %+v", favs)
	}
	detail, err := env.listings.Get(env.ctx, Viewer{UserID: buyer.ID}, live.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !detail.Favorite || detail.FavoriteCount != 1 {
		t.Fatalf("detail favorite = %v count = %d", detail.Favorite, detail.FavoriteCount)
	}

	if err := env.favorites.Remove(env.ctx, buyer.ID, live.ID); err != nil {
		t.Fatal(err)
	}
	favs, _ = env.favorites.List(env.ctx, buyer.ID, 1, 20)
	if len(favs) != 0 {
		t.Fatalf("favorites after remove = %+v", favs)
	}
}
