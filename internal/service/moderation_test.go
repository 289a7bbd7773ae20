package service

import (
	"errors"
	"testing"

	"github.com/odvcencio/ilanhub/internal/models"
)

func TestPendingListingsOldestFirst(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	first := env.listing(t, seller.ID, "İlk gönderilen ilan", 100)
	second := env.listing(t, seller.ID, "İkinci gönderilen ilan", 100)

	res, err := env.moderation.PendingListings(env.ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || res.Items[0].ID != first.ID || res.Items[1].ID != second.ID {
		t.Fatalf("pending queue = %+v", res.Items)
	}
	stats, err := env.moderation.QueueStats(env.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.PendingListings != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestModerationDecisionsRequirePending(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	l := env.activeListing(t, seller.ID, admin.ID, "Zaten yayında olan ilan", 100)

	if _, err := env.moderation.Approve(env.ctx, admin.ID, l.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double approve err = %v, want ErrInvalidTransition", err)
	}
	if _, err := env.moderation.Reject(env.ctx, admin.ID, l.ID, "geç kaldı"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject active err = %v, want ErrInvalidTransition", err)
	}
	pending := env.listing(t, seller.ID, "Gerekçesiz red denemesi", 100)
	if _, err := env.moderation.Reject(env.ctx, admin.ID, pending.ID, "  "); err == nil {
		t.Fatal("reject without a reason should fail")
	}
	if _, err := env.moderation.Approve(env.ctx, admin.ID, 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("approve missing err = %v, want ErrNotFound", err)
	}
}

func TestApproveQueuesSavedSearchMatch(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	env.activeListing(t, seller.ID, admin.ID, "Eşleşme işi kuyruğa girer", 100)

	job, err := env.queue.Claim(env.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Type != models.JobSavedSearchMatch {
		t.Fatalf("claimed job = %+v, want saved_search.match", job)
	}
}

func TestBanUser(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "kuralsiz", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	other := env.user(t, "diger_yonetici", models.RoleAdmin)
	l := env.activeListing(t, seller.ID, admin.ID, "Kurallara aykırı ilan", 100)

	if _, err := env.moderation.BanUser(env.ctx, admin.ID, seller.ID, ""); err == nil {
		t.Fatal("ban without a reason should fail")
	}
	if _, err := env.moderation.BanUser(env.ctx, admin.ID, admin.ID, "kendimi"); err == nil {
		t.Fatal("self ban should fail")
	}
	if _, err := env.moderation.BanUser(env.ctx, admin.ID, other.ID, "yetki"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ban admin err = %v, want ErrForbidden", err)
	}

	banned, err := env.moderation.BanUser(env.ctx, admin.ID, seller.ID, "dolandırıcılık şüphesi")
	if err != nil {
		t.Fatal(err)
	}
	if banned.Status != models.UserStatusBanned {
		t.Fatalf("status = %s", banned.Status)
	}
	got, _ := env.db.GetListing(env.ctx, l.ID)
	if got.Status != models.ListingPassive {
		t.Fatalf("listing status after ban = %s, want PASSIVE", got.Status)
	}
	if _, err := env.accounts.Login(env.ctx, "kuralsiz", "parola123"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("banned login err = %v, want ErrForbidden", err)
	}

	if _, err := env.moderation.UnbanUser(env.ctx, admin.ID, seller.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.moderation.UnbanUser(env.ctx, admin.ID, seller.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second unban err = %v, want ErrInvalidTransition", err)
	}
	actions, err := env.moderation.ListActions(env.ctx, "user", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Fatalf("user actions = %+v", actions)
	}
}

func TestTakedownPassivatesActiveListing(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	l := env.activeListing(t, seller.ID, admin.ID, "Şikayet edilen ilan", 100)

	if _, err := env.moderation.Takedown(env.ctx, admin.ID, l.ID, " "); err == nil {
		t.Fatal("takedown without a reason should fail")
	}
	got, err := env.moderation.Takedown(env.ctx, admin.ID, l.ID, "yanıltıcı fiyat")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ListingPassive {
		t.Fatalf("status = %s, want PASSIVE", got.Status)
	}
	if _, err := env.moderation.Takedown(env.ctx, admin.ID, l.ID, "tekrar"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second takedown err = %v, want ErrInvalidTransition", err)
	}

	notes, err := env.notifications.List(env.ctx, seller.ID, false, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range notes {
		if n.Type == NotifyListingPassivated && n.ListingID != nil && *n.ListingID == l.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("owner notifications = %+v, want a listing.passivated entry", notes)
	}
	actions, err := env.moderation.ListActions(env.ctx, "listing", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) == 0 || actions[0].Action != "listing.takedown" {
		t.Fatalf("listing actions = %+v", actions)
	}
}
