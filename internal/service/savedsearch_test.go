package service

import (
	"testing"

	"github.com/odvcencio/ilanhub/internal/models"
)

func TestSavedSearchCreateValidates(t *testing.T) {
	env := setupTestEnv(t)
	u := env.user(t, "arayan", models.RoleIndividual)

	if _, err := env.saved.Create(env.ctx, u.ID, SavedSearchInput{Name: " "}); err == nil {
		t.Fatal("saved search without a name should fail")
	}
	if _, err := env.saved.Create(env.ctx, u.ID, SavedSearchInput{Name: "Hatalı", Query: models.SearchQuery{Sort: "random"}}); err == nil {
		t.Fatal("saved search with an invalid query should fail")
	}
	ss, err := env.saved.Create(env.ctx, u.ID, SavedSearchInput{
		Name:  "Ucuz otomobil",
		Query: models.SearchQuery{CategoryID: &env.vasita.ID, Text: "clio"},
		Alert: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	list, err := env.saved.List(env.ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Query.Text != "clio" || !list[0].Alert {
		t.Fatalf("saved searches = %+v", list)
	}
	if err := env.saved.Delete(env.ctx, u.ID+1, ss.ID); err == nil {
		t.Fatal("deleting someone else's search should fail")
	}
	if err := env.saved.Delete(env.ctx, u.ID, ss.ID); err != nil {
		t.Fatal(err)
	}
}

func TestSavedSearchMatchNotifiesOwners(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	hunter := env.user(t, "avci", models.RoleIndividual)
	picky := env.user(t, "secici", models.RoleIndividual)
	quiet := env.user(t, "sessiz", models.RoleIndividual)

	max := int64(500_000_00)
	mustSave := func(userID int64, in SavedSearchInput) {
		t.Helper()
		if _, err := env.saved.Create(env.ctx, userID, in); err != nil {
			t.Fatal(err)
		}
	}
	mustSave(hunter.ID, SavedSearchInput{Name: "Clio", Query: models.SearchQuery{CategoryID: &env.vasita.ID, Text: "clio", PriceMax: &max}, Alert: true})
	mustSave(picky.ID, SavedSearchInput{Name: "Ankara", Query: models.SearchQuery{City: "Ankara"}, Alert: true})
	mustSave(quiet.ID, SavedSearchInput{Name: "Her şey", Alert: false})
	mustSave(seller.ID, SavedSearchInput{Name: "Kendi ilanım", Query: models.SearchQuery{Text: "clio"}, Alert: true})

	l := env.activeListing(t, seller.ID, admin.ID, "Renault Clio 1.5 dCi", 450_000_00)
	job, err := env.queue.Claim(env.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a queued match job")
	}
	if err := env.saved.HandleMatchJob(env.ctx, job); err != nil {
		t.Fatal(err)
	}

	counts := map[string]int{}
	for _, u := range []*models.User{hunter, picky, quiet, seller} {
		notes, err := env.notifications.List(env.ctx, u.ID, false, 1, 50)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range notes {
			if n.Type == NotifySavedSearchMatch && n.ListingID != nil && *n.ListingID == l.ID {
				counts[u.Username]++
			}
		}
	}
	if counts["avci"] != 1 || counts["secici"] != 0 || counts["sessiz"] != 0 || counts["satici"] != 0 {
		t.Fatalf("match notifications = %v", counts)
	}
}

func TestSavedSearchRun(t *testing.T) {
	env := setupTestEnv(t)
	seller := env.user(t, "satici", models.RoleIndividual)
	admin := env.user(t, "yonetici", models.RoleAdmin)
	u := env.user(t, "arayan", models.RoleIndividual)
	env.activeListing(t, seller.ID, admin.ID, "Dizel Passat", 100)
	env.activeListing(t, seller.ID, admin.ID, "Benzinli Polo", 100)

	ss, err := env.saved.Create(env.ctx, u.ID, SavedSearchInput{Name: "Dizel", Query: models.SearchQuery{Text: "dizel"}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.saved.Run(env.ctx, u.ID, ss.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Items[0].Title != "Dizel Passat" {
		t.Fatalf("run result = %+v", res)
	}
}
