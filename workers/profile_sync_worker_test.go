package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/drakejin/cday2025-minigame-sub000/models"
	"github.com/drakejin/cday2025-minigame-sub000/testutil"
)

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) { c.n++ }

func TestProfileSyncUpsertsPlayers(t *testing.T) {
	db := testutil.DB(t)
	testutil.SeedPlayer(t, db, "ext-1", "old-name")

	avatar := "https://cdn.example.com/a.png"
	var gotToken, gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Service-Token")
		gotSince = r.URL.Query().Get("since")
		if r.URL.Path != "/api/v1/public/profiles" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(GetProfileChangesResponse{Users: []RemoteProfile{
			{ExternalID: "ext-1", Username: "alice", ProfilePictureURL: &avatar, UpdatedAt: testutil.Epoch},
			{ExternalID: "ext-2", Username: "bob", UpdatedAt: testutil.Epoch.Add(time.Minute)},
			{ExternalID: "", Username: "ghost"},
		}})
	}))
	defer srv.Close()

	inv := &countingInvalidator{}
	w := NewProfileSyncWorker(db, testutil.Logger(t), srv.URL, "/api/v1/public/profiles", "svc-token", time.Minute, inv)

	n, err := w.SyncBatch(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 upserts, got %d", n)
	}
	if gotToken != "svc-token" {
		t.Fatalf("service token not forwarded, got %q", gotToken)
	}
	if gotSince != "0001-01-01T00:00:00Z" {
		t.Fatalf("unexpected since %q", gotSince)
	}
	if inv.n != 1 {
		t.Fatalf("expected standings invalidated once, got %d", inv.n)
	}

	var alice models.Player
	if err := db.Where("external_user_id = ?", "ext-1").First(&alice).Error; err != nil {
		t.Fatalf("load alice: %v", err)
	}
	if alice.Username != "alice" || alice.ProfilePictureURL == nil || *alice.ProfilePictureURL != avatar {
		t.Fatalf("player not updated: %+v", alice)
	}

	var count int64
	db.Model(&models.Player{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 players, got %d", count)
	}

	if got := w.lastSyncTime(context.Background()); !got.Equal(testutil.Epoch.Add(time.Minute)) {
		t.Fatalf("last sync time = %v", got)
	}
}

func TestProfileSyncNon200(t *testing.T) {
	db := testutil.DB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewProfileSyncWorker(db, nil, srv.URL, "/profiles", "bad", 0, nil)
	if _, err := w.SyncBatch(context.Background(), time.Time{}); err == nil {
		t.Fatalf("expected error on 401")
	}
}
