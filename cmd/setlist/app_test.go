package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"setlist/internal/core"
	"setlist/internal/storage"
	"setlist/internal/store"
)

func useTestConfig(t *testing.T) *core.Config {
	t.Helper()

	previousConfig, previousLogger := config, logger
	t.Cleanup(func() {
		config, logger = previousConfig, previousLogger
	})

	config = core.DefaultConfig()
	config.Storage.Path = filepath.Join(t.TempDir(), "setlist.db")
	logger = zap.NewNop()
	return config
}

func TestResetCmd_ClearsUndecodableSession(t *testing.T) {
	cfg := useTestConfig(t)

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	if err := db.Put(context.Background(), core.DefaultStorageKey, []byte("{not json")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, _, err := storage.NewSnapshotStore(db, "").Load(); err == nil {
		t.Fatal("seeded session should not decode")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := newApp(); err == nil {
		t.Fatal("newApp() should refuse a session that does not decode")
	}

	cmd := newResetCmd()
	cmd.SetContext(context.Background())
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("reset error = %v", err)
	}

	a, err := newApp()
	if err != nil {
		t.Fatalf("newApp() after reset error = %v", err)
	}
	defer a.close()
	if len(a.store.Projects()) != 0 {
		t.Errorf("projects after reset = %d, expected none", len(a.store.Projects()))
	}
}

type recordingSink struct {
	access, refresh string
	clears          int
}

func (r *recordingSink) SetTokens(access, refresh string) {
	r.access = access
	if refresh != "" {
		r.refresh = refresh
	}
}

func (r *recordingSink) ClearTokens() {
	r.access, r.refresh = "", ""
	r.clears++
}

func TestMirrorTokens(t *testing.T) {
	st := store.New(nil, zap.NewNop())
	sink := &recordingSink{}
	st.Subscribe(mirrorTokens(sink))

	st.SetAuthTokens("access-1", "refresh-1")
	if sink.access != "access-1" || sink.refresh != "refresh-1" {
		t.Errorf("after SetAuthTokens sink = %q/%q", sink.access, sink.refresh)
	}

	st.SetAuthTokens("access-2", "")
	if sink.access != "access-2" || sink.refresh != "refresh-1" {
		t.Errorf("after access-only update sink = %q/%q, expected the refresh token kept", sink.access, sink.refresh)
	}

	st.ClearAuthTokens()
	if sink.access != "" || sink.refresh != "" || sink.clears != 1 {
		t.Errorf("after ClearAuthTokens sink = %q/%q with %d clears", sink.access, sink.refresh, sink.clears)
	}
}

func TestListedFirst(t *testing.T) {
	ordered := []core.Track{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}, {ID: "t4"}}

	tests := []struct {
		name     string
		ids      []string
		expected string
	}{
		{name: "one track", ids: []string{"t3"}, expected: "t3,t1,t2,t4"},
		{name: "several tracks", ids: []string{"t4", "t2"}, expected: "t4,t2,t1,t3"},
		{name: "repeated id", ids: []string{"t2", "t2"}, expected: "t2,t1,t3,t4"},
		{name: "already first", ids: []string{"t1"}, expected: "t1,t2,t3,t4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(listedFirst(tt.ids, ordered), ","); got != tt.expected {
				t.Errorf("listedFirst(%v) = %s, expected %s", tt.ids, got, tt.expected)
			}
		})
	}
}

func TestListedFirst_KeepsEveryTrack(t *testing.T) {
	st := store.New(nil, zap.NewNop())
	if _, err := st.CreateProject("Primavera", ""); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if err := st.AddArtist("Artist"); err != nil {
		t.Fatalf("AddArtist() error = %v", err)
	}
	if err := st.ConfirmArtist("Artist", core.ArtistProfile{ID: "a1", Name: "Artist"}); err != nil {
		t.Fatalf("ConfirmArtist() error = %v", err)
	}
	tracks := []core.Track{
		{ID: "t1", URI: "spotify:track:t1", Title: "One", Artist: "Artist"},
		{ID: "t2", URI: "spotify:track:t2", Title: "Two", Artist: "Artist"},
		{ID: "t3", URI: "spotify:track:t3", Title: "Three", Artist: "Artist"},
	}
	if _, err := st.AddArtistTracks("Artist", tracks); err != nil {
		t.Fatalf("AddArtistTracks() error = %v", err)
	}

	project, err := st.CurrentProject()
	if err != nil {
		t.Fatalf("CurrentProject() error = %v", err)
	}
	if err := st.ReorderByIDs(listedFirst([]string{"t3"}, project.OrderedTracks)); err != nil {
		t.Fatalf("ReorderByIDs() error = %v", err)
	}

	project, _ = st.CurrentProject()
	var ids []string
	for _, track := range project.OrderedTracks {
		ids = append(ids, track.ID)
	}
	if strings.Join(ids, ",") != "t3,t1,t2" {
		t.Errorf("order = %v, expected t3 first and nothing dropped", ids)
	}
}
