package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/streamshelf/internal/models"
)

func testPlaylist(id string, channels ...models.Channel) models.Playlist {
	return models.Playlist{ID: id, Name: "Playlist " + id, Type: models.PlaylistTypeM3UFile, Channels: channels}
}

func channelIDs(channels []models.Channel) []string {
	ids := make([]string, len(channels))
	for i, c := range channels {
		ids[i] = c.ID
	}
	return ids
}

func TestInsertPlaylist_ReplacesChannels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := testPlaylist("P", channel("A", "a", nil), channel("B", "b", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &p))

	p2 := testPlaylist("P", channel("C", "c", nil))
	p2.Name = "Renamed by refresh"
	require.NoError(t, s.InsertPlaylist(ctx, &p2))

	got, err := s.PlaylistByID(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, channelIDs(got.Channels))
	assert.Equal(t, "Renamed by refresh", got.Name)
	assert.Equal(t, p.CreatedAt, got.CreatedAt, "createdAt survives a replace")
}

func TestInsertPlaylist_ReportsStoredCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return clock }

	p := testPlaylist("P", channel("A", "a", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &p))

	clock = clock.Add(time.Hour)
	again := testPlaylist("P", channel("B", "b", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &again))
	assert.Equal(t, p.CreatedAt, again.CreatedAt)
	assert.Equal(t, clock.UnixMilli(), again.UpdatedAt)
}

func TestInsertPlaylist_OtherPlaylistsUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p1 := testPlaylist("P1", channel("A", "a", nil))
	p2 := testPlaylist("P2", channel("B", "b", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &p1))
	require.NoError(t, s.InsertPlaylist(ctx, &p2))

	p1b := testPlaylist("P1")
	require.NoError(t, s.InsertPlaylist(ctx, &p1b))

	all, err := s.Playlists(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	byID := map[string]models.Playlist{all[0].ID: all[0], all[1].ID: all[1]}
	assert.Empty(t, byID["P1"].Channels)
	assert.Equal(t, []string{"B"}, channelIDs(byID["P2"].Channels))
}

func TestInsertPlaylist_RejectsUnknownType(t *testing.T) {
	s := newTestStore(t)
	p := testPlaylist("P")
	p.Type = "RSS"
	assert.Error(t, s.InsertPlaylist(context.Background(), &p))
}

func TestInsertPlaylist_PreservesChannelOrderAndFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	logo := "http://logo"
	p := testPlaylist("P",
		channel("z", "Zed", nil),
		models.Channel{ID: "a", Name: "Aye", URL: "http://a", LogoURL: &logo, Group: strPtr("News"),
			TvgID: strPtr("a"), TvgName: strPtr("Aye HD"), EpgChannelID: strPtr("a.epg")},
		channel("m", "Em", nil),
	)
	p.URL = strPtr("http://source/list.m3u")
	require.NoError(t, s.InsertPlaylist(ctx, &p))

	got, err := s.PlaylistByID(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, channelIDs(got.Channels))
	assert.Equal(t, "http://source/list.m3u", *got.URL)

	a := got.Channels[1]
	assert.Equal(t, "P", a.PlaylistID)
	assert.Equal(t, logo, *a.LogoURL)
	assert.Equal(t, "News", *a.Group)
	assert.Equal(t, "Aye HD", *a.TvgName)
	assert.Equal(t, "a.epg", *a.EpgChannelID)
}

func TestPlaylistByID_NotFound(t *testing.T) {
	_, err := newTestStore(t).PlaylistByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenamePlaylist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := testPlaylist("P")
	require.NoError(t, s.InsertPlaylist(ctx, &p))

	require.NoError(t, s.RenamePlaylist(ctx, "P", "New"))
	got, err := s.PlaylistByID(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)

	assert.ErrorIs(t, s.RenamePlaylist(ctx, "missing", "x"), ErrNotFound)
}

func TestDeletePlaylist_CascadesAndSweepsFavorites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p1 := testPlaylist("P1", channel("shared", "s", nil), channel("only1", "o", strPtr("c1")))
	p1.Categories = []models.Category{{ID: "c1", Name: "One"}}
	p2 := testPlaylist("P2", channel("shared", "s", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &p1))
	require.NoError(t, s.InsertPlaylist(ctx, &p2))
	for _, id := range []string{"shared", "only1"} {
		_, err := s.ToggleFavorite(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, s.DeletePlaylist(ctx, "P1"))

	_, err := s.PlaylistByID(ctx, "P1")
	assert.ErrorIs(t, err, ErrNotFound)
	cats, err := s.Categories(ctx, "P1")
	require.NoError(t, err)
	assert.Empty(t, cats)

	fav, err := s.IsFavorite(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, fav, "channel id still exists in P2")
	fav, err = s.IsFavorite(ctx, "only1")
	require.NoError(t, err)
	assert.False(t, fav)

	assert.ErrorIs(t, s.DeletePlaylist(ctx, "P1"), ErrNotFound)
}

func TestToggleFavorite_Involution(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, initial := range []bool{false, true} {
		id := fmt.Sprintf("ch-%v", initial)
		if initial {
			_, err := s.ToggleFavorite(ctx, id)
			require.NoError(t, err)
		}
		first, err := s.ToggleFavorite(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, !initial, first)
		second, err := s.ToggleFavorite(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, initial, second)

		fav, err := s.IsFavorite(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, initial, fav)
	}
}

func TestPruneFavorites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := testPlaylist("P", channel("a", "A", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &p))
	for _, id := range []string{"a", "ghost"} {
		_, err := s.ToggleFavorite(ctx, id)
		require.NoError(t, err)
	}

	n, err := s.PruneFavorites(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	favs, err := s.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "a", favs[0].ChannelID)
}

func TestCategories_SortedByName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := testPlaylist("P")
	p.Categories = []models.Category{{ID: "1", Name: "Sports"}, {ID: "2", Name: "Movies"}, {ID: "3", Name: "News", ParentID: strPtr("2")}}
	require.NoError(t, s.InsertPlaylist(ctx, &p))

	cats, err := s.Categories(ctx, "P")
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Equal(t, []string{"Movies", "News", "Sports"}, []string{cats[0].Name, cats[1].Name, cats[2].Name})
	assert.Equal(t, "P", cats[0].PlaylistID)
	assert.Equal(t, "2", *cats[1].ParentID)
}

func TestCategories_SameLocalIDInTwoPlaylists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	one := strPtr("1")

	a := testPlaylist("A", channel("a1", "ESPN", one), channel("a2", "Sky", strPtr("2")))
	a.Categories = []models.Category{{ID: "1", Name: "Sports"}, {ID: "2", Name: "Sky", ParentID: one}}
	b := testPlaylist("B", channel("b1", "CNN", one))
	b.Categories = []models.Category{{ID: "1", Name: "News"}}
	require.NoError(t, s.InsertPlaylist(ctx, &a))
	require.NoError(t, s.InsertPlaylist(ctx, &b))

	catsA, err := s.Categories(ctx, "A")
	require.NoError(t, err)
	require.Len(t, catsA, 2)
	assert.Equal(t, "1", catsA[1].ID)
	assert.Equal(t, "Sports", catsA[1].Name)
	assert.Equal(t, "1", *catsA[0].ParentID)

	catsB, err := s.Categories(ctx, "B")
	require.NoError(t, err)
	require.Len(t, catsB, 1)
	assert.Equal(t, "News", catsB[0].Name)

	inA, err := s.ChannelsByCategory(ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, channelIDs(inA))

	counts, err := s.CategoryChannelCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryCount{
		{PlaylistID: "A", CategoryID: "1", Count: 1},
		{PlaylistID: "A", CategoryID: "2", Count: 1},
		{PlaylistID: "B", CategoryID: "1", Count: 1},
	}, counts)

	require.NoError(t, s.DeletePlaylist(ctx, "B"))
	catsA, err = s.Categories(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, catsA, 2)
}

func TestInsertPlaylist_InvalidParent(t *testing.T) {
	s := newTestStore(t)
	p := testPlaylist("P")
	p.Categories = []models.Category{{ID: "1", Name: "A", ParentID: strPtr("elsewhere")}}
	err := s.InsertPlaylist(context.Background(), &p)
	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestCategoryChannelCounts_ExcludesNull(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	catA := strPtr("catA")
	p := testPlaylist("P", channel("1", "a", catA), channel("2", "b", catA), channel("3", "c", catA), channel("4", "d", nil))
	p.Categories = []models.Category{{ID: "catA", Name: "A"}}
	require.NoError(t, s.InsertPlaylist(ctx, &p))

	counts, err := s.CategoryChannelCounts(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryCount{{PlaylistID: "P", CategoryID: "catA", Count: 3}}, counts)

	all, err := s.CategoryChannelCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, counts, all)

	inCat, err := s.ChannelsByCategory(ctx, "P", "catA")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, channelIDs(inCat))
}

func TestPrograms(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	programs := []models.EpgProgram{
		{ID: "p1", ChannelID: "c", Title: "Morning", StartTime: 0, EndTime: 100},
		{ID: "p2", ChannelID: "c", Title: "Noon", StartTime: 100, EndTime: 200},
		{ID: "p3", ChannelID: "c", Title: "Evening", StartTime: 200, EndTime: 300},
		{ID: "o1", ChannelID: "other", Title: "Other", StartTime: 0, EndTime: 300},
	}
	require.NoError(t, s.InsertPrograms(ctx, programs))

	got, err := s.Programs(ctx, "c", 100, 200)
	require.NoError(t, err)
	require.Len(t, got, 1, "intervals are half-open")
	assert.Equal(t, "p2", got[0].ID)

	cur, err := s.CurrentProgram(ctx, "c", 200)
	require.NoError(t, err)
	assert.Equal(t, "p3", cur.ID)
	_, err = s.CurrentProgram(ctx, "c", 300)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteProgramsBefore(ctx, 200)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	got, err = s.Programs(ctx, "c", 0, 1000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p3", got[0].ID)

	err = s.InsertPrograms(ctx, []models.EpgProgram{{ID: "bad", ChannelID: "c", StartTime: 5, EndTime: 5}})
	assert.True(t, errors.Is(err, ErrInvalidProgram))
}

func TestInsertPlaylist_ConcurrentDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := testPlaylist(fmt.Sprintf("P%d", i), channel("a", "A", nil), channel("b", "B", nil))
			errs <- s.InsertPlaylist(ctx, &p)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	all, err := s.Playlists(ctx)
	require.NoError(t, err)
	require.Len(t, all, 8)
	for _, p := range all {
		assert.Len(t, p.Channels, 2)
	}
}

func TestWatchPlaylists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	updates := s.WatchPlaylists(ctx)
	first := recv(t, updates)
	assert.Empty(t, first)

	p := testPlaylist("P", channel("a", "A", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &p))
	next := recv(t, updates)
	require.Len(t, next, 1)
	assert.Len(t, next[0].Channels, 1)

	require.NoError(t, s.RenamePlaylist(ctx, "P", "Renamed"))
	next = recv(t, updates)
	require.Len(t, next, 1)
	assert.Equal(t, "Renamed", next[0].Name)

	cancel()
	select {
	case _, ok := <-updates:
		for ok {
			_, ok = <-updates
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func recv(t *testing.T, ch <-chan []models.Playlist) []models.Playlist {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok)
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
		return nil
	}
}
