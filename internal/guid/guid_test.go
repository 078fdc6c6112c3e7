package guid

import (
	"testing"

	"github.com/desertthunder/plexsync/internal/models"
)

func TestParse(t *testing.T) {
	tc := []struct {
		name   string
		raw    string
		want   models.CanonicalID
		wantOK bool
	}{
		{
			name:   "legacy tvdb agent with query",
			raw:    "com.plexapp.agents.thetvdb://121361?lang=en",
			want:   models.CanonicalID{Provider: models.TVDB, Value: "121361"},
			wantOK: true,
		},
		{
			name:   "legacy imdb agent",
			raw:    "com.plexapp.agents.imdb://tt0111161?lang=en",
			want:   models.CanonicalID{Provider: models.IMDB, Value: "tt0111161"},
			wantOK: true,
		},
		{
			name:   "legacy tmdb agent",
			raw:    "com.plexapp.agents.themoviedb://278?lang=en",
			want:   models.CanonicalID{Provider: models.TMDB, Value: "278"},
			wantOK: true,
		},
		{
			name:   "legacy episode guid keeps the show id",
			raw:    "com.plexapp.agents.thetvdb://121361/1/3?lang=en",
			want:   models.CanonicalID{Provider: models.TVDB, Value: "121361"},
			wantOK: true,
		},
		{
			name:   "other agent namespace",
			raw:    "tv.plex.agents.themoviedb://1399",
			want:   models.CanonicalID{Provider: models.TMDB, Value: "1399"},
			wantOK: true,
		},
		{
			name:   "short imdb",
			raw:    "imdb://tt0111161",
			want:   models.CanonicalID{Provider: models.IMDB, Value: "tt0111161"},
			wantOK: true,
		},
		{
			name:   "short imdb without prefix",
			raw:    "imdb://111161",
			want:   models.CanonicalID{Provider: models.IMDB, Value: "tt111161"},
			wantOK: true,
		},
		{
			name:   "short tvdb",
			raw:    "tvdb://121361",
			want:   models.CanonicalID{Provider: models.TVDB, Value: "121361"},
			wantOK: true,
		},
		{
			name:   "short tmdb with noise",
			raw:    " tmdb://278a ",
			want:   models.CanonicalID{Provider: models.TMDB, Value: "278"},
			wantOK: true,
		},
		{name: "plex guid is ignored", raw: "plex://movie/abc123"},
		{name: "hama agent is ignored", raw: "com.plexapp.agents.hama://anidb-123"},
		{name: "local item is ignored", raw: "local://12345"},
		{name: "empty", raw: ""},
		{name: "missing id", raw: "imdb://"},
		{name: "tvdb without digits", raw: "tvdb://abc"},
		{name: "imdb prefix only", raw: "imdb://tt"},
		{name: "agent imdb prefix only", raw: "com.plexapp.agents.imdb://TT?lang=en"},
		{name: "garbage", raw: "::::"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	t.Run("merges primary and guid list", func(t *testing.T) {
		ids := Extract("com.plexapp.agents.imdb://tt0111161?lang=en", "tmdb://278", "tvdb://81189")

		want := models.IDSet{models.IMDB: "tt0111161", models.TMDB: "278", models.TVDB: "81189"}
		if len(ids) != len(want) {
			t.Fatalf("Extract() = %v, want %v", ids, want)
		}
		for p, v := range want {
			if ids[p] != v {
				t.Errorf("Extract()[%s] = %v, want %v", p, ids[p], v)
			}
		}
	})

	t.Run("last write wins per provider", func(t *testing.T) {
		ids := Extract("imdb://tt0000001", "plex://movie/x", "imdb://tt0000002")
		if ids[models.IMDB] != "tt0000002" {
			t.Errorf("Extract() imdb = %v, want tt0000002", ids[models.IMDB])
		}
	})

	t.Run("nothing usable yields an empty set", func(t *testing.T) {
		ids := Extract("plex://movie/abc123", "", "local://1")
		if !ids.Empty() {
			t.Errorf("Extract() = %v, want empty", ids)
		}
	})

	t.Run("no input", func(t *testing.T) {
		if ids := Extract(); ids == nil || len(ids) != 0 {
			t.Errorf("Extract() = %v, want empty non-nil set", ids)
		}
	})
}

func TestFromTracker(t *testing.T) {
	ids := FromTracker("0111161", 0, 278)
	if ids[models.IMDB] != "tt0111161" {
		t.Errorf("imdb = %v, want tt0111161", ids[models.IMDB])
	}
	if _, ok := ids[models.TVDB]; ok {
		t.Error("zero tvdb id should be absent")
	}
	if ids[models.TMDB] != "278" {
		t.Errorf("tmdb = %v, want 278", ids[models.TMDB])
	}

	if empty := FromTracker("", 0, 0); !empty.Empty() {
		t.Errorf("FromTracker with no ids = %v, want empty", empty)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", " ", "tt0111161", "0111161", "111161", "TT0111161", " tt123 ", "t", "tt", "ttt",
		"12-34", "id:5678", "abc", "٣٤٥", "tt12ab",
	}

	normalizers := map[string]func(string) string{
		"imdb": NormalizeIMDB,
		"tvdb": NormalizeTVDB,
		"tmdb": NormalizeTMDB,
	}

	for name, fn := range normalizers {
		for _, in := range inputs {
			once := fn(in)
			if twice := fn(once); twice != once {
				t.Errorf("%s: normalize(normalize(%q)) = %q, want %q", name, in, twice, once)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	tc := []struct {
		provider models.Provider
		in       string
		want     string
	}{
		{models.IMDB, "111161", "tt111161"},
		{models.IMDB, "tt111161", "tt111161"},
		{models.IMDB, "TT111161", "tt111161"},
		{models.IMDB, "  tt0111161\n", "tt0111161"},
		{models.IMDB, "", ""},
		{models.IMDB, "tt", ""},
		{models.IMDB, " TT ", ""},
		{models.TVDB, "121361", "121361"},
		{models.TVDB, "tvdb-121361", "121361"},
		{models.TMDB, "278.0", "2780"},
		{models.TMDB, "none", ""},
	}

	for _, tt := range tc {
		if got := Normalize(tt.provider, tt.in); got != tt.want {
			t.Errorf("Normalize(%s, %q) = %q, want %q", tt.provider, tt.in, got, tt.want)
		}
	}
}
