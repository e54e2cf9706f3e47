package config

const (
	defaultDataDir      = "~/.local/share/unreeled/data"
	defaultLogDir       = "~/.local/share/unreeled/logs"
	defaultTemplatePath = "public/template.html"
	defaultSiteOutput   = "public"
	defaultDatabasePath = "~/.local/share/unreeled/subscribers.db"

	defaultMinMovieRuntime   = 40
	defaultMusicCoverArtMax  = 80
	defaultBookSynopsisMax   = 60
	defaultMovieDetailLookup = 100

	defaultOMDbLookups      = 40
	defaultTasteDiveLookups = 30
	defaultWatchmodeLookups = 20

	defaultTMDBBaseURL         = "https://api.themoviedb.org/3"
	defaultTMDBImageBase       = "https://image.tmdb.org/t/p/w500"
	defaultOpenLibraryBaseURL  = "https://openlibrary.org"
	defaultOpenLibraryCovers   = "https://covers.openlibrary.org/b"
	defaultOpenLibraryAgent    = "UnreeledBot/1.0 (media release tracker)"
	defaultIGDBAuthURL         = "https://id.twitch.tv/oauth2/token"
	defaultIGDBBaseURL         = "https://api.igdb.com/v4"
	defaultIGDBImageBase       = "https://images.igdb.com/igdb/image/upload/t_cover_big"
	defaultJikanBaseURL        = "https://api.jikan.moe/v4"
	defaultMusicBrainzBaseURL  = "https://musicbrainz.org/ws/2"
	defaultCoverArtArchiveURL  = "https://coverartarchive.org/release"
	defaultMusicBrainzAgent    = "unreeled-bot/1.0 (https://unreeled.app)"
	defaultPodcastIndexBaseURL = "https://api.podcastindex.org/api/1.0"
	defaultBGGBaseURL          = "https://boardgamegeek.com/xmlapi2"
	defaultRAWGBaseURL         = "https://api.rawg.io/api"
	defaultComicVineBaseURL    = "https://comicvine.gamespot.com/api"
	defaultNewsDataBaseURL     = "https://newsdata.io/api/1"
	defaultOMDbBaseURL         = "https://www.omdbapi.com"
	defaultTasteDiveBaseURL    = "https://tastedive.com/api/similar"
	defaultWatchmodeBaseURL    = "https://api.watchmode.com/v1"
	defaultResendURL           = "https://api.resend.com/emails"

	defaultDigestFrom = "Unreeled <digest@unreeled.app>"
	defaultSiteURL    = "https://unreeled.app/"

	defaultNotifyTimeout = 10
	defaultDailyHourUTC  = 6

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Output: Output{
			DataDir: defaultDataDir,
		},
		Filters: Filters{
			MinMovieRuntime:   defaultMinMovieRuntime,
			MusicCoverArtMax:  defaultMusicCoverArtMax,
			BookSynopsisMax:   defaultBookSynopsisMax,
			MovieDetailLookup: defaultMovieDetailLookup,
		},
		Enrichment: Enrichment{
			OMDbLookups:      defaultOMDbLookups,
			TasteDiveLookups: defaultTasteDiveLookups,
			WatchmodeLookups: defaultWatchmodeLookups,
		},
		TMDB: TMDB{
			BaseURL:      defaultTMDBBaseURL,
			ImageBaseURL: defaultTMDBImageBase,
		},
		OpenLibrary: OpenLibrary{
			BaseURL:       defaultOpenLibraryBaseURL,
			CoversBaseURL: defaultOpenLibraryCovers,
			UserAgent:     defaultOpenLibraryAgent,
		},
		IGDB: IGDB{
			AuthURL:      defaultIGDBAuthURL,
			BaseURL:      defaultIGDBBaseURL,
			ImageBaseURL: defaultIGDBImageBase,
		},
		Jikan: Jikan{
			BaseURL: defaultJikanBaseURL,
		},
		MusicBrainz: MusicBrainz{
			BaseURL:     defaultMusicBrainzBaseURL,
			CoverArtURL: defaultCoverArtArchiveURL,
			UserAgent:   defaultMusicBrainzAgent,
		},
		PodcastIndex: PodcastIndex{
			BaseURL: defaultPodcastIndexBaseURL,
		},
		BoardGameGeek: BoardGameGeek{
			BaseURL: defaultBGGBaseURL,
		},
		RAWG: RAWG{
			BaseURL: defaultRAWGBaseURL,
		},
		ComicVine: ComicVine{
			BaseURL: defaultComicVineBaseURL,
		},
		NewsData: NewsData{
			BaseURL: defaultNewsDataBaseURL,
		},
		OMDb: OMDb{
			BaseURL: defaultOMDbBaseURL,
		},
		TasteDive: TasteDive{
			BaseURL: defaultTasteDiveBaseURL,
		},
		Watchmode: Watchmode{
			BaseURL: defaultWatchmodeBaseURL,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Digest: Digest{
			DatabasePath: defaultDatabasePath,
			FromAddress:  defaultDigestFrom,
			SiteURL:      defaultSiteURL,
			ResendURL:    defaultResendURL,
		},
		Site: Site{
			TemplatePath: defaultTemplatePath,
			OutputDir:    defaultSiteOutput,
		},
		Schedule: Schedule{
			DailyHourUTC: defaultDailyHourUTC,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			LogDir: defaultLogDir,
		},
	}
}
