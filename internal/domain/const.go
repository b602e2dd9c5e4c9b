package domain

const (
	// Default id namespaces. Ids at or below these values belong to the legacy chain.
	DEFAULT_USER_ID_OFFSET     = 3_000_000
	DEFAULT_TRACK_ID_OFFSET    = 2_000_000
	DEFAULT_PLAYLIST_ID_OFFSET = 400_000
	DEFAULT_COMMENT_ID_OFFSET  = 4_000_000
	DEFAULT_EVENT_ID_OFFSET    = 0

	// Default character limits
	CHARACTER_LIMIT_DESCRIPTION = 1000
	CHARACTER_LIMIT_USER_BIO    = 256
	CHARACTER_LIMIT_COMMENT     = 400
	CHARACTER_LIMIT_HANDLE      = 30

	// Event types of the Event entity
	EVENT_TYPE_REMIX_CONTEST = "remix_contest"
)

// DefaultGenres is the genre allow-list applied to tracks
var DefaultGenres = []string{
	"Electronic", "Rock", "Metal", "Alternative", "Hip-Hop/Rap", "Experimental", "Punk", "Folk",
	"Pop", "Ambient", "Soundtrack", "World", "Jazz", "Acoustic", "Funk", "R&B/Soul", "Devotional",
	"Classical", "Reggae", "Podcasts", "Country", "Spoken Word", "Comedy", "Blues", "Kids",
	"Audiobooks", "Latin", "Lo-Fi", "Hyperpop", "Dancehall", "Techno", "Trap", "House",
	"Tech House", "Deep House", "Disco", "Electro", "Jungle", "Progressive House", "Hardstyle",
	"Glitch Hop", "Trance", "Future Bass", "Future House", "Tropical House", "Downtempo",
	"Drum & Bass", "Dubstep", "Jersey Club", "Vaporwave", "Moombahton",
}
