package internal

type Movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	PosterPath       *string `json:"poster_path"`
	BackdropPath     *string `json:"backdrop_path"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"` // 0-10
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"original_language"`
	Adult            bool    `json:"adult"`
	Video            bool    `json:"video"`
}

// Key identifies the movie for list diffing; two values with the same Key are the same movie.
func (m Movie) Key() int {
	return m.ID
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ProductionCompany struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	LogoPath      *string `json:"logo_path"`
	OriginCountry string  `json:"origin_country"`
}

type MovieDetail struct {
	Movie
	Runtime             *int                `json:"runtime"` // minutes, nil = unknown
	Genres              []Genre             `json:"genres"`
	ProductionCompanies []ProductionCompany `json:"production_companies"`
}

// ToMovie projects the detail back to the list representation, e.g. to snapshot it as a favorite.
func (d MovieDetail) ToMovie() Movie {
	return d.Movie
}

type MoviesResponse struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

// FavoriteBody is the payload of the mark-as-favorite endpoint.
type FavoriteBody struct {
	MediaType string `json:"media_type"`
	MediaID   int    `json:"media_id"`
	Favorite  bool   `json:"favorite"`
}

const MediaTypeMovie = "movie"
