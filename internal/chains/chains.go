package chains

// Slug identifies a supported supermarket chain.
type Slug string

const (
	Shufersal Slug = "shufersal"
	Victory   Slug = "victory"
)

// Slugs contains all supported chain slugs in seed order.
var Slugs = []Slug{
	Shufersal,
	Victory,
}

// Config describes a chain's published price portal.
type Config struct {
	Slug        Slug   `json:"slug"`
	DisplayName string `json:"displayName"`
	BaseURL     string `json:"baseUrl"`
	// PriceIndexURL and StoreIndexURL are the HTML pages listing the
	// downloadable gzipped XML files for each feed type.
	PriceIndexURL string `json:"priceIndexUrl"`
	StoreIndexURL string `json:"storeIndexUrl"`
	// Paginated marks portals whose price index spans multiple pages.
	Paginated bool `json:"paginated"`
}

// Configs holds the portal configuration for every supported chain.
var Configs = map[Slug]Config{
	Shufersal: {
		Slug:          Shufersal,
		DisplayName:   "שופרסל",
		BaseURL:       "https://prices.shufersal.co.il",
		PriceIndexURL: "https://prices.shufersal.co.il/FileObject/UpdateCategory?catID=2&storeId=0",
		StoreIndexURL: "https://prices.shufersal.co.il/FileObject/UpdateCategory?catID=5&storeId=0",
		Paginated:     true,
	},
	Victory: {
		Slug:          Victory,
		DisplayName:   "ויקטורי",
		BaseURL:       "http://matrixcatalog.co.il",
		PriceIndexURL: "http://matrixcatalog.co.il/NBCompetitionRegulations.aspx?code=7290696200003&fileType=pricefull",
		StoreIndexURL: "http://matrixcatalog.co.il/NBCompetitionRegulations.aspx?code=7290696200003&fileType=storesfull",
		Paginated:     false,
	},
}

// Get returns the configuration for a chain.
func Get(slug Slug) (Config, bool) {
	cfg, ok := Configs[slug]
	return cfg, ok
}

// IsValid checks whether a string names a supported chain.
func IsValid(value string) bool {
	for _, s := range Slugs {
		if string(s) == value {
			return true
		}
	}
	return false
}

// SlugStrings returns the supported slugs as plain strings.
func SlugStrings() []string {
	out := make([]string, len(Slugs))
	for i, s := range Slugs {
		out[i] = string(s)
	}
	return out
}
