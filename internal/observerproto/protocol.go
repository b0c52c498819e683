package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeSiteEvent = "SITE_EVENT"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the kind filter.
type SubscribeMsg struct {
	Type            string `json:"type" jsonschema:"required,enum=SUBSCRIBE"`
	ProtocolVersion string `json:"protocol_version" jsonschema:"required"`

	// Kinds limits delivered events. Empty means every kind.
	Kinds []string `json:"kinds,omitempty"`
	// Backlog asks for up to this many recent events before live ones.
	Backlog int `json:"backlog,omitempty" jsonschema:"minimum=0,maximum=1024"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version" jsonschema:"required"`
	WorldID         string      `json:"world_id" jsonschema:"required"`
	WorldParams     WorldParams `json:"world_params" jsonschema:"required"`
	BlockPalette    []string    `json:"block_palette" jsonschema:"required"`
	Counts          SiteCounts  `json:"counts" jsonschema:"required"`
	Towers          []TowerInfo `json:"towers" jsonschema:"required"`
}

type WorldParams struct {
	ChunkSize  [3]int `json:"chunk_size" jsonschema:"required"`
	Height     int    `json:"height" jsonschema:"required"`
	Seed       int64  `json:"seed" jsonschema:"required"`
	SeaLevel   int    `json:"sea_level" jsonschema:"required"`
	RegionSize int    `json:"region_size" jsonschema:"required"`
	Template   string `json:"template" jsonschema:"required"`
}

type SiteCounts struct {
	Pending  int `json:"pending" jsonschema:"required"`
	Checking int `json:"checking" jsonschema:"required"`
	Built    int `json:"built" jsonschema:"required"`
	Rejected int `json:"rejected" jsonschema:"required"`
}

type TowerInfo struct {
	Pos      [3]int `json:"pos" jsonschema:"required"`
	Template string `json:"template" jsonschema:"required"`
	Rotation int    `json:"rotation" jsonschema:"required"`
}

// Server -> Client. One per site event.
type SiteEventMsg struct {
	Type            string `json:"type" jsonschema:"required,enum=SITE_EVENT"`
	ProtocolVersion string `json:"protocol_version" jsonschema:"required"`
	Seq             uint64 `json:"seq" jsonschema:"required"`
	Kind            string `json:"kind" jsonschema:"required,enum=SITE_ADDED,enum=SITE_CHECKING,enum=SITE_BUILT,enum=SITE_RECLAIMED,enum=SITE_REJECTED,enum=SPAWN"`
	TimeMs          int64  `json:"time_ms" jsonschema:"required"`

	Pos        [3]int  `json:"pos" jsonschema:"required"`
	Flatness   int     `json:"flatness"`
	RawHeight  float32 `json:"raw_height"`
	PeakLike   bool    `json:"peak_like"`
	BiomeMatch bool    `json:"biome_match"`

	Template string      `json:"template,omitempty"`
	Rotation int         `json:"rotation,omitempty"`
	Attempt  int         `json:"attempt,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Spawns   []SpawnInfo `json:"spawns,omitempty"`
}

type SpawnInfo struct {
	Prefab string `json:"prefab" jsonschema:"required"`
	Pos    [3]int `json:"pos" jsonschema:"required"`
}
