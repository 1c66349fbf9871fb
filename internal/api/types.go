package api

// MarketView is the response of GET /{worldOrDc}/{ids} normalized to the
// multi-item shape. A single-id request returns the bare item upstream.
type MarketView struct {
	ItemIDs []int32              `json:"itemIDs"`
	Items   map[int32]MarketItem `json:"items"`
}

// MarketItem is the current board state of one item.
type MarketItem struct {
	ItemID         int32         `json:"itemID"`
	WorldID        *int32        `json:"worldID,omitempty"` // Set for world queries
	LastUploadTime int64         `json:"lastUploadTime"`    // ms since epoch
	Listings       []ListingView `json:"listings"`
	RecentHistory  []SaleView    `json:"recentHistory"`
}

// ListingView is one listing as reported by the REST API.
type ListingView struct {
	LastReviewTime int64     `json:"lastReviewTime"` // Unix seconds
	PricePerUnit   int32     `json:"pricePerUnit"`
	Quantity       int32     `json:"quantity"`
	WorldID        *int32    `json:"worldID,omitempty"` // Set for datacenter/region queries
	WorldName      string    `json:"worldName,omitempty"`
	HQ             bool      `json:"hq"`
	OnMannequin    bool      `json:"onMannequin"`
	RetainerID     string    `json:"retainerID"`
	RetainerName   string    `json:"retainerName"`
	RetainerCity   int32     `json:"retainerCity"`
	SellerID       string    `json:"sellerID"`
	CreatorName    string    `json:"creatorName"`
	Total          int64     `json:"total"`
	Tax            int64     `json:"tax"`
	Materia        []Materia `json:"materia,omitempty"`
}

// Materia is a melded materia on a listed item.
type Materia struct {
	SlotID    int32 `json:"slotID"`
	MateriaID int32 `json:"materiaID"`
}

// SaleView is one completed sale as reported by the REST API.
type SaleView struct {
	HQ           bool   `json:"hq"`
	PricePerUnit int32  `json:"pricePerUnit"`
	Quantity     int32  `json:"quantity"`
	Timestamp    int64  `json:"timestamp"` // Unix seconds
	OnMannequin  bool   `json:"onMannequin"`
	WorldID      *int32 `json:"worldID,omitempty"`
	WorldName    string `json:"worldName,omitempty"`
	BuyerName    string `json:"buyerName"`
	Total        int64  `json:"total"`
}

// RecentlyUpdatedResponse from GET /extra/stats/most-recently-updated
type RecentlyUpdatedResponse struct {
	Items []WorldItemRecency `json:"items"`
}

// WorldItemRecency reports when a board was last uploaded.
type WorldItemRecency struct {
	ItemID         int32  `json:"itemID"`
	LastUploadTime int64  `json:"lastUploadTime"` // ms since epoch
	WorldID        int32  `json:"worldID"`
	WorldName      string `json:"worldName"`
}

// DataCenterView from GET /data-centers
type DataCenterView struct {
	Name   string  `json:"name"`
	Region string  `json:"region"`
	Worlds []int32 `json:"worlds"`
}

// WorldView from GET /worlds
type WorldView struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}
