package pipeline

type TrackingObject struct {
	IMEI     string `json:"imei"`
	Codec    string `json:"codec"`
	Datetime string `json:"dt"`
	Priority uint8  `json:"priority"`

	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Alt  int     `json:"alt"`
	Spd  int     `json:"spd"`
	Crs  int     `json:"crs"`
	Sats int     `json:"sats"`

	EventIO uint16            `json:"event_io"`
	PermIO  map[string]uint64 `json:"perm_io"`
	VarIO   map[string]string `json:"var_io,omitempty"` // hex encoded

	MsgType int `json:"msg_type"` // 1=live, 0=buffer
	Fix     int `json:"fix"`      // 1 when sats>3 and coords are valid
}
