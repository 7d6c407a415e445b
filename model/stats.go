package model

// DeviceCounts splits a count by visitor device.
type DeviceCounts struct {
	Desktop int64 `json:"desktop"`
	Mobile  int64 `json:"mobile"`
}

func (d *DeviceCounts) Add(device DeviceType) {
	if device == DeviceMobile {
		d.Mobile++
		return
	}
	d.Desktop++
}

type LinkStats struct {
	Key     string `json:"key"`
	URL     string `json:"url"`
	Total   int64  `json:"total"`
	Humans  int64  `json:"humans"`
	Bots    int64  `json:"bots"`
	Blocked int64  `json:"blocked"`
}

type DayDeviceStats struct {
	Date    string `json:"date"`
	Desktop int64  `json:"desktop"`
	Mobile  int64  `json:"mobile"`
}

// AccountStats aggregates every visit to the shortlinks of one owner.
type AccountStats struct {
	APIKey          string           `json:"apiKey"`
	TotalLinks      int              `json:"totalLinks"`
	TotalVisits     int64            `json:"totalVisits"`
	Humans          int64            `json:"humans"`
	Bots            int64            `json:"bots"`
	Blocked         int64            `json:"blocked"`
	Devices         DeviceCounts     `json:"devices"`
	PerLink         []LinkStats      `json:"perLinkStats"`
	ChartData       []DayDeviceStats `json:"chartData"`
	HumansByDevice  DeviceCounts     `json:"humansByDevice"`
	BotsByDevice    DeviceCounts     `json:"botsByDevice"`
	BlockedByDevice DeviceCounts     `json:"blockedByDevice"`
}
