package model

import "time"

const (
	VisitWhitelisted = "Whitelisted"
	VisitBlacklisted = "Blacklisted"
	VisitUnknown     = "Unknown"
)

type Location struct {
	Country     string  `json:"country" bson:"country"`
	CountryCode string  `json:"countryCode" bson:"countryCode"`
	Region      string  `json:"region" bson:"region"`
	City        string  `json:"city" bson:"city"`
	Latitude    float64 `json:"latitude" bson:"latitude"`
	Longitude   float64 `json:"longitude" bson:"longitude"`
	ISP         string  `json:"isp" bson:"isp"`
	FlagImg     string  `json:"flagImg,omitempty" bson:"flagImg,omitempty"`
}

// Visit is one logged resolution attempt with the context it was judged in.
type Visit struct {
	ID           string     `json:"id" bson:"id"`
	ShortlinkKey string     `json:"shortlinkKey" bson:"shortlinkKey"`
	ShortlinkID  string     `json:"shortlinkId" bson:"shortlinkId"`
	Owner        string     `json:"owner" bson:"owner"`
	APIKey       string     `json:"apiKey" bson:"apiKey"`
	VisitedAt    time.Time  `json:"visitedAt" bson:"visitedAt"`
	IP           string     `json:"ip" bson:"ip"`
	UserAgent    string     `json:"userAgent" bson:"userAgent"`
	Device       DeviceType `json:"device" bson:"device"`
	Location     Location   `json:"location" bson:"location"`
	Timezone     string     `json:"timezone,omitempty" bson:"timezone,omitempty"`
	Type         string     `json:"type" bson:"type"`
	IsBot        bool       `json:"isBot" bson:"isBot"`
	IsBlocked    bool       `json:"isBlocked" bson:"isBlocked"`
	BlockReason  string     `json:"blockReason" bson:"blockReason"`
}
