package model

import "time"

// DateLayout is the day bucket format of usage counters, always in UTC.
const DateLayout = "2006-01-02"

// DailyUsage counts allowed redirects for one API key, shortlink and day.
type DailyUsage struct {
	APIKey       string    `json:"apiKey" bson:"apiKey"`
	ShortlinkKey string    `json:"shortlinkKey" bson:"shortlinkKey"`
	Date         string    `json:"date" bson:"date"`
	Count        int64     `json:"count" bson:"count"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// DayOf returns the usage bucket for t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// SubscriptionUsage is the response body of the subscription endpoint.
type SubscriptionUsage struct {
	Profile     Profile   `json:"profile"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
}
