package security

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"

	"github.com/rs/zerolog/log"
)

const defaultSafeBrowsingURL = "https://safebrowsing.googleapis.com/v4/threatMatches:find"

// LivenessChecker classifies a destination URL as LIVE, DEAD or RED FLAG.
type LivenessChecker struct {
	safeBrowsingAPIKey string
	safeBrowsingURL    string
	blocklist          []string
	timeout            time.Duration
	httpClient         *http.Client
}

func NewLivenessChecker(cfg config.SecurityConfig) *LivenessChecker {
	timeout := time.Duration(cfg.LivenessTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LivenessChecker{
		safeBrowsingAPIKey: cfg.SafeBrowsingAPIKey,
		safeBrowsingURL:    defaultSafeBrowsingURL,
		blocklist:          defaultBlocklist(),
		timeout:            timeout,
		httpClient:         &http.Client{Timeout: timeout},
	}
}

// Check flags the URL RED FLAG on a blocklist or Safe Browsing match,
// otherwise reports LIVE when a HEAD request gets any response within the
// timeout. Network errors and timeouts are DEAD.
// A Safe Browsing outage does not flag the URL.
func (c *LivenessChecker) Check(ctx context.Context, rawURL string) model.LivenessStatus {
	if c.blocklisted(rawURL) {
		log.Warn().Str("url", rawURL).Msg("URL matched local blocklist")
		return model.LivenessRedFlag
	}

	if c.safeBrowsingAPIKey != "" {
		threats, err := c.checkSafeBrowsing(ctx, rawURL)
		if err != nil {
			log.Error().Err(err).Str("url", rawURL).Msg("Safe Browsing API check failed")
		} else if len(threats) > 0 {
			log.Warn().Str("url", rawURL).Strs("threats", threats).Msg("URL flagged by Safe Browsing API")
			return model.LivenessRedFlag
		}
	}

	headCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(headCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return model.LivenessDead
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("Liveness probe failed")
		return model.LivenessDead
	}
	resp.Body.Close()

	// Any completed response is LIVE, 403 and 405 included.
	return model.LivenessLive
}

func (c *LivenessChecker) blocklisted(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, pattern := range c.blocklist {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

type safeBrowsingRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string      `json:"threatTypes"`
		PlatformTypes    []string      `json:"platformTypes"`
		ThreatEntryTypes []string      `json:"threatEntryTypes"`
		ThreatEntries    []threatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type safeBrowsingResponse struct {
	Matches []struct {
		ThreatType string      `json:"threatType"`
		Threat     threatEntry `json:"threat"`
	} `json:"matches"`
}

func (c *LivenessChecker) checkSafeBrowsing(ctx context.Context, rawURL string) ([]string, error) {
	body := safeBrowsingRequest{}
	body.Client.ClientID = "karmapurgex"
	body.Client.ClientVersion = "1.0.0"
	body.ThreatInfo.ThreatTypes = []string{
		"MALWARE",
		"SOCIAL_ENGINEERING",
		"UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION",
	}
	body.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	body.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	body.ThreatInfo.ThreatEntries = []threatEntry{{URL: rawURL}}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.safeBrowsingURL+"?key="+c.safeBrowsingAPIKey, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("safe browsing API returned non-200 status: " + resp.Status)
	}

	var sbResp safeBrowsingResponse
	if err := json.NewDecoder(resp.Body).Decode(&sbResp); err != nil {
		return nil, err
	}

	threats := make([]string, 0, len(sbResp.Matches))
	for _, m := range sbResp.Matches {
		threats = append(threats, m.ThreatType)
	}
	return threats, nil
}

func defaultBlocklist() []string {
	return []string{
		"account-verify",
		"confirm-account",
		"secure-login",
		"verify-identity",
		"suspended-account",
		"free-bitcoin",
		".exe?",
		".scr?",
	}
}
