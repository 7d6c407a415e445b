package ipintel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

type header struct {
	Key   string
	Value string
}

// get issues a GET bounded by the context deadline and returns a copy of
// the body.
func get(ctx context.Context, client *fasthttp.Client, uri string, headers ...header) ([]byte, error) {
	request := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(request)
	response := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(response)

	request.Header.SetMethod(fasthttp.MethodGet)
	request.SetRequestURI(uri)
	for _, h := range headers {
		if h.Value != "" {
			request.Header.Set(h.Key, h.Value)
		}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := client.DoDeadline(request, response, deadline); err != nil {
		return nil, err
	}

	if response.StatusCode() >= fasthttp.StatusInternalServerError {
		return nil, fmt.Errorf("GET request failed, status code: %d", response.StatusCode())
	}

	body := append([]byte(nil), response.Body()...)
	if len(body) == 0 {
		return nil, errors.New("response body is empty")
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON body, status code: %d", response.StatusCode())
	}
	return body, nil
}

func endpoint(template, ip string) string {
	escaped := url.PathEscape(ip)
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, escaped)
	}
	return strings.TrimRight(template, "/") + "/" + escaped
}

// ReputationProvider queries an ipdetective-style endpoint through RapidAPI.
type ReputationProvider struct {
	client      *fasthttp.Client
	urlTemplate string
	apiKey      string
	host        string
}

func NewReputationProvider(cfg config.IPIntelConfig) *ReputationProvider {
	return &ReputationProvider{
		client:      &fasthttp.Client{Name: "karmapurgex"},
		urlTemplate: cfg.ReputationURL,
		apiKey:      cfg.RapidAPIKey,
		host:        cfg.RapidAPIHost,
	}
}

func (p *ReputationProvider) Name() string { return "reputation" }

func (p *ReputationProvider) Lookup(ctx context.Context, ip string) (*Result, error) {
	body, err := get(ctx, p.client, endpoint(p.urlTemplate, ip),
		header{"x-rapidapi-key", p.apiKey},
		header{"x-rapidapi-host", p.host},
	)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	if e := doc.Get("error"); e.Exists() && e.String() != "" {
		return nil, fmt.Errorf("provider error: %s", e.String())
	}

	return &Result{
		IP: ip,
		Reputation: &Reputation{
			Bot:            doc.Get("bot").Bool(),
			Type:           doc.Get("type").String(),
			ASNDescription: doc.Get("asn_description").String(),
			CountryCode:    doc.Get("country_code").String(),
		},
		Success: true,
	}, nil
}

// GeoProvider queries an ipwho.is-style endpoint.
type GeoProvider struct {
	client      *fasthttp.Client
	urlTemplate string
}

func NewGeoProvider(cfg config.IPIntelConfig) *GeoProvider {
	return &GeoProvider{
		client:      &fasthttp.Client{Name: "karmapurgex"},
		urlTemplate: cfg.GeoURL,
	}
}

func (p *GeoProvider) Name() string { return "geo" }

func (p *GeoProvider) Lookup(ctx context.Context, ip string) (*Result, error) {
	body, err := get(ctx, p.client, endpoint(p.urlTemplate, ip))
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	if !doc.Get("success").Bool() {
		return nil, fmt.Errorf("provider error: %s", doc.Get("message").String())
	}

	return &Result{
		IP: ip,
		Geo: &Geo{
			Country:     doc.Get("country").String(),
			CountryCode: doc.Get("country_code").String(),
			Region:      doc.Get("region").String(),
			City:        doc.Get("city").String(),
			Latitude:    doc.Get("latitude").Float(),
			Longitude:   doc.Get("longitude").Float(),
			ISP:         doc.Get("connection.isp").String(),
			FlagImg:     doc.Get("flag.img").String(),
			Timezone:    doc.Get("timezone.id").String(),
		},
		Success: true,
	}, nil
}
