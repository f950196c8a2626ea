package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"newsdesk/app/policy"
)

// Video quality thresholds: short clips, obscure uploads and live
// broadcasts never make good section material.
const (
	videoMinDuration    = 120 * time.Second
	videoMinViews       = 2000
	videoMinViewsPerDay = 300
	videoMaxResults     = 25
)

// videoNegativeKeywords exclude low-signal formats.
var videoNegativeKeywords = []string{"#shorts", "reaction", "compilation", "unboxing", "asmr"}

// VideoProvider queries the video platform's search endpoint and hydrates
// the hits with a details call for statistics and duration.
type VideoProvider struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	now     func() time.Time
}

func NewVideoProvider(apiKey string, timeout time.Duration) *VideoProvider {
	return &VideoProvider{
		client:  resty.New().SetTimeout(timeout),
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/youtube/v3",
		now:     time.Now,
	}
}

func (p *VideoProvider) Name() string {
	return ProviderVideo
}

type videoSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type videoDetailsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title                string `json:"title"`
			Description          string `json:"description"`
			PublishedAt          string `json:"publishedAt"`
			LiveBroadcastContent string `json:"liveBroadcastContent"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Fetch searches for the section's query and keeps videos that pass the
// duration, popularity, negative-keyword and live-broadcast filters.
func (p *VideoProvider) Fetch(ctx context.Context, q policy.DiscoveryQuery) ([]Candidate, error) {
	if p.apiKey == "" || q.YouTubeQuery == "" {
		return nil, nil
	}

	var search videoSearchResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":       "id",
			"q":          q.YouTubeQuery,
			"type":       "video",
			"order":      "date",
			"maxResults": strconv.Itoa(videoMaxResults),
			"key":        p.apiKey,
		}).
		SetResult(&search).
		Get(p.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("video search: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("video search: HTTP %d", resp.StatusCode())
	}

	if len(search.Items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}

	var details videoDetailsResponse
	resp, err = p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part": "snippet,contentDetails,statistics",
			"id":   strings.Join(ids, ","),
			"key":  p.apiKey,
		}).
		SetResult(&details).
		Get(p.baseURL + "/videos")
	if err != nil {
		return nil, fmt.Errorf("video details: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("video details: HTTP %d", resp.StatusCode())
	}

	now := p.now()
	var candidates []Candidate

	for _, v := range details.Items {
		publishedAt, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt)
		if err != nil {
			publishedAt = now
		}

		views, _ := strconv.ParseInt(v.Statistics.ViewCount, 10, 64)

		if !videoPasses(v.Snippet.Title, v.Snippet.LiveBroadcastContent,
			parseISODuration(v.ContentDetails.Duration), views, now.Sub(publishedAt)) {
			continue
		}

		candidates = append(candidates, Candidate{
			Title:       v.Snippet.Title,
			URL:         "https://www.youtube.com/watch?v=" + v.ID,
			Snippet:     v.Snippet.Description,
			PublishedAt: publishedAt,
			Provider:    ProviderVideo,
			Trust:       VideoTrustScore,
		})
	}

	return candidates, nil
}

// videoPasses applies the provider quality rules: minimum duration, a view
// floor (absolute or per-day for fresh uploads), negative keywords, and no
// live broadcasts.
func videoPasses(title, liveBroadcast string, duration time.Duration, views int64, age time.Duration) bool {
	if liveBroadcast != "" && liveBroadcast != "none" {
		return false
	}
	if duration < videoMinDuration {
		return false
	}

	lower := strings.ToLower(title)
	for _, kw := range videoNegativeKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}

	if views >= videoMinViews {
		return true
	}
	days := age.Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(views)/days >= videoMinViewsPerDay
}

var isoDurationRegex = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration parses the PT#H#M#S duration format used by the video
// API. Unparseable durations come back as zero, which the minimum-duration
// filter then rejects.
func parseISODuration(s string) time.Duration {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])

	return time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second
}
