package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lucentmedia/genstudio/internal/media"
)

// VideoStreamClient talks to the video encoding service. One client serves
// one library; the access key travels in the AccessKey header.
type VideoStreamClient struct {
	baseURL     string
	libraryID   string
	accessKey   string
	cdnHostname string
	httpClient  *http.Client
}

// NewVideoStreamClient returns a client for one video library.
func NewVideoStreamClient(baseURL string, libraryID string, accessKey string, cdnHostname string, httpClient *http.Client) *VideoStreamClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VideoStreamClient{
		baseURL:     baseURL,
		libraryID:   libraryID,
		accessKey:   accessKey,
		cdnHostname: cdnHostname,
		httpClient:  httpClient,
	}
}

// LibraryID returns the library this client serves, for webhook validation.
func (client *VideoStreamClient) LibraryID() string {
	return client.libraryID
}

type videoDetails struct {
	GUID          string `json:"guid"`
	Status        int    `json:"status"`
	LengthSeconds int    `json:"length"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

// CreateVideo registers a video object with the provider and returns its id
// together with the URL the client uploads the raw file to.
func (client *VideoStreamClient) CreateVideo(ctx context.Context, title string) (string, string, error) {
	requestBody, marshalError := json.Marshal(map[string]string{"title": title})
	if marshalError != nil {
		return "", "", fmt.Errorf("providers: encode create video request: %w", marshalError)
	}

	url := fmt.Sprintf("%s/library/%s/videos", client.baseURL, client.libraryID)
	request, requestError := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if requestError != nil {
		return "", "", fmt.Errorf("providers: build create video request: %w", requestError)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("AccessKey", client.accessKey)

	var created videoDetails
	if callError := client.call(request, &created); callError != nil {
		return "", "", callError
	}
	if created.GUID == "" {
		return "", "", fmt.Errorf("providers: create video response carries no id")
	}
	uploadURL := fmt.Sprintf("%s/library/%s/videos/%s", client.baseURL, client.libraryID, created.GUID)
	return created.GUID, uploadURL, nil
}

// FetchStatusCode reads the provider's raw numeric status for a video.
func (client *VideoStreamClient) FetchStatusCode(ctx context.Context, externalJobID string) (int, error) {
	details, fetchError := client.fetchDetails(ctx, externalJobID)
	if fetchError != nil {
		return 0, fetchError
	}
	return details.Status, nil
}

// FetchMetadata reads the extended description of a finished encode. The
// playback URLs are derived from the CDN hostname, matching the provider's
// published layout.
func (client *VideoStreamClient) FetchMetadata(ctx context.Context, externalJobID string) (media.Metadata, error) {
	details, fetchError := client.fetchDetails(ctx, externalJobID)
	if fetchError != nil {
		return media.Metadata{}, fetchError
	}
	return media.Metadata{
		DurationSeconds: details.LengthSeconds,
		Width:           details.Width,
		Height:          details.Height,
		PlaybackURL:     fmt.Sprintf("https://%s/%s/playlist.m3u8", client.cdnHostname, externalJobID),
		ThumbnailURL:    fmt.Sprintf("https://%s/%s/thumbnail.jpg", client.cdnHostname, externalJobID),
		PreviewURL:      fmt.Sprintf("https://%s/%s/preview.webp", client.cdnHostname, externalJobID),
	}, nil
}

// DeleteVideo removes the video object at the provider.
func (client *VideoStreamClient) DeleteVideo(ctx context.Context, externalJobID string) error {
	url := fmt.Sprintf("%s/library/%s/videos/%s", client.baseURL, client.libraryID, externalJobID)
	request, requestError := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if requestError != nil {
		return fmt.Errorf("providers: build delete video request: %w", requestError)
	}
	request.Header.Set("AccessKey", client.accessKey)
	return client.call(request, nil)
}

func (client *VideoStreamClient) fetchDetails(ctx context.Context, externalJobID string) (videoDetails, error) {
	url := fmt.Sprintf("%s/library/%s/videos/%s", client.baseURL, client.libraryID, externalJobID)
	request, requestError := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if requestError != nil {
		return videoDetails{}, fmt.Errorf("providers: build video details request: %w", requestError)
	}
	request.Header.Set("AccessKey", client.accessKey)

	var details videoDetails
	if callError := client.call(request, &details); callError != nil {
		return videoDetails{}, callError
	}
	return details, nil
}

func (client *VideoStreamClient) call(request *http.Request, out any) error {
	response, callError := client.httpClient.Do(request)
	if callError != nil {
		return fmt.Errorf("providers: video stream call: %w", callError)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return fmt.Errorf("providers: video stream call failed with status %d: %s", response.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if decodeError := json.NewDecoder(response.Body).Decode(out); decodeError != nil {
		return fmt.Errorf("providers: decode video stream response: %w", decodeError)
	}
	return nil
}
