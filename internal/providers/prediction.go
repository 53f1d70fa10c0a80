package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lucentmedia/genstudio/internal/extjob"
)

// PredictionClient binds a submit/poll prediction API to the job poller.
// Submit posts the stored input and returns the prediction id; Poll reads
// the prediction's status and output locations.
type PredictionClient struct {
	baseURL    string
	model      string
	apiKey     string
	input      map[string]any
	httpClient *http.Client
}

// NewImageEditOperation returns the async image edit binding for one request.
func NewImageEditOperation(baseURL string, model string, apiKey string, prompt string, imageURLs []string, httpClient *http.Client) *PredictionClient {
	return newPredictionClient(baseURL, model, apiKey, map[string]any{
		"prompt": prompt,
		"images": imageURLs,
	}, httpClient)
}

// NewVideoAnimateOperation returns the async image-to-video binding for one
// request.
func NewVideoAnimateOperation(baseURL string, model string, apiKey string, prompt string, imageURL string, httpClient *http.Client) *PredictionClient {
	return newPredictionClient(baseURL, model, apiKey, map[string]any{
		"prompt": prompt,
		"image":  imageURL,
	}, httpClient)
}

func newPredictionClient(baseURL string, model string, apiKey string, input map[string]any, httpClient *http.Client) *PredictionClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PredictionClient{baseURL: baseURL, model: model, apiKey: apiKey, input: input, httpClient: httpClient}
}

type predictionEnvelope struct {
	Data struct {
		ID      string   `json:"id"`
		Status  string   `json:"status"`
		Outputs []string `json:"outputs"`
		Error   string   `json:"error"`
	} `json:"data"`
	Message string `json:"message"`
}

// Submit starts the prediction and returns its handle.
func (client *PredictionClient) Submit(ctx context.Context) (extjob.Handle, error) {
	requestBody, marshalError := json.Marshal(client.input)
	if marshalError != nil {
		return extjob.Handle{}, fmt.Errorf("providers: encode prediction input: %w", marshalError)
	}

	url := fmt.Sprintf("%s/%s", client.baseURL, client.model)
	request, requestError := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if requestError != nil {
		return extjob.Handle{}, fmt.Errorf("providers: build submit request: %w", requestError)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+client.apiKey)

	envelope, callError := client.call(request)
	if callError != nil {
		return extjob.Handle{}, callError
	}
	if envelope.Data.ID == "" {
		return extjob.Handle{}, fmt.Errorf("providers: submit response carries no prediction id")
	}
	return extjob.Handle{ID: envelope.Data.ID}, nil
}

// Poll reads the prediction's current state. Provider statuses map onto the
// poller contract: "completed" is done with outputs, "failed" is a terminal
// job error, everything else means keep waiting.
func (client *PredictionClient) Poll(ctx context.Context, handle extjob.Handle) (extjob.PollResult, error) {
	url := fmt.Sprintf("%s/predictions/%s/result", client.baseURL, handle.ID)
	request, requestError := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if requestError != nil {
		return extjob.PollResult{}, fmt.Errorf("providers: build poll request: %w", requestError)
	}
	request.Header.Set("Authorization", "Bearer "+client.apiKey)

	envelope, callError := client.call(request)
	if callError != nil {
		return extjob.PollResult{}, callError
	}

	switch envelope.Data.Status {
	case "completed":
		if len(envelope.Data.Outputs) == 0 {
			return extjob.PollResult{Done: true, Failed: true, Message: "prediction completed without outputs"}, nil
		}
		return extjob.PollResult{Done: true, ResultURL: envelope.Data.Outputs[0]}, nil
	case "failed":
		message := envelope.Data.Error
		if message == "" {
			message = "prediction failed"
		}
		return extjob.PollResult{Done: true, Failed: true, Message: message}, nil
	default:
		return extjob.PollResult{}, nil
	}
}

func (client *PredictionClient) call(request *http.Request) (predictionEnvelope, error) {
	response, callError := client.httpClient.Do(request)
	if callError != nil {
		return predictionEnvelope{}, fmt.Errorf("providers: prediction call: %w", callError)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return predictionEnvelope{}, fmt.Errorf("providers: prediction call failed with status %d: %s", response.StatusCode, body)
	}
	var envelope predictionEnvelope
	if decodeError := json.NewDecoder(response.Body).Decode(&envelope); decodeError != nil {
		return predictionEnvelope{}, fmt.Errorf("providers: decode prediction response: %w", decodeError)
	}
	return envelope, nil
}
