package registry

import (
	"context"
	"fmt"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote RegistryService.
type Client struct {
	submitScore      *connect.Client[SubmitScoreRequest, SubmitScoreResponse]
	latestScore      *connect.Client[LatestScoreRequest, LatestScoreResponse]
	totalSubmissions *connect.Client[TotalSubmissionsRequest, TotalSubmissionsResponse]
	clearScore       *connect.Client[ClearScoreRequest, ClearScoreResponse]
	setPaused        *connect.Client[SetPausedRequest, SetPausedResponse]
}

// NewClient constructs a client for the RegistryService at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		submitScore:      connect.NewClient[SubmitScoreRequest, SubmitScoreResponse](httpClient, baseURL+RegistryServiceSubmitScoreProcedure, opts...),
		latestScore:      connect.NewClient[LatestScoreRequest, LatestScoreResponse](httpClient, baseURL+RegistryServiceLatestScoreProcedure, opts...),
		totalSubmissions: connect.NewClient[TotalSubmissionsRequest, TotalSubmissionsResponse](httpClient, baseURL+RegistryServiceTotalSubmissionsProcedure, opts...),
		clearScore:       connect.NewClient[ClearScoreRequest, ClearScoreResponse](httpClient, baseURL+RegistryServiceClearScoreProcedure, opts...),
		setPaused:        connect.NewClient[SetPausedRequest, SetPausedResponse](httpClient, baseURL+RegistryServiceSetPausedProcedure, opts...),
	}
}

func (c *Client) SubmitScore(ctx context.Context, identity string, score int64, metadata MetadataHash) (*Submission, error) {
	resp, err := c.submitScore.CallUnary(ctx, connect.NewRequest(&SubmitScoreRequest{
		Identity: identity,
		Score:    score,
		Metadata: metadata,
	}))
	if err != nil {
		return nil, err
	}
	return &resp.Msg.Submission, nil
}

func (c *Client) LatestScore(ctx context.Context, identity string) (*ScoreEntry, error) {
	resp, err := c.latestScore.CallUnary(ctx, connect.NewRequest(&LatestScoreRequest{Identity: identity}))
	if err != nil {
		return nil, err
	}
	return &resp.Msg.Entry, nil
}

func (c *Client) TotalSubmissions(ctx context.Context) (int64, error) {
	resp, err := c.totalSubmissions.CallUnary(ctx, connect.NewRequest(&TotalSubmissionsRequest{}))
	if err != nil {
		return 0, err
	}
	return resp.Msg.Total, nil
}

// ClearScore needs a client built with WithAdminToken.
func (c *Client) ClearScore(ctx context.Context, identity string) error {
	_, err := c.clearScore.CallUnary(ctx, connect.NewRequest(&ClearScoreRequest{Identity: identity}))
	return err
}

// SetPaused needs a client built with WithAdminToken.
func (c *Client) SetPaused(ctx context.Context, paused bool) error {
	_, err := c.setPaused.CallUnary(ctx, connect.NewRequest(&SetPausedRequest{Paused: paused}))
	return err
}

// Submitter records reaction times of one identity. It satisfies game.Submitter.
type Submitter struct {
	client   *Client
	identity string
	metadata MetadataHash
}

// NewSubmitter binds client to identity. An empty identity is never ready,
// the equivalent of a disconnected wallet.
func NewSubmitter(client *Client, identity string, metadata MetadataHash) *Submitter {
	return &Submitter{
		client:   client,
		identity: NormalizeIdentity(identity),
		metadata: metadata,
	}
}

func (s *Submitter) Ready() bool {
	return s.client != nil && s.identity != ""
}

// Submit returns the submission id as the confirmation identifier.
func (s *Submitter) Submit(ctx context.Context, reactionTimeMs int64) (string, error) {
	sub, err := s.client.SubmitScore(ctx, s.identity, reactionTimeMs, s.metadata)
	if err != nil {
		return "", fmt.Errorf("submit score: %w", err)
	}
	return sub.ID.String(), nil
}
