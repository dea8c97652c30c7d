package registry

import (
	"context"
	"errors"

	"connectrpc.com/connect"
)

// RegistryApp defines what the service layer needs from the registry application
type RegistryApp interface {
	SubmitScore(ctx context.Context, req SubmitScoreRequest) (*Submission, error)
	LatestScoreOf(ctx context.Context, identity string) (*ScoreEntry, error)
	TotalSubmissions(ctx context.Context) (int64, error)
	ClearScore(ctx context.Context, req ClearScoreRequest) error
	SetPaused(ctx context.Context, req SetPausedRequest) error
}

// Service implements the RegistryService Connect interface
type Service struct {
	app RegistryApp
}

// NewService creates a new registry Connect service
func NewService(app RegistryApp) *Service {
	return &Service{
		app: app,
	}
}

// Verify that Service implements the RegistryServiceHandler interface
var _ RegistryServiceHandler = (*Service)(nil)

// SubmitScore records the latest score of the caller's identity
func (s *Service) SubmitScore(ctx context.Context, req *connect.Request[SubmitScoreRequest]) (*connect.Response[SubmitScoreResponse], error) {
	sub, err := s.app.SubmitScore(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SubmitScoreResponse{Submission: *sub}), nil
}

// LatestScore returns the latest score of an identity
func (s *Service) LatestScore(ctx context.Context, req *connect.Request[LatestScoreRequest]) (*connect.Response[LatestScoreResponse], error) {
	entry, err := s.app.LatestScoreOf(ctx, req.Msg.Identity)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LatestScoreResponse{Entry: *entry}), nil
}

// TotalSubmissions returns the number of accepted submissions
func (s *Service) TotalSubmissions(ctx context.Context, req *connect.Request[TotalSubmissionsRequest]) (*connect.Response[TotalSubmissionsResponse], error) {
	total, err := s.app.TotalSubmissions(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TotalSubmissionsResponse{Total: total}), nil
}

// ClearScore removes an identity's score (admin token only)
func (s *Service) ClearScore(ctx context.Context, req *connect.Request[ClearScoreRequest]) (*connect.Response[ClearScoreResponse], error) {
	if err := s.app.ClearScore(ctx, *req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ClearScoreResponse{Success: true}), nil
}

// SetPaused toggles submissions (admin token only)
func (s *Service) SetPaused(ctx context.Context, req *connect.Request[SetPausedRequest]) (*connect.Response[SetPausedResponse], error) {
	if err := s.app.SetPaused(ctx, *req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetPausedResponse{Paused: req.Msg.Paused}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrScoreOutOfRange), errors.Is(err, ErrInvalidIdentity):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrPaused):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrUnauthorized):
		return connect.NewError(connect.CodePermissionDenied, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
