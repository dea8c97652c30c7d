package registry

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// RegistryServiceName is the fully-qualified name of the RegistryService service.
const RegistryServiceName = "registry.v1.RegistryService"

const (
	RegistryServiceSubmitScoreProcedure      = "/registry.v1.RegistryService/SubmitScore"
	RegistryServiceLatestScoreProcedure      = "/registry.v1.RegistryService/LatestScore"
	RegistryServiceTotalSubmissionsProcedure = "/registry.v1.RegistryService/TotalSubmissions"
	RegistryServiceClearScoreProcedure       = "/registry.v1.RegistryService/ClearScore"
	RegistryServiceSetPausedProcedure        = "/registry.v1.RegistryService/SetPaused"
)

// RegistryServiceHandler is implemented by Service.
type RegistryServiceHandler interface {
	SubmitScore(context.Context, *connect.Request[SubmitScoreRequest]) (*connect.Response[SubmitScoreResponse], error)
	LatestScore(context.Context, *connect.Request[LatestScoreRequest]) (*connect.Response[LatestScoreResponse], error)
	TotalSubmissions(context.Context, *connect.Request[TotalSubmissionsRequest]) (*connect.Response[TotalSubmissionsResponse], error)
	ClearScore(context.Context, *connect.Request[ClearScoreRequest]) (*connect.Response[ClearScoreResponse], error)
	SetPaused(context.Context, *connect.Request[SetPausedRequest]) (*connect.Response[SetPausedResponse], error)
}

// NewRegistryServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewRegistryServiceHandler(svc RegistryServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	submitScore := connect.NewUnaryHandler(RegistryServiceSubmitScoreProcedure, svc.SubmitScore, opts...)
	latestScore := connect.NewUnaryHandler(RegistryServiceLatestScoreProcedure, svc.LatestScore, opts...)
	totalSubmissions := connect.NewUnaryHandler(RegistryServiceTotalSubmissionsProcedure, svc.TotalSubmissions, opts...)
	clearScore := connect.NewUnaryHandler(RegistryServiceClearScoreProcedure, svc.ClearScore, opts...)
	setPaused := connect.NewUnaryHandler(RegistryServiceSetPausedProcedure, svc.SetPaused, opts...)

	return "/" + RegistryServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RegistryServiceSubmitScoreProcedure:
			submitScore.ServeHTTP(w, r)
		case RegistryServiceLatestScoreProcedure:
			latestScore.ServeHTTP(w, r)
		case RegistryServiceTotalSubmissionsProcedure:
			totalSubmissions.ServeHTTP(w, r)
		case RegistryServiceClearScoreProcedure:
			clearScore.ServeHTTP(w, r)
		case RegistryServiceSetPausedProcedure:
			setPaused.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
