package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

const testAdminToken = "registry-admin-token"

type testServer struct {
	srv    *httptest.Server
	client *Client // anonymous
	admin  *Client // sends testAdminToken
	repo   *memRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := newMemRepository()
	mux := http.NewServeMux()
	path, handler := NewRegistryServiceHandler(
		NewService(NewApp(repo, testOwner)),
		connect.WithInterceptors(NewAdminInterceptor(testAdminToken, testOwner)),
	)
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{
		srv:    srv,
		client: NewClient(srv.Client(), srv.URL),
		admin:  NewClient(srv.Client(), srv.URL, WithAdminToken(testAdminToken)),
		repo:   repo,
	}
}

func TestServiceSubmitAndQuery(t *testing.T) {
	ctx := context.Background()
	client := newTestServer(t).client

	meta, err := ParseMetadataHash("0x" + "11" + "00000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("ParseMetadataHash: %v", err)
	}

	sub, err := client.SubmitScore(ctx, testUser, 237, meta)
	if err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}
	if sub.ID == uuid.Nil {
		t.Error("expected a submission id")
	}
	if sub.Metadata != meta {
		t.Errorf("Metadata = %s, want %s", sub.Metadata, meta)
	}

	entry, err := client.LatestScore(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if !entry.Found || entry.Value != 237 || entry.Metadata != meta {
		t.Errorf("entry = %+v, want 237 with metadata", entry)
	}

	total, err := client.TotalSubmissions(ctx)
	if err != nil {
		t.Fatalf("TotalSubmissions: %v", err)
	}
	if total != 1 {
		t.Errorf("TotalSubmissions = %d, want 1", total)
	}
}

func TestServiceErrorCodes(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	client := ts.client
	forged := NewClient(ts.srv.Client(), ts.srv.URL, WithAdminToken("guess"))

	tests := []struct {
		name string
		call func() error
		want connect.Code
	}{
		{
			name: "score out of range",
			call: func() error {
				_, err := client.SubmitScore(ctx, testUser, MaxScore+1, MetadataHash{})
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "missing identity",
			call: func() error {
				_, err := client.LatestScore(ctx, "")
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "anonymous pause",
			call: func() error { return client.SetPaused(ctx, true) },
			want: connect.CodePermissionDenied,
		},
		{
			name: "anonymous clear",
			call: func() error { return client.ClearScore(ctx, testUser) },
			want: connect.CodePermissionDenied,
		},
		{
			name: "wrong token pause",
			call: func() error { return forged.SetPaused(ctx, true) },
			want: connect.CodePermissionDenied,
		},
		{
			name: "admin clear without identity",
			call: func() error { return ts.admin.ClearScore(ctx, "") },
			want: connect.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := connect.CodeOf(err); got != tt.want {
				t.Errorf("code = %v, want %v (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestServicePausedRejectsSubmissions(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	client := ts.client

	if err := ts.admin.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	_, err := client.SubmitScore(ctx, testUser, 200, MetadataHash{})
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Fatalf("SubmitScore while paused: code = %v, want FailedPrecondition (err: %v)", connect.CodeOf(err), err)
	}

	if err := ts.admin.SetPaused(ctx, false); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if _, err := client.SubmitScore(ctx, testUser, 200, MetadataHash{}); err != nil {
		t.Fatalf("SubmitScore after unpause: %v", err)
	}
}

func TestServiceRepositoryFailureIsInternal(t *testing.T) {
	ts := newTestServer(t)
	ts.repo.err = errors.New("connection refused")

	_, err := ts.client.SubmitScore(context.Background(), testUser, 200, MetadataHash{})
	if connect.CodeOf(err) != connect.CodeInternal {
		t.Fatalf("code = %v, want Internal (err: %v)", connect.CodeOf(err), err)
	}
}

func TestSubmitterReadiness(t *testing.T) {
	client := newTestServer(t).client

	if NewSubmitter(client, "", MetadataHash{}).Ready() {
		t.Error("submitter without identity should not be ready")
	}
	if NewSubmitter(nil, testUser, MetadataHash{}).Ready() {
		t.Error("submitter without client should not be ready")
	}

	s := NewSubmitter(client, testUser, MetadataHash{})
	if !s.Ready() {
		t.Fatal("expected submitter to be ready")
	}

	confirmation, err := s.Submit(context.Background(), 180)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := uuid.Parse(confirmation); err != nil {
		t.Errorf("confirmation %q is not a submission id: %v", confirmation, err)
	}

	entry, err := client.LatestScore(context.Background(), testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if entry.Value != 180 {
		t.Errorf("recorded %d, want 180", entry.Value)
	}
}

func TestSubmitterSurfacesRejection(t *testing.T) {
	ts := newTestServer(t)
	client := ts.client
	if err := ts.admin.SetPaused(context.Background(), true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}

	_, err := NewSubmitter(client, testUser, MetadataHash{}).Submit(context.Background(), 180)
	if err == nil {
		t.Fatal("expected rejection while paused")
	}
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("code = %v, want FailedPrecondition", connect.CodeOf(err))
	}
}

func TestServiceClearRequiresAdminToken(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)

	if _, err := ts.client.SubmitScore(ctx, testUser, 237, MetadataHash{}); err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}

	// Naming the owner in the request body grants nothing.
	type callerClearRequest struct {
		Caller   string `json:"caller"`
		Identity string `json:"identity"`
	}
	forged := connect.NewClient[callerClearRequest, ClearScoreResponse](
		ts.srv.Client(), ts.srv.URL+RegistryServiceClearScoreProcedure, connect.WithCodec(jsonCodec{}))
	req := connect.NewRequest(&callerClearRequest{Caller: testOwner, Identity: testUser})
	if _, err := forged.CallUnary(ctx, req); connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("clear with caller in body: code = %v, want PermissionDenied (err: %v)", connect.CodeOf(err), err)
	}

	entry, err := ts.client.LatestScore(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if !entry.Found || entry.Value != 237 {
		t.Fatalf("score was touched by a rejected clear: %+v", entry)
	}

	if err := ts.admin.ClearScore(ctx, testUser); err != nil {
		t.Fatalf("ClearScore with admin token: %v", err)
	}
	entry, err = ts.client.LatestScore(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if entry.Found {
		t.Errorf("expected cleared entry, got %+v", entry)
	}
	if got := ts.repo.events[len(ts.repo.events)-1]; got != "ScoreCleared" {
		t.Errorf("last event = %s, want ScoreCleared", got)
	}
}

func TestAdminInterceptorWithoutTokenAuthenticatesNobody(t *testing.T) {
	repo := newMemRepository()
	mux := http.NewServeMux()
	path, handler := NewRegistryServiceHandler(
		NewService(NewApp(repo, testOwner)),
		connect.WithInterceptors(NewAdminInterceptor("", testOwner)),
	)
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// An empty bearer token must not match an empty configured token.
	admin := NewClient(srv.Client(), srv.URL, WithAdminToken(""))
	if err := admin.SetPaused(context.Background(), true); connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("code = %v, want PermissionDenied (err: %v)", connect.CodeOf(err), err)
	}
	if len(repo.events) != 0 {
		t.Errorf("rejected call reached the repository: %v", repo.events)
	}
}
