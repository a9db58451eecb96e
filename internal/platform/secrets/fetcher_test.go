package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeClient struct {
	payloads map[string]string
	err      error
	calls    int
}

func (c *fakeClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	value, ok := c.payloads[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (c *fakeClient) Close() error { return nil }

func TestResolveRemoteAndCache(t *testing.T) {
	client := &fakeClient{payloads: map[string]string{
		"projects/maplecart-dev/secrets/stripe-api/versions/latest": "sk_test_abc",
	}}
	f, err := NewFetcher(context.Background(),
		WithClient(client),
		WithProject("maplecart-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer f.Close()

	value, err := f.Resolve(context.Background(), "secret://stripe-api")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_test_abc" {
		t.Errorf("unexpected value %q", value)
	}

	if _, err := f.Resolve(context.Background(), "secret://stripe-api"); err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}
	if client.calls != 1 {
		t.Errorf("expected cached second lookup, got %d remote calls", client.calls)
	}

	f.Invalidate("secret://stripe-api")
	if _, err := f.Resolve(context.Background(), "secret://stripe-api"); err != nil {
		t.Fatalf("Resolve after invalidate returned error: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("expected remote refetch after invalidate, got %d calls", client.calls)
	}
}

func TestResolveVersionAndProjectOverride(t *testing.T) {
	client := &fakeClient{payloads: map[string]string{
		"projects/other-proj/secrets/url-key/versions/3": "pinned",
	}}
	f, err := NewFetcher(context.Background(), WithClient(client), WithProject("maplecart-dev"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer f.Close()

	value, err := f.Resolve(context.Background(), "secret://url-key?version=3&project=other-proj")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "pinned" {
		t.Errorf("unexpected value %q", value)
	}
}

func TestResolveFallsBackOnUnavailable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("# local secrets\nsecret://stripe-api=sk_local\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	client := &fakeClient{err: status.Error(codes.Unavailable, "down")}
	f, err := NewFetcher(context.Background(), WithClient(client), WithProject("maplecart-dev"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer f.Close()

	value, err := f.Resolve(context.Background(), "secret://stripe-api")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_local" {
		t.Errorf("expected fallback value, got %q", value)
	}
}

func TestResolveSurfacesHardErrors(t *testing.T) {
	client := &fakeClient{err: status.Error(codes.Internal, "boom")}
	f, err := NewFetcher(context.Background(), WithClient(client), WithProject("maplecart-dev"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer f.Close()

	if _, err := f.Resolve(context.Background(), "secret://stripe-api"); err == nil {
		t.Fatal("expected error for internal failure")
	}
}

func TestParseReferenceRejectsBadInput(t *testing.T) {
	for _, ref := range []string{"", "vault://x", "secret://"} {
		if _, err := parseReference(ref); err == nil {
			t.Errorf("expected parse error for %q", ref)
		}
	}
}
