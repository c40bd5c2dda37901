package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	value string
	err   error
	calls int
	names []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.names = append(f.names, aws.ToString(in.Name))
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(f.value)}}, nil
}

func noLocalKey() (string, error) { return "", ErrNoAPIKey }

func TestResolverPrefersLocalKey(t *testing.T) {
	fake := &fakeSSM{value: "from-ssm"}
	r := NewResolver(fake, "")
	r.local = func() (string, error) { return "from-env", nil }

	key, err := r.Key(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "from-env" {
		t.Errorf("expected from-env, got %q", key)
	}
	if fake.calls != 0 {
		t.Errorf("SSM called %d times, want 0", fake.calls)
	}
}

func TestResolverReadsAndCachesSSM(t *testing.T) {
	fake := &fakeSSM{value: "from-ssm"}
	r := NewResolver(fake, "/custom/param")
	r.local = noLocalKey

	for i := 0; i < 3; i++ {
		key, err := r.Key(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "from-ssm" {
			t.Errorf("expected from-ssm, got %q", key)
		}
	}
	if fake.calls != 1 {
		t.Errorf("SSM called %d times, want 1", fake.calls)
	}
	if fake.names[0] != "/custom/param" {
		t.Errorf("parameter = %q, want /custom/param", fake.names[0])
	}
}

func TestResolverRefreshesAfterTTL(t *testing.T) {
	fake := &fakeSSM{value: "v1"}
	r := NewResolver(fake, "")
	r.local = noLocalKey
	r.cacheTTL = time.Nanosecond

	if _, err := r.Key(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(time.Millisecond)
	fake.value = "v2"
	fake.err = errors.New("throttled")

	key, err := r.Key(context.Background())
	if err != nil {
		t.Fatalf("stale key should be served on refresh failure: %v", err)
	}
	if key != "v1" {
		t.Errorf("expected stale v1, got %q", key)
	}

	fake.err = nil
	key, _ = r.Key(context.Background())
	if key != "v2" {
		t.Errorf("expected refreshed v2, got %q", key)
	}
	if fake.names[0] != DefaultSSMParam {
		t.Errorf("parameter = %q, want default", fake.names[0])
	}
}

func TestResolverErrors(t *testing.T) {
	t.Run("no ssm", func(t *testing.T) {
		r := NewResolver(nil, "")
		r.local = noLocalKey
		if _, err := r.Key(context.Background()); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("ssm failure", func(t *testing.T) {
		r := NewResolver(&fakeSSM{err: errors.New("access denied")}, "")
		r.local = noLocalKey
		if _, err := r.Key(context.Background()); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty parameter", func(t *testing.T) {
		r := NewResolver(&fakeSSM{value: ""}, "")
		r.local = noLocalKey
		if _, err := r.Key(context.Background()); err == nil {
			t.Error("expected error for empty parameter")
		}
	})
}
