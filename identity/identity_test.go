package identity

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/caio-sobreiro/dicomarc/types"
)

var (
	hospA = types.IDWithIssuer{ID: "123", Issuer: "HOSP_A"}
	hospB = types.IDWithIssuer{ID: "A-77", Issuer: "HOSP_B"}
	hospC = types.IDWithIssuer{ID: "9", Issuer: "HOSP_C"}
)

func sorted(ids []types.IDWithIssuer) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	slices.Sort(out)
	return out
}

func TestStatic_Resolve(t *testing.T) {
	s := NewStatic([]types.IDWithIssuer{hospA, hospB})
	s.Link(hospC, hospB)

	for _, pid := range []types.IDWithIssuer{hospA, hospB, hospC} {
		got, err := s.Resolve(context.Background(), pid)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", pid, err)
		}
		want := []string{"123^^^HOSP_A", "9^^^HOSP_C", "A-77^^^HOSP_B"}
		if !slices.Equal(sorted(got), want) {
			t.Errorf("Resolve(%s) = %v, want %v", pid, sorted(got), want)
		}
	}
	if got, _ := s.Resolve(context.Background(), types.IDWithIssuer{ID: "404"}); got != nil {
		t.Errorf("Resolve(unknown) = %v, want nil", got)
	}
}

// fakeRedis keeps sets in a map
type fakeRedis struct {
	sets map[string][]string
	err  error
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.sets[key], f.err)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	var added int64
	for _, m := range members {
		s := m.(string)
		if !slices.Contains(f.sets[key], s) {
			f.sets[key] = append(f.sets[key], s)
			added++
		}
	}
	return redis.NewIntResult(added, f.err)
}

func TestRedis_Resolve(t *testing.T) {
	client := &fakeRedis{sets: make(map[string][]string)}
	r := NewRedis(client)
	ctx := context.Background()

	if err := r.Link(ctx, hospA, hospB, hospC); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if got := client.sets[KeyPrefix+"123^^^HOSP_A"]; len(got) != 2 {
		t.Errorf("set of %s = %v, want two members", hospA, got)
	}

	got, err := r.Resolve(ctx, hospB)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got[0] != hospB {
		t.Errorf("Resolve() should list the requested identity first, got %v", got)
	}
	want := []string{"123^^^HOSP_A", "9^^^HOSP_C", "A-77^^^HOSP_B"}
	if !slices.Equal(sorted(got), want) {
		t.Errorf("Resolve() = %v, want %v", sorted(got), want)
	}

	if got, err := r.Resolve(ctx, types.IDWithIssuer{ID: "404"}); err != nil || got != nil {
		t.Errorf("Resolve(unknown) = %v, %v, want nil", got, err)
	}

	client.err = redis.ErrClosed
	if _, err := r.Resolve(ctx, hospA); !errors.Is(err, redis.ErrClosed) {
		t.Errorf("Resolve() error = %v, want ErrClosed", err)
	}
}
