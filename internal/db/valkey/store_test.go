package valkey

import (
	"context"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

func TestSearchCount_StarUsesScan(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN" && cmd[3] == "vecsight:img:*"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0),
			mock.RedisArray(mock.RedisString("vecsight:img:a"), mock.RedisString("vecsight:img:b")),
		)))

	s := NewStoreForTest(c)
	count, err := s.SearchCount(context.Background(), "vecsight:img:idx", "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestSearchCount_TagUsesScanAndHGet(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0),
			mock.RedisArray(
				mock.RedisString("vecsight:img:a"),
				mock.RedisString("vecsight:img:b"),
				mock.RedisString("vecsight:img:c"),
			),
		)))
	c.EXPECT().
		DoMulti(gomock.Any(),
			mock.Match("HGET", "vecsight:img:a", "category"),
			mock.Match("HGET", "vecsight:img:b", "category"),
			mock.Match("HGET", "vecsight:img:c", "category"),
		).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString("satellite")),
			mock.Result(mock.RedisString("healthcare")),
			mock.Result(mock.RedisNil()),
		})

	s := NewStoreForTest(c)
	count, err := s.SearchCount(context.Background(), "vecsight:img:idx", "@category:{satellite}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1, got %d", count)
	}
}

func TestSearchCount_ComplexQueryUsesFTSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(5))))

	s := NewStoreForTest(c)
	count, err := s.SearchCount(context.Background(), "vecsight:img:idx", `@category:{x\-ray}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5, got %d", count)
	}
}

func TestParseTagQuery(t *testing.T) {
	tests := []struct {
		in         string
		field, val string
		ok         bool
	}{
		{"@category:{satellite}", "category", "satellite", true},
		{"*", "", "", false},
		{"@category:{}", "", "", false},
		{`@category:{a\ b}`, "", "", false},
		{"@category:{a|b}", "", "", false},
		{"category:{a}", "", "", false},
	}
	for _, tc := range tests {
		f, v, ok := parseTagQuery(tc.in)
		if ok != tc.ok || f != tc.field || v != tc.val {
			t.Errorf("parseTagQuery(%q) = %q, %q, %v", tc.in, f, v, ok)
		}
	}
}

func TestIndexToKeyPrefix(t *testing.T) {
	if got := indexToKeyPrefix("vecsight:img:idx"); got != "vecsight:img:" {
		t.Errorf("got %q", got)
	}
	if got := indexToKeyPrefix("plain"); got != "plain:" {
		t.Errorf("got %q", got)
	}
}
