package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SlpAus/gametracker-backend/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(apiBase, storeBase string) *Client {
	c := NewClient("test-key", ratelimit.NewMemoryWindow(100, time.Minute), time.Millisecond)
	if apiBase != "" {
		c.apiBase = apiBase
	}
	if storeBase != "" {
		c.storeBase = storeBase
	}
	return c
}

func TestGetPlayerSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "GetPlayerSummaries")
		w.Write([]byte(`{"response":{"players":[{"steamid":"76561198000000001","personaname":"tester","avatarfull":"http://a/b.jpg","communityvisibilitystate":3}]}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	summary, err := c.GetPlayerSummary(context.Background(), "76561198000000001")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "tester", summary.PersonaName)
	assert.Equal(t, 3, summary.VisibilityState)
}

func TestGetPlayerSummaryUnknownID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"players":[]}}`))
	}))
	defer server.Close()

	// 未知ID不是错误，返回 (nil, nil)
	c := newTestClient(server.URL, "")
	summary, err := c.GetPlayerSummary(context.Background(), "76561198999999999")
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestGetOwnedGames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"game_count":1,"games":[{"appid":400,"name":"Portal","playtime_forever":300,"rtime_last_played":1700000000}]}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	owned, err := c.GetOwnedGames(context.Background(), "76561198000000001")
	require.NoError(t, err)
	require.NotNil(t, owned)
	assert.Equal(t, 1, owned.Count)
	require.Len(t, owned.Games, 1)
	assert.Equal(t, uint(400), owned.Games[0].AppID)
	require.NotNil(t, owned.Games[0].LastPlayed())
}

func TestGetOwnedGamesPrivateProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 资料不公开时Steam返回空对象
		w.Write([]byte(`{"response":{}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	owned, err := c.GetOwnedGames(context.Background(), "76561198000000001")
	require.NoError(t, err)
	assert.Nil(t, owned)
}

func TestGetAppDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"400":{"success":true,"data":{"name":"Portal","header_image":"http://h/i.jpg","short_description":"<b>Great</b> game","developers":["Valve"],"publishers":["Valve"],"genres":[{"description":"Puzzle"}],"release_date":{"date":"10 Oct, 2007"},"price_overview":{"final_formatted":"$9.99"},"metacritic":{"score":90}}}}`))
	}))
	defer server.Close()

	c := newTestClient("", server.URL)
	details, err := c.GetAppDetails(context.Background(), 400)
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "Portal", details.Name)
	// 富文本描述被还原为纯文本
	assert.Equal(t, "Great game", details.ShortDescription)
	assert.Equal(t, []string{"Puzzle"}, details.Genres)
	assert.Equal(t, 90, details.MetacriticScore)
}

func TestGetAppDetailsAbsentApp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"999999":{"success":false}}`))
	}))
	defer server.Close()

	c := newTestClient("", server.URL)
	details, err := c.GetAppDetails(context.Background(), 999999)
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestGetAppDetailsBatchSwallowsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appids") == "400" {
			w.Write([]byte(`{"400":{"success":true,"data":{"name":"Portal"}}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient("", server.URL)

	var progress []int
	results, err := c.GetAppDetailsBatch(context.Background(), []uint{400, 500}, func(done, total int) {
		progress = append(progress, done)
		assert.Equal(t, 2, total)
	})
	require.NoError(t, err)

	// 失败的条目被吞掉并从结果中省略，进度回调每个条目都触发
	require.Len(t, results, 1)
	assert.Equal(t, "Portal", results[400].Name)
	assert.Equal(t, []int{1, 2}, progress)
}

func TestClientRespectsRateLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"players":[]}}`))
	}))
	defer server.Close()

	c := NewClient("test-key", ratelimit.NewMemoryWindow(1, time.Minute), time.Millisecond)
	c.apiBase = server.URL

	_, err := c.GetPlayerSummary(context.Background(), "76561198000000001")
	require.NoError(t, err)

	// 窗口用尽后，调用被拒绝并携带重试时间
	_, err = c.GetPlayerSummary(context.Background(), "76561198000000001")
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.True(t, rle.RetryAt.After(time.Now().Add(50*time.Second)))
}
