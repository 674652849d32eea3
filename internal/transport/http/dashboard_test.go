package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"fils-quiz-bot/internal/app"
	"fils-quiz-bot/internal/content"
	"fils-quiz-bot/internal/domain"
	"fils-quiz-bot/internal/infra/memory"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[int64]string
}

func (r *recordingSender) SendText(_ context.Context, chatID int64, text string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chatID == 3 {
		return 0, errors.New("bot was blocked by the user")
	}
	r.sent[chatID] = text
	return 1, nil
}

type dashboardFixture struct {
	server *httptest.Server
	client *http.Client
	feed   *app.LeadFeed
	sender *recordingSender
	// reloadErr is what the next content reload fails with
	reloadErr error
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewUserStore()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, store.UpsertUser(ctx, domain.User{ID: id, FirstName: "User"}))
	}
	require.NoError(t, store.AddSubmission(ctx, domain.Submission{UserID: 1, Model: "CLOUD"}))

	f := &dashboardFixture{
		feed:   app.NewLeadFeed(10),
		sender: &recordingSender{sent: map[int64]string{}},
	}
	dash, err := NewDashboard(DashboardConfig{
		Password:      "pa55",
		SessionSecret: "secret",
		Reload: func(context.Context) (domain.Quiz, error) {
			if f.reloadErr != nil {
				return domain.Quiz{}, f.reloadErr
			}
			return content.Default(), nil
		},
	}, store, f.feed, f.sender, nil)
	require.NoError(t, err)

	server := httptest.NewServer(NewRouter(Routes{Dashboard: dash}))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.server = server
	f.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func (f *dashboardFixture) login(t *testing.T, password string) *http.Response {
	t.Helper()
	resp, err := f.client.PostForm(f.server.URL+"/admin/login", url.Values{"password": {password}})
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestNewDashboardRequiresSecrets(t *testing.T) {
	_, err := NewDashboard(DashboardConfig{}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestDashboardLoginFlow(t *testing.T) {
	f := newDashboardFixture(t)

	resp, err := f.client.Get(f.server.URL + "/admin/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/login", resp.Header.Get("Location"))

	resp, err = f.client.Get(f.server.URL + "/admin/api/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, http.StatusUnauthorized, f.login(t, "nope").StatusCode)
	assert.Equal(t, http.StatusSeeOther, f.login(t, "pa55").StatusCode)

	resp, err = f.client.Get(f.server.URL + "/admin/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = f.client.Get(f.server.URL + "/admin/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats domain.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, 1, stats.ByModel["CLOUD"])

	resp, err = f.client.Get(f.server.URL + "/admin/api/users?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	var users []userJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Len(t, users, 2)
}

func TestDashboardRejectsForgedCookie(t *testing.T) {
	f := newDashboardFixture(t)
	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/admin/api/stats", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "eyJhbGciOiJub25lIn0.eyJzdWIiOiJhZG1pbiJ9."})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDashboardBroadcast(t *testing.T) {
	f := newDashboardFixture(t)
	f.login(t, "pa55")

	resp, err := f.client.PostForm(f.server.URL+"/admin/broadcast", url.Values{"text": {"Скидки до конца недели"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	var result map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, int64(2), result["sent"])
	assert.Equal(t, int64(1), result["failed"])
	assert.Equal(t, "Скидки до конца недели", f.sender.sent[1])

	resp, err = f.client.PostForm(f.server.URL+"/admin/broadcast", url.Values{"text": {"  "}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardLeadFeedWebSocket(t *testing.T) {
	f := newDashboardFixture(t)
	f.login(t, "pa55")
	require.NoError(t, f.feed.DeliverLead(context.Background(), domain.Lead{ID: "old", Phone: "+7000"}))

	serverURL, _ := url.Parse(f.server.URL + "/admin/")
	header := http.Header{}
	for _, c := range f.client.Jar.Cookies(serverURL) {
		header.Add("Cookie", c.Name+"="+c.Value)
	}
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/admin/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	var recent outboundMessage[[]domain.Lead]
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&recent))
	assert.Equal(t, "recent", recent.Type)
	require.Len(t, recent.Payload, 1)
	assert.Equal(t, "old", recent.Payload[0].ID)

	require.NoError(t, f.feed.DeliverLead(context.Background(), domain.Lead{ID: "new", Phone: "+7999"}))
	var live outboundMessage[domain.Lead]
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, "lead", live.Type)
	assert.Equal(t, "+7999", live.Payload.Phone)

	_, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err, "feed requires a session")
}

func TestDashboardReloadsContent(t *testing.T) {
	f := newDashboardFixture(t)

	resp, err := f.client.Post(f.server.URL+"/admin/api/reload", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	f.login(t, "pa55")
	resp, err = f.client.Post(f.server.URL+"/admin/api/reload", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ok map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	assert.Equal(t, "sofa", ok["quiz"])
	assert.EqualValues(t, 4, ok["questions"])

	f.reloadErr = &domain.ValidationError{QuizID: "sofa", Problems: []string{"no rule for question 2 option 3"}}
	resp, err = f.client.Post(f.server.URL+"/admin/api/reload", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var failed struct {
		Problems []string `json:"problems"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	assert.Equal(t, []string{"no rule for question 2 option 3"}, failed.Problems)
}
