package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"fils-quiz-bot/internal/app"
	"fils-quiz-bot/internal/content"
	"fils-quiz-bot/internal/domain"
	pgstore "fils-quiz-bot/internal/infra/postgres"
	pgmigrations "fils-quiz-bot/internal/infra/postgres/migrations"
	infraredis "fils-quiz-bot/internal/infra/redis"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestConversationEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)

	db := pgstore.OpenDB(pgURL)
	defer db.Close()
	if _, err := pgmigrations.Up(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.PublishQuiz(ctx, content.Default()); err != nil {
		t.Fatalf("publish quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, time.Hour)
	store := pgstore.NewStore(db)
	leads := &leadCollector{}
	sink := &discardSink{}

	service := app.NewBotService("sofa", sessionStore, quizRepo, sink,
		app.WithUserStore(store), app.WithLeadSink(leads))

	user := domain.User{ID: 1001, Username: "ivan", FirstName: "Ivan"}
	events := []app.Event{
		{Kind: app.EventStart, ChatID: user.ID, User: user},
		{Kind: app.EventBegin, ChatID: user.ID, User: user},
		{Kind: app.EventOptionSelected, ChatID: user.ID, User: user, QuestionID: 1, Option: 1},
		{Kind: app.EventOptionSelected, ChatID: user.ID, User: user, QuestionID: 2, Option: 1},
		{Kind: app.EventOptionSelected, ChatID: user.ID, User: user, QuestionID: 3, Option: 3},
		{Kind: app.EventOptionSelected, ChatID: user.ID, User: user, QuestionID: 4, Option: 1},
		{Kind: app.EventContactShared, ChatID: user.ID, User: user, Contact: domain.Contact{Phone: "+79991234567"}},
	}
	for _, ev := range events {
		out, err := service.Handle(ctx, ev)
		if err != nil {
			t.Fatalf("handle %s: %v", ev.Kind, err)
		}
		if !out.Accepted {
			t.Fatalf("expected %s to be accepted in %s", ev.Kind, out.From)
		}
	}
	service.Wait()

	if got := leads.count(); got != 1 {
		t.Fatalf("expected one lead, got %d", got)
	}
	users, err := store.ListUsers(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Phone != "+79991234567" || users[0].LastModel != "CLOUD" {
		t.Fatalf("unexpected users %+v", users)
	}
	promo, err := store.LatestPromoCode(ctx, user.ID)
	if err != nil || promo.Code != "FILS1978" {
		t.Fatalf("expected promo code, got %+v err=%v", promo, err)
	}
	stats, err := store.Stats(ctx)
	if err != nil || stats.Submissions != 1 || stats.ByModel["CLOUD"] != 1 {
		t.Fatalf("unexpected stats %+v err=%v", stats, err)
	}
}

type leadCollector struct {
	mu    sync.Mutex
	leads []domain.Lead
}

func (c *leadCollector) DeliverLead(_ context.Context, lead domain.Lead) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leads = append(c.leads, lead)
	return nil
}

func (c *leadCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.leads)
}

type discardSink struct{}

func (discardSink) Send(context.Context, int64, domain.Message) error { return nil }

// startContainer runs image until the test ends and returns the host:port its port is mapped to.
func startContainer(t *testing.T, ctx context.Context, image, port string, env map[string]string) string {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        image,
			Env:          env,
			ExposedPorts: []string{port},
			WaitingFor:   wait.ForListeningPort(nat.Port(port)).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, nat.Port(port), "")
	if err != nil {
		t.Fatalf("%s endpoint: %v", image, err)
	}
	return endpoint
}

func startPostgres(t *testing.T, ctx context.Context) string {
	endpoint := startContainer(t, ctx, "postgres:15-alpine", "5432/tcp", map[string]string{
		"POSTGRES_USER":     "bot",
		"POSTGRES_PASSWORD": "botpass",
		"POSTGRES_DB":       "botdb",
	})
	return fmt.Sprintf("postgres://bot:botpass@%s/botdb?sslmode=disable", endpoint)
}

func startRedis(t *testing.T, ctx context.Context) string {
	return "redis://" + startContainer(t, ctx, "redis:7-alpine", "6379/tcp", nil)
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
