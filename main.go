package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/sujal03/ProtonHub-TaskManger/api"
	"github.com/sujal03/ProtonHub-TaskManger/storage"
	"github.com/sujal03/ProtonHub-TaskManger/storage/local"
	"github.com/sujal03/ProtonHub-TaskManger/storage/postgres"
	"github.com/sujal03/ProtonHub-TaskManger/taskstore"
)

// storeResolver adapts the taskstore manager to the handler-facing interface.
type storeResolver struct {
	mgr *taskstore.Manager
}

func (r storeResolver) ForUser(ctx context.Context, userID string) (api.TaskStore, error) {
	st, err := r.mgr.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (r storeResolver) SignOut(userID string) {
	r.mgr.SignOut(userID)
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	var (
		backend taskstore.Backend
		notify  taskstore.Notifier
	)
	backendKind := os.Getenv("STORAGE_BACKEND")
	if backendKind == "" {
		backendKind = "tables"
	}
	switch backendKind {
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tasksTable := os.Getenv("TASKS_TABLE")
		if connStr == "" || tasksTable == "" {
			log.Fatal("missing storage config")
		}
		store, err := storage.New(connStr, tasksTable, os.Getenv("CHANGE_QUEUE"))
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		backend = store
		notify = store
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			log.Fatal("missing DATABASE_URL")
		}
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		pg := postgres.New(pool)
		if err := pg.EnsureTable(context.Background()); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		backend = pg
	case "local":
		path := os.Getenv("LOCAL_DB_PATH")
		if path == "" {
			var err error
			path, err = local.DefaultPath()
			if err != nil {
				log.Fatalf("local storage path: %v", err)
			}
		}
		store, err := local.Open(path)
		if err != nil {
			log.Fatalf("local storage: %v", err)
		}
		backend = store
	default:
		log.Fatalf("unknown STORAGE_BACKEND %q", backendKind)
	}

	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		ttl := time.Minute
		if v := os.Getenv("ROWS_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid ROWS_CACHE_TTL: %v", err)
			}
			ttl = d
		}
		backend = storage.NewCache(backend, redis.NewClient(redisOpts), ttl)
	}

	testMode := os.Getenv("AUTH0_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	logger := log.New()
	mgr := taskstore.NewManager(backend, notify, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, storeResolver{mgr: mgr}, auth, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
