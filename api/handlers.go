package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/sujal03/ProtonHub-TaskManger/domain"
	"github.com/sujal03/ProtonHub-TaskManger/query"
	"github.com/sujal03/ProtonHub-TaskManger/taskstore"
)

const taskBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, stores Stores, auth Authenticator, logger *log.Logger) {
	e.GET("/api/tasks", listTasks(stores, auth, logger))
	e.GET("/api/tasks/stats", getStats(stores, auth))
	e.POST("/api/tasks", createTask(stores, auth))
	e.PUT("/api/tasks/:id", updateTask(stores, auth))
	e.POST("/api/tasks/:id/toggle", toggleTask(stores, auth))
	e.DELETE("/api/tasks/:id", deleteTask(stores, auth))
	e.POST("/api/signout", signOut(stores, auth))
	e.GET("/healthz", healthz())
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type statsResponse struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	Completed      int `json:"completed"`
	DueSoon        int `json:"dueSoon"`
	CompletionRate int `json:"completionRate"`
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func listTasks(stores Stores, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		store, storeErr := stores.ForUser(ctx, userID)
		if storeErr != nil {
			metrics.ObserveFetch(time.Since(fetchStart))
			metrics.SetErrorStage("store")
			err = taskError(c, storeErr)
			return err
		}
		tasks := store.Snapshot()
		metrics.ObserveFetch(time.Since(fetchStart))

		tasks, filterErr := applyFilters(c, tasks)
		if filterErr != nil {
			metrics.SetErrorStage("invalid_filter")
			err = c.String(http.StatusBadRequest, filterErr.Error())
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// applyFilters narrows a snapshot by the request's query parameters. Filters
// compose; each one preserves order.
func applyFilters(c echo.Context, tasks []domain.Task) ([]domain.Task, error) {
	if raw := c.QueryParam("category"); raw != "" {
		tasks = query.ByCategory(tasks, domain.ParseCategory(raw))
	}
	if raw := c.QueryParam("priority"); raw != "" {
		tasks = query.ByPriority(tasks, domain.ParsePriority(raw))
	}
	switch status := c.QueryParam("status"); status {
	case "":
	case "active":
		tasks = query.Active(tasks)
	case "completed":
		tasks = query.Completed(tasks)
	default:
		return nil, errors.New("invalid status filter")
	}
	if raw := c.QueryParam("dueSoon"); raw != "" {
		dueSoon, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("invalid dueSoon filter")
		}
		if dueSoon {
			tasks = query.DueSoon(tasks, time.Now().UTC())
		}
	}
	if term := c.QueryParam("q"); term != "" {
		tasks = query.Search(tasks, term)
	}
	return tasks, nil
}

func getStats(stores Stores, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		store, err := stores.ForUser(ctx, userID)
		if err != nil {
			return taskError(c, err)
		}
		tasks := store.Snapshot()
		return c.JSON(http.StatusOK, statsResponse{
			Total:          len(tasks),
			Active:         len(query.Active(tasks)),
			Completed:      len(query.Completed(tasks)),
			DueSoon:        len(query.DueSoon(tasks, time.Now().UTC())),
			CompletionRate: query.CompletionRate(tasks),
		})
	}
}

func createTask(stores Stores, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		req, err := decodeTaskRequest(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		store, err := stores.ForUser(ctx, userID)
		if err != nil {
			return taskError(c, err)
		}

		created, err := store.Create(ctx, taskstore.Draft{
			Title:       req.Title,
			Description: req.Description,
			Priority:    domain.ParsePriority(req.Priority),
			Category:    domain.ParseCategory(req.Category),
			DueDate:     req.DueDate,
		})
		if err != nil {
			return taskError(c, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func updateTask(stores Stores, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		req, err := decodeTaskRequest(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		store, err := stores.ForUser(ctx, userID)
		if err != nil {
			return taskError(c, err)
		}

		task := domain.Task{
			ID:          c.Param("id"),
			Title:       req.Title,
			Description: req.Description,
			Completed:   req.Completed,
			Priority:    domain.ParsePriority(req.Priority),
			Category:    domain.ParseCategory(req.Category),
			DueDate:     req.DueDate,
			Tags:        req.Tags,
		}
		if err := store.Update(ctx, task); err != nil {
			return taskError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleTask(stores Stores, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		store, err := stores.ForUser(ctx, userID)
		if err != nil {
			return taskError(c, err)
		}
		if err := store.ToggleCompletion(ctx, c.Param("id")); err != nil {
			return taskError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(stores Stores, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		store, err := stores.ForUser(ctx, userID)
		if err != nil {
			return taskError(c, err)
		}
		if err := store.Delete(ctx, c.Param("id")); err != nil {
			return taskError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func signOut(stores Stores, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		stores.SignOut(userID)
		return c.NoContent(http.StatusNoContent)
	}
}

func decodeTaskRequest(c echo.Context) (taskRequest, error) {
	lr := io.LimitReader(c.Request().Body, taskBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()

	var req taskRequest
	if err := dec.Decode(&req); err != nil {
		return taskRequest{}, err
	}
	return req, nil
}

// taskError maps store errors onto HTTP statuses. Remote failures surface as
// a retryable notification, never as a partial local state.
func taskError(c echo.Context, err error) error {
	var verr *taskstore.ValidationError
	switch {
	case errors.Is(err, taskstore.ErrAuthRequired):
		return c.String(http.StatusUnauthorized, err.Error())
	case errors.As(err, &verr):
		if errors.Is(verr, taskstore.ErrNotFound) {
			return c.String(http.StatusNotFound, verr.Error())
		}
		return c.String(http.StatusBadRequest, verr.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "task storage unavailable, please retry")
	}
}
