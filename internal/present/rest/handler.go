package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/present/rest/middleware"
	"github.com/totegamma/concrnt-parallel/internal/present/rest/presenter"
	"github.com/totegamma/concrnt-parallel/internal/usecase"
)

const maxAvatarBytes = 4 << 20

// Realtime streams index events for the listened url prefixes until ctx is
// done. It closes output when it stops.
type Realtime interface {
	Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Event)
}

type Handler struct {
	config domain.Config
	index  *usecase.Index
	signal Realtime
}

func NewHandler(
	config domain.Config,
	index *usecase.Index,
	signal Realtime,
) *Handler {
	return &Handler{
		config: config,
		index:  index,
		signal: signal,
	}
}

// RegisterRoutes mounts the api. mws run after the requester is identified.
func (h *Handler) RegisterRoutes(e *echo.Echo, auth *middleware.AuthMiddleware, mws ...echo.MiddlewareFunc) {
	e.GET("/.well-known/parallel", h.handleWellKnown)
	e.GET("/realtime", h.handleRealtime)

	api := e.Group("/api/v1", append([]echo.MiddlewareFunc{auth.IdentifyIdentity}, mws...)...)
	write := middleware.RequireIdentity
	owner := []echo.MiddlewareFunc{middleware.RequireIdentity, h.requireOwner}

	api.GET("/archives", h.handleListArchives)
	api.POST("/archives", h.handleAddArchive, owner...)
	api.DELETE("/archives", h.handleRemoveArchive, owner...)
	api.POST("/archives/prune", h.handlePrune, owner...)

	api.GET("/resource", h.handleResource)
	api.DELETE("/resource", h.handleRetract, write)

	api.GET("/profile/:archive", h.handleGetProfile)
	api.PUT("/profile", h.handleSetProfile, write)
	api.PUT("/profile/avatar", h.handleSetAvatar, write)

	api.POST("/follow", h.handleFollow, write)
	api.DELETE("/follow", h.handleUnfollow, write)
	api.GET("/followers/:archive", h.handleFollowers)
	api.GET("/friends/:archive", h.handleFriends)
	api.GET("/relation", h.handleRelation)

	api.POST("/votes", h.handleVote, write)
	api.GET("/votes", h.handleVotes)

	api.POST("/subscriptions", h.handleSubscribe, write)
	api.DELETE("/subscriptions", h.handleUnsubscribe, write)
	api.GET("/subscriptions/check", h.handleIsSubscribed)

	api.POST("/broadcasts", h.handleBroadcast, write)
	api.GET("/broadcasts", h.handleListBroadcasts)
	api.GET("/broadcasts/count", h.handleCountBroadcasts)
	api.GET("/broadcast", h.handleGetBroadcast)
	api.GET("/replies", h.handleReplies)

	api.POST("/gizmos", h.handleCreateGizmo, write)
	api.GET("/gizmos", h.handleListGizmos)
	api.GET("/gizmos/count", h.handleCountGizmos)
	api.GET("/gizmo", h.handleGetGizmo)

	api.POST("/posts", h.handleCreatePost, write)
	api.GET("/posts", h.handleListPosts)
	api.GET("/posts/count", h.handleCountPosts)
	api.GET("/post", h.handleGetPost)
}

// requireOwner admits only the identity the index is bound to.
func (h *Handler) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requester, err := parallel.ArchiveURL(middleware.Requester(c.Request().Context()))
		if err != nil || h.index.Owner() == "" || requester != h.index.Owner() {
			return presenter.Forbidden(c, "only the index owner may manage archives")
		}
		return next(c)
	}
}

func requester(c echo.Context) string {
	return middleware.Requester(c.Request().Context())
}

func (h *Handler) handleWellKnown(c echo.Context) error {
	wellknown := parallel.WellKnown{
		Version: "1.0",
		Domain:  h.config.FQDN,
		Owner:   h.index.Owner(),
		Variant: string(h.index.Variant()),
		Endpoints: map[string]parallel.Endpoint{
			"net.concrnt.parallel.broadcasts": {
				Template: "/api/v1/broadcasts",
				Method:   "GET",
				Query:    &[]string{"author", "after", "before", "offset", "limit", "reverse"},
			},
			"net.concrnt.parallel.resource": {
				Template: "/api/v1/resource",
				Method:   "GET",
				Query:    &[]string{"url"},
			},
			"net.concrnt.parallel.votes": {
				Template: "/api/v1/votes",
				Method:   "GET",
				Query:    &[]string{"subject", "count"},
			},
			"net.concrnt.parallel.followers": {
				Template: "/api/v1/followers/{archive}",
				Method:   "GET",
			},
			"net.concrnt.realtime": {
				Template: "/realtime",
				Method:   "GET",
			},
		},
	}
	if h.index.Variant() == domain.VariantGizmo {
		wellknown.Endpoints["net.concrnt.parallel.gizmos"] = parallel.Endpoint{
			Template: "/api/v1/gizmos",
			Method:   "GET",
			Query:    &[]string{"author", "subscriber", "loadShop"},
		}
		wellknown.Endpoints["net.concrnt.parallel.posts"] = parallel.Endpoint{
			Template: "/api/v1/posts",
			Method:   "GET",
			Query:    &[]string{"author", "currentURL"},
		}
	}
	return presenter.OK(c, wellknown)
}

func (h *Handler) handleListArchives(c echo.Context) error {
	archives, err := h.index.Scope.ListArchives(c.Request().Context())
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, archives)
}

func (h *Handler) handleAddArchive(c echo.Context) error {
	var req archiveRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.index.Scope.AddArchive(c.Request().Context(), req.URL); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleRemoveArchive(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}
	if err := h.index.Scope.RemoveArchive(c.Request().Context(), url); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handlePrune(c echo.Context) error {
	if err := h.index.Scope.PruneUnfollowedArchives(c.Request().Context(), h.index.Owner()); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleResource(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}
	value, err := h.index.Records.Get(c.Request().Context(), url)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, value)
}

func (h *Handler) handleRetract(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}
	if err := h.index.Records.Retract(c.Request().Context(), requester(c), url); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleGetProfile(c echo.Context) error {
	profile, err := h.index.Profiles.GetProfile(c.Request().Context(), c.Param("archive"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, profile)
}

func (h *Handler) handleSetProfile(c echo.Context) error {
	var req profileRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	err := h.index.Profiles.SetProfile(c.Request().Context(), requester(c), domain.ProfileInput{
		Name:    req.Name,
		Bio:     req.Bio,
		Follows: req.Follows,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleSetAvatar(c echo.Context) error {
	ext := c.QueryParam("ext")
	if ext == "" {
		return presenter.BadRequestMessage(c, "ext parameter is required")
	}
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxAvatarBytes+1))
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	if len(data) > maxAvatarBytes {
		return presenter.BadRequestMessage(c, "avatar too large")
	}
	if err := h.index.Profiles.SetAvatar(c.Request().Context(), requester(c), data, ext); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleFollow(c echo.Context) error {
	var req followRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.index.Social.Follow(c.Request().Context(), requester(c), req.Target, req.Name); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleUnfollow(c echo.Context) error {
	target := c.QueryParam("target")
	if target == "" {
		return presenter.BadRequestMessage(c, "target parameter is required")
	}
	if err := h.index.Social.Unfollow(c.Request().Context(), requester(c), target); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleFollowers(c echo.Context) error {
	ctx := c.Request().Context()
	if c.QueryParam("count") == "true" {
		count, err := h.index.Social.CountFollowers(ctx, c.Param("archive"))
		if err != nil {
			return presenter.Error(c, err)
		}
		return presenter.OK(c, echo.Map{"count": count})
	}
	followers, err := h.index.Social.ListFollowers(ctx, c.Param("archive"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, followers)
}

func (h *Handler) handleFriends(c echo.Context) error {
	ctx := c.Request().Context()
	if c.QueryParam("count") == "true" {
		count, err := h.index.Social.CountFriends(ctx, c.Param("archive"))
		if err != nil {
			return presenter.Error(c, err)
		}
		return presenter.OK(c, echo.Map{"count": count})
	}
	friends, err := h.index.Social.ListFriends(ctx, c.Param("archive"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, friends)
}

func (h *Handler) handleRelation(c echo.Context) error {
	ctx := c.Request().Context()
	a, b := c.QueryParam("a"), c.QueryParam("b")
	if a == "" || b == "" {
		return presenter.BadRequestMessage(c, "a and b parameters are required")
	}

	following, err := h.index.Social.IsFollowing(ctx, a, b)
	if err != nil {
		return presenter.Error(c, err)
	}
	friends, err := h.index.Social.IsFriendsWith(ctx, a, b)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"following": following, "friends": friends})
}

func (h *Handler) handleVote(c echo.Context) error {
	var req voteRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	url, err := h.index.Votes.Vote(c.Request().Context(), requester(c), domain.VoteInput{
		Subject: req.Subject,
		Vote:    req.Vote,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"url": url})
}

func (h *Handler) handleVotes(c echo.Context) error {
	ctx := c.Request().Context()
	subject := c.QueryParam("subject")
	if subject == "" {
		return presenter.BadRequestMessage(c, "subject parameter is required")
	}
	if c.QueryParam("count") == "true" {
		tally, err := h.index.Votes.CountVotes(ctx, subject)
		if err != nil {
			return presenter.Error(c, err)
		}
		return presenter.OK(c, tally)
	}
	votes, err := h.index.Votes.ListVotes(ctx, subject)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, votes)
}

func (h *Handler) handleSubscribe(c echo.Context) error {
	var req subscribeRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.index.Subscriptions.SubscribeMany(c.Request().Context(), requester(c), req.URLs); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleUnsubscribe(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}
	if err := h.index.Subscriptions.Unsubscribe(c.Request().Context(), requester(c), url); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleIsSubscribed(c echo.Context) error {
	url := c.QueryParam("url")
	archive := c.QueryParam("archive")
	if archive == "" {
		archive = requester(c)
	}
	if url == "" || archive == "" {
		return presenter.BadRequestMessage(c, "url and archive parameters are required")
	}
	subscribed, err := h.index.Subscriptions.IsSubscribed(c.Request().Context(), archive, url)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"subscribed": subscribed})
}

func (h *Handler) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	url, err := h.index.Broadcasts.Broadcast(c.Request().Context(), requester(c), domain.BroadcastInput{
		Text:         req.Text,
		ThreadRoot:   req.ThreadRoot,
		ThreadParent: req.ThreadParent,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"url": url})
}

func (h *Handler) handleListBroadcasts(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	e, err := enrichment(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	views, err := h.index.Broadcasts.ListBroadcasts(c.Request().Context(), domain.ListBroadcastsRequest{
		ListOptions: opts,
		Enrichment:  e,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, views)
}

func (h *Handler) handleCountBroadcasts(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	count, err := h.index.Broadcasts.CountBroadcasts(c.Request().Context(), opts)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"count": count})
}

func (h *Handler) handleGetBroadcast(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}
	view, err := h.index.Broadcasts.GetBroadcast(c.Request().Context(), url)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, view)
}

func (h *Handler) handleReplies(c echo.Context) error {
	root := c.QueryParam("root")
	if root == "" {
		return presenter.BadRequestMessage(c, "root parameter is required")
	}
	page, err := pageOptions(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	e, err := enrichment(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	views, err := h.index.Broadcasts.ListReplies(c.Request().Context(), root, page, e)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, views)
}

func (h *Handler) handleCreateGizmo(c echo.Context) error {
	var req gizmoRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	url, err := h.index.Gizmos.CreateGizmo(c.Request().Context(), requester(c), domain.GizmoInput{
		GizmoName:         req.GizmoName,
		GizmoDescription:  req.GizmoDescription,
		GizmoDocs:         req.GizmoDocs,
		GizmoDependencies: req.GizmoDependencies,
		PostDependencies:  req.PostDependencies,
		GizmoJS:           req.GizmoJS,
		GizmoCSS:          req.GizmoCSS,
		PostJS:            req.PostJS,
		PostCSS:           req.PostCSS,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"url": url})
}

func (h *Handler) handleListGizmos(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	e, err := enrichment(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	loadShop, err := queryBool(c, "loadShop")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	views, err := h.index.Gizmos.ListGizmos(c.Request().Context(), domain.ListGizmosRequest{
		ListOptions: opts,
		Enrichment:  e,
		Subscriber:  c.QueryParam("subscriber"),
		LoadShop:    loadShop,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, views)
}

func (h *Handler) handleCountGizmos(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	count, err := h.index.Gizmos.CountGizmos(c.Request().Context(), opts)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"count": count})
}

func (h *Handler) handleGetGizmo(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}
	e, err := enrichment(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	view, err := h.index.Gizmos.GetGizmo(c.Request().Context(), url, e)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, view)
}

func (h *Handler) handleCreatePost(c echo.Context) error {
	var req postRequest
	if err := bindValid(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	url, err := h.index.Posts.CreatePost(c.Request().Context(), requester(c), domain.PostInput{
		PostParams: req.PostParams,
		PostHTTP:   req.PostHTTP,
		PostText:   req.PostText,
		GizmoURL:   req.GizmoURL,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"url": url})
}

func (h *Handler) handleListPosts(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	e, err := enrichment(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	views, err := h.index.Posts.ListPosts(c.Request().Context(), domain.ListPostsRequest{
		ListOptions: opts,
		Enrichment:  e,
		CurrentURL:  c.QueryParam("currentURL"),
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, views)
}

func (h *Handler) handleCountPosts(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	count, err := h.index.Posts.CountPosts(c.Request().Context(), opts)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"count": count})
}

func (h *Handler) handleGetPost(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}
	e, err := enrichment(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	view, err := h.index.Posts.GetPost(c.Request().Context(), e.Requester, url)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, view)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "realtime is not configured"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan domain.Event)
	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				var wsErr *websocket.CloseError
				if errors.As(err, &wsErr) {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Prefixes:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Prefixes),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event, ok := <-output:
			if !ok {
				slog.DebugContext(
					ctx, "Realtime stream ended",
					slog.String("module", "socket"),
				)
				return nil
			}
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
