package rest

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/present/rest/middleware"
)

var validate = validator.New()

type archiveRequest struct {
	URL string `json:"url" validate:"required"`
}

type followRequest struct {
	Target string `json:"target" validate:"required"`
	Name   string `json:"name" validate:"max=256"`
}

type voteRequest struct {
	Subject string `json:"subject" validate:"required"`
	Vote    int    `json:"vote" validate:"min=-1,max=1"`
}

type subscribeRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=100,dive,required"`
}

type profileRequest struct {
	Name    *string          `json:"name" validate:"omitempty,max=256"`
	Bio     *string          `json:"bio" validate:"omitempty,max=4096"`
	Follows *[]domain.Follow `json:"follows"`
}

type broadcastRequest struct {
	Text         string `json:"text" validate:"required,max=65536"`
	ThreadRoot   string `json:"threadRoot"`
	ThreadParent string `json:"threadParent"`
}

type gizmoRequest struct {
	GizmoName         string   `json:"gizmoName" validate:"required,max=256"`
	GizmoDescription  string   `json:"gizmoDescription" validate:"max=4096"`
	GizmoDocs         string   `json:"gizmoDocs" validate:"max=65536"`
	GizmoDependencies []string `json:"gizmoDependencies" validate:"max=64,dive,required"`
	PostDependencies  []string `json:"postDependencies" validate:"max=64,dive,required"`
	GizmoJS           string   `json:"gizmoJS" validate:"max=1048576"`
	GizmoCSS          string   `json:"gizmoCSS" validate:"max=1048576"`
	PostJS            string   `json:"postJS" validate:"max=1048576"`
	PostCSS           string   `json:"postCSS" validate:"max=1048576"`
}

type postRequest struct {
	PostParams string `json:"postParams" validate:"max=65536"`
	PostHTTP   string `json:"postHTTP" validate:"max=2048"`
	PostText   string `json:"postText" validate:"max=65536"`
	GizmoURL   string `json:"gizmoURL" validate:"required"`
}

// bindValid binds the request body into req and validates it.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return validate.Struct(req)
}

func queryInt64(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter", name)
	}
	return &v, nil
}

func queryInt(c echo.Context, name string) (*int, error) {
	v, err := queryInt64(c, name)
	if err != nil || v == nil {
		return nil, err
	}
	i := int(*v)
	return &i, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

func pageOptions(c echo.Context) (domain.PageOptions, error) {
	var page domain.PageOptions
	var err error
	if page.Offset, err = queryInt(c, "offset"); err != nil {
		return page, err
	}
	if page.Limit, err = queryInt(c, "limit"); err != nil {
		return page, err
	}
	if c.QueryParam("reverse") != "" {
		reverse, err := queryBool(c, "reverse")
		if err != nil {
			return page, err
		}
		page.Reverse = &reverse
	}
	return page, nil
}

func listOptions(c echo.Context) (domain.ListOptions, error) {
	opts := domain.ListOptions{Author: c.QueryParam("author")}
	var err error
	if opts.After, err = queryInt64(c, "after"); err != nil {
		return opts, err
	}
	if opts.Before, err = queryInt64(c, "before"); err != nil {
		return opts, err
	}
	opts.PageOptions, err = pageOptions(c)
	return opts, err
}

// enrichment reads the enrichment flags. The requester defaults to the
// authenticated identity.
func enrichment(c echo.Context) (domain.Enrichment, error) {
	var e domain.Enrichment
	flags := []struct {
		name string
		dst  *bool
	}{
		{"fetchAuthor", &e.FetchAuthor},
		{"countVotes", &e.CountVotes},
		{"fetchReplies", &e.FetchReplies},
		{"checkIfSubscribed", &e.CheckIfSubscribed},
		{"fetchGizmo", &e.FetchGizmo},
		{"fetchGizmoDependencies", &e.FetchGizmoDependencies},
		{"fetchAllDependencies", &e.FetchAllDependencies},
		{"fetchPostDependencies", &e.FetchPostDependencies},
	}
	for _, f := range flags {
		v, err := queryBool(c, f.name)
		if err != nil {
			return e, err
		}
		*f.dst = v
	}

	e.Requester = c.QueryParam("requester")
	if e.Requester == "" {
		e.Requester = middleware.Requester(c.Request().Context())
	}
	return e, nil
}
