package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type lookupRequest struct {
	Part  string `query:"part" validate:"required"`
	Grade string `query:"grade" default:"00" validate:"gradecode"`
	Weeks int    `query:"weeks" default:"8" validate:"gte=1,lte=52"`
}

func newContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec), rec
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	c, _ := newContext("/?part=Pork_Belly")
	req := &lookupRequest{}
	require.Nil(t, ReadAndValidateRequest(c, req))
	require.Equal(t, "00", req.Grade)
	require.Equal(t, 8, req.Weeks)
}

func TestReadAndValidateRequestErrors(t *testing.T) {
	c, _ := newContext("/?grade=1a&weeks=60")
	errs := ReadAndValidateRequest(c, &lookupRequest{})

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	require.Equal(t, "ERR_REQUIRED", byField["part"].Code)
	require.Equal(t, "ERR_GRADECODE", byField["grade"].Code)
	require.Equal(t, "ERR_LTE", byField["weeks"].Code)
	require.Equal(t, "52", byField["weeks"].Params["max"])
}

func TestReadAndValidateRequestBindError(t *testing.T) {
	c, _ := newContext("/?part=x&weeks=abc")
	errs := ReadAndValidateRequest(c, &lookupRequest{})
	require.Len(t, errs, 1)
	require.Equal(t, "ERR_BIND", errs[0].Code)
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext("/")
	cause := errors.New("upstream timed out")
	require.NoError(t, AppErrorResponse(c, ServiceUnavailableError("try later").WithError(cause)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var env struct {
		Status int         `json:"status"`
		Data   []*AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, http.StatusServiceUnavailable, env.Status)
	require.Equal(t, "ERR_SERVICE_UNAVAILABLE", env.Data[0].Code)
	require.NotContains(t, rec.Body.String(), "upstream timed out")

	c, rec = newContext("/")
	require.NoError(t, AppErrorResponse(c, errors.New("boom")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("unknown part")
	err := BadRequestError("bad").WithField("part").WithError(cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "part", err.Field)
}

func TestCachedResponse(t *testing.T) {
	c, rec := newContext("/")
	require.NoError(t, CachedResponse(c, 60, map[string]int{"price": 2600}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "public, max-age=60", rec.Header().Get(echo.HeaderCacheControl))
}
