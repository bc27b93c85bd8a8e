package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	applogger "PricePull/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
}

func TestServerStartServeStop(t *testing.T) {
	s := NewServer(applogger.Nop(), []Handler{pingHandler{}, nil},
		WithHost("127.0.0.1"), WithMetrics(false), WithCORSOrigins(nil))
	s.cfg.Port = 0

	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NotNil(t, addr)

	res, err := http.Get("http://" + addr.String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "pong")

	require.NoError(t, s.Stop(context.Background()))
}

func TestServerStartReportsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewServer(nil, nil, WithHost("127.0.0.1"), WithMetrics(false))
	s.cfg.Port = ln.Addr().(*net.TCPAddr).Port
	require.Error(t, s.Start())
}
