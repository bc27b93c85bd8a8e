package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientDo(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("pricepull/test"), WithMaxBodyBytes(4))
	res, err := c.Do(context.Background(), &RequestOptions{
		URL:         srv.URL + "/feed?action=periodProductList",
		QueryParams: url.Values{"p_itemcode": {"4304"}},
		Headers:     map[string]string{"Accept": "application/json"},
	})
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Equal(t, http.StatusAccepted, res.Status)
	require.Equal(t, "0123", string(res.Body))

	require.Equal(t, http.MethodGet, got.Method)
	require.Equal(t, "periodProductList", got.URL.Query().Get("action"))
	require.Equal(t, "4304", got.URL.Query().Get("p_itemcode"))
	require.Equal(t, "pricepull/test", got.UserAgent())
	require.Equal(t, "application/json", got.Header.Get("Accept"))
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient().Do(context.Background(), &RequestOptions{URL: srv.URL})
	require.Error(t, err)
}
