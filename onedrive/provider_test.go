package onedrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(srv *httptest.Server, interceptors ...Interceptor) *Provider {
	cfg := ProviderConfig{Interceptors: interceptors}
	if srv != nil {
		cfg.HTTPClient = srv.Client()
	}

	return NewProvider(cfg)
}

func TestSend_DriveGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drive", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(requestIDHeader))
		assert.Contains(t, r.Header.Get(requestStatsHeader), "SDK-Version=Go-v")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"@odata.context":"ctx","id":"8bf6ae90006c4a4c","driveType":"personal","quota":{"remaining":983887466461}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	drive, err := Send[Drive](context.Background(), p, NewRequest(http.MethodGet, srv.URL, "drive"), nil)
	require.NoError(t, err)
	assert.Equal(t, "8bf6ae90006c4a4c", drive.ID)
	assert.Equal(t, "personal", drive.DriveType)
	require.NotNil(t, drive.Quota)
	assert.Equal(t, int64(983887466461), drive.Quota.Remaining)
}

func TestSend_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		_, _ = w.Write([]byte(`{"error":{"code":"invalidRequest","message":"Test error!"}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	_, err := Send[Drive](context.Background(), p, NewRequest(http.MethodGet, srv.URL, "drive"), nil)
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.True(t, svcErr.IsError(CodeInvalidRequest))
	assert.Equal(t, "Test error!", svcErr.Message())
	assert.Equal(t, http.StatusUnsupportedMediaType, svcErr.StatusCode)
}

func TestSend_FatalErrorAt500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"generalException","message":"boom"}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	_, err := Send[Drive](context.Background(), p, NewRequest(http.MethodGet, srv.URL, "drive"), nil)
	require.Error(t, err)

	var fatal *FatalServiceError
	require.ErrorAs(t, err, &fatal)
	assert.True(t, fatal.IsError(CodeGeneralException))
}

func TestSend_NoContent(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotModified} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		p := newTestProvider(srv)

		result, err := Send[Drive](context.Background(), p, NewRequest(http.MethodDelete, srv.URL, "items", "abc"), nil)
		require.NoError(t, err, status)
		assert.Nil(t, result, status)

		srv.Close()
	}
}

func TestSendMonitored_AcceptedCarriesLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "http://localhost/monitorlocation")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("should never be parsed"))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	monitor, err := SendMonitored(context.Background(), p, NewRequest(http.MethodPost, srv.URL, "items", "abc", "action.copy"), map[string]string{"name": "copy"},
		func(ctx context.Context, location string) (*Item, error) {
			return Send[Item](ctx, p, NewRequest(http.MethodGet, location), nil)
		})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/monitorlocation", monitor.Location())
}

func TestSendStream_TransfersOwnership(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("binary payload"))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	stream, err := SendStream(context.Background(), p, NewRequest(http.MethodGet, srv.URL, "items", "abc", "content"), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, stream)

	defer stream.Close()

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "binary payload", string(got))
}

func TestSend_ByteBodyIsOctetStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"new"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	item, err := Send[Item](context.Background(), p, NewRequest(http.MethodPut, srv.URL, "content"), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "new", item.ID)
}

func TestSend_ObjectBodyIsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"new folder"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"f1","name":"new folder"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	item, err := Send[Item](context.Background(), p, NewRequest(http.MethodPost, srv.URL, "children"), map[string]string{"name": "new folder"})
	require.NoError(t, err)
	assert.Equal(t, "f1", item.ID)
}

func TestSendStream_ReportsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv)

	var lastTransferred, lastTotal int64

	payload := make([]byte, 4096)
	stream, err := SendStream(context.Background(), p, NewRequest(http.MethodPut, srv.URL, "content"), payload,
		func(transferred, total int64) {
			lastTransferred = transferred
			lastTotal = total
		})
	require.NoError(t, err)

	defer stream.Close()

	assert.Equal(t, int64(len(payload)), lastTransferred)
	assert.Equal(t, int64(len(payload)), lastTotal)
}
