package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trade-market/internal/apperrors"
	"trade-market/internal/mocks"
	"trade-market/internal/models"
	"trade-market/internal/services"
)

func setupTradeRouter(handler *TradeHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	handler.Register(r)
	return r
}

func multipartBody(t *testing.T, fields map[string][]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			require.NoError(t, w.WriteField(key, v))
		}
	}
	for name, data := range files {
		part, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestListTradesPassesFilter(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("List", mock.Anything, services.TradeFilter{OwnerID: 2, Query: "bike"}).
		Return([]models.TradeView{{Trade: models.Trade{ID: 1, OwnerID: 2, Title: "Bike"}}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trades?owner_id=2&q=bike", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Bike"`)
	trades.AssertExpectations(t)
}

func TestListTradesRejectsBadOwner(t *testing.T) {
	router := setupTradeRouter(NewTradeHandler(new(mocks.TradeServiceMock), testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trades?owner_id=x", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTradeMultipart(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	var seen []string
	trades.On("Create", mock.Anything, int64(1), mock.MatchedBy(func(in services.NewTrade) bool {
		return in.Title == "Lamp" && in.Description == "Brass" && len(in.Images) == 1
	})).Run(func(args mock.Arguments) {
		in := args.Get(2).(services.NewTrade)
		data, err := io.ReadAll(in.Images[0])
		require.NoError(t, err)
		seen = append(seen, string(data))
	}).Return(models.TradeView{Trade: models.Trade{ID: 8, Title: "Lamp"}}, nil).Once()

	body, contentType := multipartBody(t, map[string][]string{"title": {"Lamp"}, "description": {"Brass"}}, map[string][]byte{"lamp.png": []byte("png-bytes")})
	req := httptest.NewRequest(http.MethodPost, "/trades", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"png-bytes"}, seen)
	trades.AssertExpectations(t)
}

func TestCreateTradeJSON(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("Create", mock.Anything, int64(1), services.NewTrade{Title: "Chair"}).
		Return(models.TradeView{Trade: models.Trade{ID: 9, Title: "Chair"}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/trades", strings.NewReader(`{"title":"Chair"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	trades.AssertExpectations(t)
}

func TestCreateTradeValidationError(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("Create", mock.Anything, int64(1), mock.Anything).
		Return(nil, apperrors.NewValidationError("title", "can't be blank")).Once()

	req := httptest.NewRequest(http.MethodPost, "/trades", strings.NewReader(`{"title":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "can't be blank", resp.Fields["title"])
}

func TestUpdateTradePartialFields(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("Update", mock.Anything, int64(3), int64(1), mock.MatchedBy(func(in services.TradeUpdate) bool {
		return in.Title != nil && *in.Title == "New" && in.Description == nil &&
			assert.ObjectsAreEqual([]int64{4, 5, 6}, in.RemoveImageIDs) && len(in.Images) == 0
	})).Return(models.TradeView{Trade: models.Trade{ID: 3, Title: "New"}}, nil).Once()

	body, contentType := multipartBody(t, map[string][]string{"title": {"New"}, "remove_image_ids": {"4,5", "6"}}, nil)
	req := httptest.NewRequest(http.MethodPut, "/trades/3", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	trades.AssertExpectations(t)
}

func TestUpdateTradeBadRemoveIDs(t *testing.T) {
	router := setupTradeRouter(NewTradeHandler(new(mocks.TradeServiceMock), testLogger()))

	body, contentType := multipartBody(t, map[string][]string{"remove_image_ids": {"x"}}, nil)
	req := httptest.NewRequest(http.MethodPut, "/trades/3", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTradeByStrangerIsForbidden(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("Delete", mock.Anything, int64(3), int64(1)).Return(apperrors.Forbidden("delete trade")).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trades/3", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteTradeSuccess(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("Delete", mock.Anything, int64(3), int64(1)).Return(nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trades/3", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	trades.AssertExpectations(t)
}

func TestGetImageStreamsContent(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("OpenImage", mock.Anything, int64(3), int64(7)).
		Return(io.NopCloser(strings.NewReader("GIF89a")), "image/gif", nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trades/3/images/7", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "GIF89a", rec.Body.String())
}

func TestGetTradeNotFound(t *testing.T) {
	trades := new(mocks.TradeServiceMock)
	router := setupTradeRouter(NewTradeHandler(trades, testLogger()))

	trades.On("Get", mock.Anything, int64(3)).Return(nil, apperrors.NotFound("trade", 3)).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trades/3", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
