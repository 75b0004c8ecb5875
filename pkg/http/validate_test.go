package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushRequest struct {
	Items []struct {
		Payload string `json:"payload" validate:"required"`
	} `json:"items" validate:"required,min=1,dive"`
	Limit int `query:"limit" default:"50" validate:"gte=1,lte=100"`
}

func bindJSON(t *testing.T, body string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ReadAndValidateRequest(e.NewContext(r, httptest.NewRecorder()), req)
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	var req pushRequest
	errs := bindJSON(t, `{"items":[{"payload":"AA=="}]}`, &req)
	require.Nil(t, errs)
	assert.Equal(t, 50, req.Limit)
}

func TestReadAndValidateRequestReportsNestedField(t *testing.T) {
	var req pushRequest
	errs := bindJSON(t, `{"items":[{"payload":""}]}`, &req)

	list, ok := errs.([]ValidationError)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "ERR_REQUIRED", list[0].Code)
	assert.Equal(t, "items[0].payload", list[0].Field)
}

func TestReadAndValidateRequestEmptyList(t *testing.T) {
	var req pushRequest
	errs := bindJSON(t, `{"items":[]}`, &req)

	list, ok := errs.([]ValidationError)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "ERR_MIN", list[0].Code)
	assert.Equal(t, "items must contain at least 1 items", list[0].Message)
}

func TestReadAndValidateRequestMalformedJSON(t *testing.T) {
	var req pushRequest
	errs := bindJSON(t, `{"items":`, &req)

	list, ok := errs.([]ValidationError)
	require.True(t, ok)
	assert.Equal(t, "ERR_UNKNOWN", list[0].Code)
}
