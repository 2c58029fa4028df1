package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestSendRequest(t *testing.T) {
	var captured resend.SendEmailRequest
	var capturedURL, capturedAuth string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedAuth = req.Header.Get("Authorization")
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &captured))
		return jsonResponse(http.StatusOK, `{"id":"email_123"}`), nil
	})

	client, err := NewClient("re_key", "orders@shop.test", WithBaseURL("http://resend.test"), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	id, err := client.Send(context.Background(), Message{
		To:      []string{"ama@example.com"},
		Subject: "Order KB-1 confirmed",
		Text:    "Thanks",
		Tags:    map[string]string{"order_number": "KB-1", "kind": "confirmation"},
	})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
	assert.Equal(t, "http://resend.test/emails", capturedURL)
	assert.Equal(t, "Bearer re_key", capturedAuth)
	assert.Equal(t, "orders@shop.test", captured.From)
	assert.Equal(t, []string{"ama@example.com"}, captured.To)
	assert.Equal(t, "Thanks", captured.Text)
	assert.Equal(t, []resend.Tag{{Name: "kind", Value: "confirmation"}, {Name: "order_number", Value: "KB-1"}}, captured.Tags)
}

func TestSendFailureIsDependencyError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity, `{"statusCode":422,"name":"validation_error","message":"invalid from"}`), nil
	})
	client, err := NewClient("re_key", "orders@shop.test", WithBaseURL("http://resend.test/"), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	_, err = client.Send(context.Background(), Message{To: []string{"a@b.c"}, Subject: "s"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestSendValidation(t *testing.T) {
	_, err := NewClient("", "from@x")
	assert.Error(t, err)
	_, err = NewClient("key", " ")
	assert.Error(t, err)

	client, err := NewClient("key", "from@x")
	require.NoError(t, err)
	_, err = client.Send(context.Background(), Message{Subject: "s"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = client.Send(context.Background(), Message{To: []string{"a@b.c"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var nilClient *Client
	_, err = nilClient.Send(context.Background(), Message{To: []string{"a@b.c"}, Subject: "s"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
