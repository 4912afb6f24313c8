package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func upgradeRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://api.yatri.test/api/pricing/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil), "empty list keeps the same-host default")

	open := originChecker([]string{"*"})
	assert.True(t, open(upgradeRequest("https://elsewhere.test")))

	check := originChecker([]string{"https://ops.yatri.test"})
	cases := []struct {
		origin string
		want   bool
	}{
		{"https://ops.yatri.test", true},
		{"HTTPS://OPS.YATRI.TEST", true},
		{"", true},
		{"https://evil.test", false},
		{"http://ops.yatri.test", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, check(upgradeRequest(tc.origin)), tc.origin)
	}
}
