package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCommandsTotalByLabel(t *testing.T) {
	before := testutil.ToFloat64(CommandsTotal.WithLabelValues("ping"))
	CommandsTotal.WithLabelValues("ping").Inc()
	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues("ping")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	PublishedTotal.Inc()

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "topicrelay_published_total") {
		t.Error("published counter missing from /metrics output")
	}
}
