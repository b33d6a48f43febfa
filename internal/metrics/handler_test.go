package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(w.Result().Body)
	return w.Result().StatusCode, string(body)
}

// TestHandler_ExposesSharingMetrics は記録した共有メトリクスがスクレイプ結果に含まれることを検証する。
func TestHandler_ExposesSharingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordInvitesSent(1)
	c.RecordRepairs("orphan_invite", 2)
	c.RecordHTTPStatus(http.StatusConflict)

	status, body := scrape(t, Handler(reg), "/")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}

	for _, want := range []string{
		"vaultshare_invites_sent_total 1",
		`vaultshare_reconcile_repairs_total{kind="orphan_invite"} 2`,
		`vaultshare_http_status_total{status_code="409"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response should contain %q", want)
		}
	}
}

// TestSetupMetricsRoute_ServesOnlyMetricsPath はワーカー用ルートが/metricsのみを公開することを検証する。
func TestSetupMetricsRoute_ServesOnlyMetricsPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).RecordNotificationsEmitted(3)

	handler := SetupMetricsRoute(reg)

	status, body := scrape(t, handler, "/metrics")
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "vaultshare_notifications_emitted_total 3") {
		t.Error("response should contain vaultshare_notifications_emitted_total")
	}

	if status, _ := scrape(t, handler, "/api/invites"); status != http.StatusNotFound {
		t.Errorf("status for other paths = %d, want %d", status, http.StatusNotFound)
	}
}
