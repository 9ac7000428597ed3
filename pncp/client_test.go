package pncp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(srv.Client(), NewRateLimiter(1000), srv.URL, 50)
	client.SetBackoff([]time.Duration{time.Millisecond, time.Millisecond})
	return client, srv
}

func testWindow() Window {
	return Window{
		From: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestPurchasesPage_QueryAndDecode(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/consulta/v1/contratacoes/publicacao" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("dataInicial") != "20250501" || q.Get("dataFinal") != "20250531" {
			t.Errorf("unexpected date params: %s to %s", q.Get("dataInicial"), q.Get("dataFinal"))
		}
		if q.Get("codigoModalidadeContratacao") != "6" {
			t.Errorf("unexpected modality %s", q.Get("codigoModalidadeContratacao"))
		}
		if q.Get("cnpj") != "11111111000111" {
			t.Errorf("unexpected cnpj %s", q.Get("cnpj"))
		}
		if q.Get("pagina") != "2" || q.Get("tamanhoPagina") != "50" {
			t.Errorf("unexpected paging params: %s/%s", q.Get("pagina"), q.Get("tamanhoPagina"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"totalPaginas": 3,
			"data": [{
				"numeroControlePNCP": "11111111000111-1-000001/2025",
				"anoCompra": 2025,
				"sequencialCompra": 1,
				"modalidadeId": 6,
				"modalidadeNome": "Pregão eletrônico",
				"objetoCompra": "aquisição de notebooks",
				"valorTotalEstimado": 120000.50,
				"dataInclusao": "2025-05-10T14:30:00",
				"orgaoEntidade": {"cnpj": "11111111000111", "razaoSocial": "Prefeitura de Teste"}
			}]
		}`))
	}))

	page, err := client.PurchasesPage(context.Background(), testWindow(), 6, "11111111000111", 2)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", page.TotalPages)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Records))
	}

	rec := page.Records[0]
	if rec.ControlNumber != "11111111000111-1-000001/2025" {
		t.Fatalf("unexpected control number %s", rec.ControlNumber)
	}
	if rec.Org.CNPJ != "11111111000111" {
		t.Fatalf("unexpected org cnpj %s", rec.Org.CNPJ)
	}
	if rec.EstimatedTotal == nil || *rec.EstimatedTotal != 120000.50 {
		t.Fatalf("unexpected estimated total %v", rec.EstimatedTotal)
	}
	if got := rec.PublishedAt.Ptr(); got == nil || got.Day() != 10 {
		t.Fatalf("unexpected published at %v", got)
	}
}

func TestGetJSON_NoContentIsEmptyPage(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	page, err := client.ContractsPage(context.Background(), testWindow(), "", 1)
	if err != nil {
		t.Fatalf("204 must not be an error: %v", err)
	}
	if len(page.Records) != 0 || page.TotalPages != 0 {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestGetJSON_NotFoundIsNil(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	items, err := client.Items(context.Background(), "11111111000111", 2025, 1)
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if items != nil {
		t.Fatalf("expected nil items, got %v", items)
	}
}

func TestGetJSON_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`[{"numeroItem": 1, "descricao": "caneta", "temResultado": true}]`))
		}
	}))

	items, err := client.Items(context.Background(), "11111111000111", 2025, 1)
	if err != nil {
		t.Fatalf("expected retries to recover: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
	if len(items) != 1 || items[0].ItemNumber != 1 || !items[0].HasResult {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestGetJSON_RetriesExhaust(t *testing.T) {
	var hits atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.Items(context.Background(), "11111111000111", 2025, 1)
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	// Two backoff steps means three attempts total.
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestGetJSON_UnexpectedStatusFailsFast(t *testing.T) {
	var hits atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	_, err := client.Items(context.Background(), "11111111000111", 2025, 1)
	if err == nil {
		t.Fatalf("expected error for 422")
	}
	if hits.Load() != 1 {
		t.Fatalf("422 must not be retried, got %d attempts", hits.Load())
	}
}
