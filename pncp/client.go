package pncp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const dateLayout = "20060102"

// defaultBackoff is the retry ladder for rate-limited and transient
// remote failures. Exhausting it turns the failure into an error for
// the caller.
var defaultBackoff = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	time.Minute,
}

// Window is an inclusive date range sent to the PNCP query endpoints.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) fromParam() string { return w.From.Format(dateLayout) }
func (w Window) toParam() string   { return w.To.Format(dateLayout) }

// Client is the paginated consumer of the PNCP API. Every request goes
// through the shared rate limiter before touching the network.
type Client struct {
	http     *http.Client
	limiter  *RateLimiter
	baseURL  string
	pageSize int
	backoff  []time.Duration
}

func NewClient(httpClient *http.Client, limiter *RateLimiter, baseURL string, pageSize int) *Client {
	return &Client{
		http:     httpClient,
		limiter:  limiter,
		baseURL:  baseURL,
		pageSize: pageSize,
		backoff:  defaultBackoff,
	}
}

// SetBackoff overrides the retry ladder. Used by tests to avoid
// multi-second waits.
func (c *Client) SetBackoff(ladder []time.Duration) {
	c.backoff = ladder
}

type PurchasesPage struct {
	Records    []PurchaseRecord
	TotalPages int
}

// PurchasesPage fetches one page of the publication feed for a
// modality. A CNPJ narrows the feed to one organization; empty scans
// the whole corpus.
func (c *Client) PurchasesPage(ctx context.Context, w Window, modality int, cnpj string, page int) (PurchasesPage, error) {
	params := url.Values{}
	params.Set("dataInicial", w.fromParam())
	params.Set("dataFinal", w.toParam())
	params.Set("codigoModalidadeContratacao", strconv.Itoa(modality))
	params.Set("pagina", strconv.Itoa(page))
	params.Set("tamanhoPagina", strconv.Itoa(c.pageSize))
	if cnpj != "" {
		params.Set("cnpj", cnpj)
	}

	var envelope purchasesEnvelope
	found, err := c.getJSON(ctx, c.baseURL+"/consulta/v1/contratacoes/publicacao?"+params.Encode(), &envelope)
	if err != nil || !found {
		return PurchasesPage{}, err
	}
	return PurchasesPage{Records: envelope.Data, TotalPages: envelope.TotalPages}, nil
}

type ContractsPage struct {
	Records    []ContractRecord
	TotalPages int
}

func (c *Client) ContractsPage(ctx context.Context, w Window, cnpj string, page int) (ContractsPage, error) {
	params := url.Values{}
	params.Set("dataInicial", w.fromParam())
	params.Set("dataFinal", w.toParam())
	params.Set("pagina", strconv.Itoa(page))
	params.Set("tamanhoPagina", strconv.Itoa(c.pageSize))
	if cnpj != "" {
		params.Set("cnpjOrgao", cnpj)
	}

	var envelope contractsEnvelope
	found, err := c.getJSON(ctx, c.baseURL+"/consulta/v1/contratos?"+params.Encode(), &envelope)
	if err != nil || !found {
		return ContractsPage{}, err
	}
	return ContractsPage{Records: envelope.Data, TotalPages: envelope.TotalPages}, nil
}

type PriceRegsPage struct {
	Records    []PriceRegRecord
	TotalPages int
}

func (c *Client) PriceRegsPage(ctx context.Context, w Window, cnpj string, page int) (PriceRegsPage, error) {
	params := url.Values{}
	params.Set("dataInicial", w.fromParam())
	params.Set("dataFinal", w.toParam())
	params.Set("pagina", strconv.Itoa(page))
	params.Set("tamanhoPagina", strconv.Itoa(c.pageSize))
	if cnpj != "" {
		params.Set("cnpjOrgao", cnpj)
	}

	var envelope priceRegsEnvelope
	found, err := c.getJSON(ctx, c.baseURL+"/consulta/v1/atas?"+params.Encode(), &envelope)
	if err != nil || !found {
		return PriceRegsPage{}, err
	}
	return PriceRegsPage{Records: envelope.Data, TotalPages: envelope.TotalPages}, nil
}

// Items fetches the line items of one purchase.
func (c *Client) Items(ctx context.Context, cnpj string, year, sequential int) ([]ItemRecord, error) {
	u := fmt.Sprintf("%s/pncp/v1/orgaos/%s/compras/%d/%d/itens", c.baseURL, cnpj, year, sequential)

	var items []ItemRecord
	found, err := c.getJSON(ctx, u, &items)
	if err != nil || !found {
		return nil, err
	}
	return items, nil
}

// ItemResults fetches the award results of one purchase item.
func (c *Client) ItemResults(ctx context.Context, cnpj string, year, sequential, itemNumber int) ([]ResultRecord, error) {
	u := fmt.Sprintf("%s/pncp/v1/orgaos/%s/compras/%d/%d/itens/%d/resultados", c.baseURL, cnpj, year, sequential, itemNumber)

	var results []ResultRecord
	found, err := c.getJSON(ctx, u, &results)
	if err != nil || !found {
		return nil, err
	}
	return results, nil
}

// Organization fetches one organization by CNPJ.
func (c *Client) Organization(ctx context.Context, cnpj string) (*OrgRecord, error) {
	u := fmt.Sprintf("%s/pncp/v1/orgaos/%s", c.baseURL, cnpj)

	var org OrgRecord
	found, err := c.getJSON(ctx, u, &org)
	if err != nil || !found {
		return nil, err
	}
	return &org, nil
}

// OrgUnits fetches the administrative sub-units of an organization.
func (c *Client) OrgUnits(ctx context.Context, cnpj string) ([]OrgUnitRecord, error) {
	u := fmt.Sprintf("%s/pncp/v1/orgaos/%s/unidades", c.baseURL, cnpj)

	var units []OrgUnitRecord
	found, err := c.getJSON(ctx, u, &units)
	if err != nil || !found {
		return nil, err
	}
	return units, nil
}

type OrgsPage struct {
	Records    []OrgRecord
	TotalPages int
}

// OrgsPage fetches one page of the full organization catalog.
func (c *Client) OrgsPage(ctx context.Context, page int) (OrgsPage, error) {
	params := url.Values{}
	params.Set("pagina", strconv.Itoa(page))
	params.Set("tamanhoPagina", strconv.Itoa(c.pageSize))

	var envelope orgsEnvelope
	found, err := c.getJSON(ctx, c.baseURL+"/pncp/v1/orgaos?"+params.Encode(), &envelope)
	if err != nil || !found {
		return OrgsPage{}, err
	}
	return OrgsPage{Records: envelope.Data, TotalPages: envelope.TotalPages}, nil
}

// getJSON performs one rate-limited GET, retrying rate-limit and
// transient failures along the backoff ladder. It returns found=false
// for empty pages (204) and missing resources (404).
func (c *Client) getJSON(ctx context.Context, u string, out any) (bool, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return false, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "pncp-loader/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if retryErr := c.waitRetry(ctx, attempt, fmt.Sprintf("request failed: %v", err)); retryErr != nil {
				return false, retryErr
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return false, nil

		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			resp.Body.Close()
			if retryErr := c.waitRetry(ctx, attempt, fmt.Sprintf("status %d", resp.StatusCode)); retryErr != nil {
				return false, retryErr
			}
			continue

		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return false, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, u)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return true, nil
	}
}

func (c *Client) waitRetry(ctx context.Context, attempt int, reason string) error {
	if attempt >= len(c.backoff) {
		return fmt.Errorf("retries exhausted: %s", reason)
	}

	log.Printf("PNCP: %s, retrying in %s", reason, c.backoff[attempt])

	select {
	case <-time.After(c.backoff[attempt]):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
