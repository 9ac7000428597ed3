package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"pncp_loader/models"
)

// ItemDocument is the denormalized purchase item shape kept in the
// search index. One document per line item, carrying enough purchase
// and organization context to query without joins.
type ItemDocument struct {
	ControlNumber string     `json:"control_number"`
	ItemNumber    int        `json:"item_number"`
	OrgCNPJ       string     `json:"org_cnpj"`
	OrgName       string     `json:"org_name"`
	ModalityCode  int        `json:"modality_code"`
	ModalityName  string     `json:"modality_name"`
	Description   string     `json:"description"`
	Quantity      *float64   `json:"quantity,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	UnitPrice     *float64   `json:"unit_price,omitempty"`
	TotalPrice    *float64   `json:"total_price,omitempty"`
	HasResult     bool       `json:"has_result"`
	AwardedPrice  *float64   `json:"awarded_price,omitempty"`
	SupplierName  string     `json:"supplier_name,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	IndexedAt     time.Time  `json:"indexed_at"`
}

// DocID is the deterministic index id, so reimports overwrite instead
// of duplicating.
func (d *ItemDocument) DocID() string {
	return fmt.Sprintf("%s-%d", d.ControlNumber, d.ItemNumber)
}

// NewItemDocument builds the index document from stored records.
func NewItemDocument(org *models.Organization, p *models.Purchase, it *models.PurchaseItem, r *models.ItemResult) ItemDocument {
	doc := ItemDocument{
		ControlNumber: p.ControlNumber,
		ItemNumber:    it.ItemNumber,
		OrgCNPJ:       org.CNPJ,
		OrgName:       org.LegalName,
		ModalityCode:  p.ModalityCode,
		ModalityName:  p.ModalityName,
		Description:   it.Description,
		Quantity:      it.Quantity,
		Unit:          it.Unit,
		UnitPrice:     it.UnitPrice,
		TotalPrice:    it.TotalPrice,
		HasResult:     it.HasResult,
		PublishedAt:   p.PublishedAt,
		IndexedAt:     time.Now(),
	}
	if r != nil {
		doc.AwardedPrice = r.AwardedUnitPrice
		doc.SupplierName = r.SupplierName
	}
	return doc
}

// Indexer buffers documents and flushes them to Elasticsearch in bulk.
// A failed flush is logged and counted, never fatal to the import.
type Indexer struct {
	es        *elasticsearch.Client
	index     string
	batchSize int

	mu      sync.Mutex
	pending []ItemDocument
	indexed int
	failed  int
}

func NewIndexer(url, index string, batchSize int) (*Indexer, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Indexer{
		es:        es,
		index:     index,
		batchSize: batchSize,
	}, nil
}

// Add buffers a document, flushing when the buffer reaches the batch
// size.
func (ix *Indexer) Add(ctx context.Context, doc ItemDocument) {
	ix.mu.Lock()
	ix.pending = append(ix.pending, doc)
	full := len(ix.pending) >= ix.batchSize
	var batch []ItemDocument
	if full {
		batch = ix.pending
		ix.pending = nil
	}
	ix.mu.Unlock()

	if full {
		ix.flush(ctx, batch)
	}
}

// Flush sends whatever is buffered. Call at the end of a run and on
// cancellation so partial work still reaches the index.
func (ix *Indexer) Flush(ctx context.Context) {
	ix.mu.Lock()
	batch := ix.pending
	ix.pending = nil
	ix.mu.Unlock()

	if len(batch) > 0 {
		ix.flush(ctx, batch)
	}
}

// Indexed returns how many documents were accepted by the index so far.
func (ix *Indexer) Indexed() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.indexed
}

// Failed returns how many documents were rejected or lost to flush
// errors.
func (ix *Indexer) Failed() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.failed
}

func (ix *Indexer) flush(ctx context.Context, batch []ItemDocument) {
	var buf bytes.Buffer
	for i := range batch {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, ix.index, batch[i].DocID())
		buf.WriteString(meta)
		buf.WriteByte('\n')
		doc, err := json.Marshal(&batch[i])
		if err != nil {
			log.Printf("Search: marshal document %s: %v", batch[i].DocID(), err)
			continue
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := ix.es.Bulk(bytes.NewReader(buf.Bytes()),
		ix.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		log.Printf("Search: bulk flush of %d documents failed: %v", len(batch), err)
		ix.mu.Lock()
		ix.failed += len(batch)
		ix.mu.Unlock()
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Printf("Search: bulk flush rejected: %s", body)
		ix.mu.Lock()
		ix.failed += len(batch)
		ix.mu.Unlock()
		return
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		log.Printf("Search: decode bulk response: %v", err)
		ix.mu.Lock()
		ix.indexed += len(batch)
		ix.mu.Unlock()
		return
	}

	ok := len(batch)
	if bulkRes.Errors {
		for _, item := range bulkRes.Items {
			for _, op := range item {
				if op.Status >= 300 {
					ok--
					if op.Error != nil {
						log.Printf("Search: document rejected: %s: %s", op.Error.Type, op.Error.Reason)
					}
				}
			}
		}
	}

	ix.mu.Lock()
	ix.indexed += ok
	ix.failed += len(batch) - ok
	ix.mu.Unlock()
}
