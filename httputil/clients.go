package httputil

import (
	"net/http"
	"time"
)

type Clients struct {
	PNCP   *http.Client // remote procurement API
	Notify *http.Client // internal notification sink
}

func NewClients() *Clients {
	pncp := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Clients{
		PNCP:   pncp,
		Notify: &http.Client{Timeout: 10 * time.Second},
	}
}
