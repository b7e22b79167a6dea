// Command ledger_load hammers one wallet with concurrent BUY transactions and
// then checks through the audit endpoint that the stored holding matches a
// replay of the ledger.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type auditResult struct {
	Symbol       string `json:"symbol"`
	Transactions int    `json:"transactions"`
	Consistent   bool   `json:"consistent"`
}

type client struct {
	base string
	user string
	http *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-User-ID", c.user)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errors.Wrap(err, "decode response")
		}
	}
	return resp.StatusCode, nil
}

func main() {
	var (
		baseURL string
		user    string
		symbol  string
		price   string
		txs     int
		workers int
		timeout time.Duration
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "folio base URL")
	flag.StringVar(&user, "user", "load-test", "user id sent in X-User-ID")
	flag.StringVar(&symbol, "symbol", "PETR4", "symbol to buy")
	flag.StringVar(&price, "price", "10", "unit price of every buy")
	flag.IntVar(&txs, "txs", 500, "number of transactions to apply")
	flag.IntVar(&workers, "workers", 32, "concurrent requests")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if txs <= 0 || workers <= 0 {
		logger.Fatal("txs and workers must be positive", zap.Int("txs", txs), zap.Int("workers", workers))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := &client{
		base: baseURL,
		user: user,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxConnsPerHost:     workers + 10,
				MaxIdleConnsPerHost: workers + 10,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
	}

	var wallet struct {
		ID string `json:"id"`
	}
	if status, err := c.do(ctx, http.MethodPost, "/wallets", map[string]string{"name": "load test"}, &wallet); err != nil || status != http.StatusCreated {
		logger.Fatal("failed to open wallet", zap.Int("status", status), zap.Error(err))
	}
	logger.Info("starting ledger load",
		zap.String("wallet", wallet.ID),
		zap.String("symbol", symbol),
		zap.Int("txs", txs),
		zap.Int("workers", workers))

	var applied, conflicts, failed int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < txs; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			body := map[string]string{
				"symbol":     symbol,
				"type":       "BUY",
				"quantity":   "1",
				"price":      price,
				"executedAt": time.Now().UTC().Format(time.RFC3339),
			}
			status, err := c.do(gctx, http.MethodPost, "/wallets/"+wallet.ID+"/transactions", body, nil)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
			case status == http.StatusCreated:
				atomic.AddInt64(&applied, 1)
			case status == http.StatusConflict:
				atomic.AddInt64(&conflicts, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	var audit []auditResult
	if _, err := c.do(ctx, http.MethodGet, "/wallets/"+wallet.ID+"/audit", nil, &audit); err != nil {
		logger.Fatal("audit failed", zap.Error(err))
	}

	consistent := true
	for _, r := range audit {
		if !r.Consistent {
			consistent = false
		}
		if r.Symbol == symbol && int64(r.Transactions) != applied {
			consistent = false
		}
	}

	fmt.Printf("done: applied=%d conflicts=%d failed=%d elapsed=%s tx/s=%.2f consistent=%t\n",
		applied, conflicts, failed,
		elapsed.Truncate(time.Millisecond),
		float64(applied)/elapsed.Seconds(),
		consistent,
	)
	if !consistent {
		os.Exit(1)
	}
}
