package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"vibe-drinks/config"
	"vibe-drinks/models"
	"vibe-drinks/realtime"
)

const defaultBoard = "pending,accepted,preparing,ready,dispatched"

// runWatch prints the order board for the kitchen or courier terminal and
// reprints it on every event, falling back to polling while the stream is down.
func runWatch(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost"+cfg.HTTP.Addr, "API base URL")
	statuses := fs.String("status", defaultBoard, "comma separated statuses to show")
	token := fs.String("token", os.Getenv("WATCH_TOKEN"), "staff bearer token")
	_ = fs.Parse(args)

	b := &board{
		http:     &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(*baseURL, "/"),
		token:    *token,
		statuses: *statuses,
	}

	refresh := make(chan struct{}, 1)
	poke := func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	}

	client := realtime.NewClient(realtime.ClientOptions{
		URL:    b.baseURL + "/events",
		Logger: log,
		OnEvent: func(f realtime.Frame) {
			if f.Event != realtime.EventHeartbeat {
				poke()
			}
		},
		OnState: func(s realtime.State) {
			log.Debug("event stream", "state", s)
		},
		IdleTimeout:              2 * cfg.Realtime.HeartbeatInterval,
		PollIntervalConnected:    cfg.Realtime.PollIntervalConnected,
		PollIntervalDisconnected: cfg.Realtime.PollIntervalDisconnected,
	})
	client.Start()
	defer client.Close()

	poke()
	timer := time.NewTimer(client.PollInterval())
	defer timer.Stop()
	warned := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh:
		case <-timer.C:
		}

		orders, err := b.fetch(ctx)
		if err != nil {
			log.Warn("refresh failed", "error", err)
		} else {
			renderBoard(os.Stdout, orders, time.Now())
		}
		if client.Exhausted() && !warned {
			log.Warn("event stream gave up; polling only")
			warned = true
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(client.PollInterval())
	}
}

type board struct {
	http     *http.Client
	baseURL  string
	token    string
	statuses string
}

type listEnvelope struct {
	OK    bool           `json:"ok"`
	Data  []models.Order `json:"data"`
	Error string         `json:"error"`
}

func (b *board) fetch(ctx context.Context) ([]models.Order, error) {
	q := url.Values{}
	if b.statuses != "" {
		q.Set("status", b.statuses)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/orders?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	res, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var env listEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode orders (status %d): %w", res.StatusCode, err)
	}
	if !env.OK {
		return nil, fmt.Errorf("list orders: %s (status %d)", env.Error, res.StatusCode)
	}
	return env.Data, nil
}

func renderBoard(w io.Writer, orders []models.Order, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "-- %s, %d orders --\n", now.Format("15:04:05"), len(orders))
	fmt.Fprintln(tw, "ID\tSTATUS\tTYPE\tITEMS\tTOTAL\tAGE")
	for _, o := range orders {
		id := o.ID
		if len(id) > 8 {
			id = id[:8]
		}
		items := 0
		for _, it := range o.Items {
			items += it.Quantity
		}
		age := now.Sub(o.CreatedAt).Truncate(time.Minute)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", id, o.Status, o.OrderType, items, o.Total.StringFixed(2), age)
	}
	_ = tw.Flush()
}
